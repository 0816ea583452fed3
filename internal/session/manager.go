package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/ctagard/gdbmi-mcp/internal/clock"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
)

// CleanupInterval is how often idle sessions are looked for.
const CleanupInterval = time.Minute

// Manager manages multiple sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	maxSessions    int
	sessionTimeout time.Duration
	clock          clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a session manager. Sessions unused for longer
// than sessionTimeout are closed; zero disables expiry.
func NewManager(maxSessions int, sessionTimeout time.Duration, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions:       make(map[string]*Session),
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		clock:          clk,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// cleanupLoop periodically closes expired sessions
func (m *Manager) cleanupLoop() {
	defer close(m.done)
	ticker := m.clock.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

func (m *Manager) cleanupExpired() {
	if m.sessionTimeout <= 0 {
		return
	}
	now := m.clock.Now()
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.sessionTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		glog.Infof("[session]%s idle since %s, closing", s.ID, s.LastUsed().Format(time.RFC3339))
		if err := s.Close(); err != nil {
			glog.Warningf("[session]closing %s: %v", s.ID, err)
		}
	}
}

// Create builds a session and connects it. A session that fails to
// connect is not kept.
func (m *Manager) Create(ctx context.Context, opts Options) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, debugerrors.SessionLimitReached(m.maxSessions)
	}
	id := uuid.New().String()
	if opts.Clock == nil {
		opts.Clock = m.clock
	}
	s, err := newSession(id, opts)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		m.remove(id)
		s.Close()
		return nil, err
	}
	glog.Infof("[session]%s connected to %s", id, opts.URL)
	return s, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, debugerrors.SessionNotFound(id)
	}
	return s, nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Terminate closes a session and forgets it.
func (m *Manager) Terminate(id string) error {
	s := m.remove(id)
	if s == nil {
		return debugerrors.SessionNotFound(id)
	}
	return s.Close()
}

func (m *Manager) remove(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	delete(m.sessions, id)
	return s
}

// Close terminates all sessions and stops the cleanup loop.
func (m *Manager) Close() {
	m.cancel()
	<-m.done

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		if err := s.Close(); err != nil {
			glog.Warningf("[session]closing %s: %v", id, err)
		}
	}
}
