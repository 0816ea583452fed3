package channel

import (
	"fmt"
	"sync"
)

// MemoryTransport records sent envelopes in memory. Sessions use it when
// no backend URL is configured, and tests use it to inspect traffic.
type MemoryTransport struct {
	mu      sync.Mutex
	sent    []Envelope
	closed  bool
	SendErr error
}

// NewMemoryTransport returns an open MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

func (t *MemoryTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("memory transport closed")
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, env)
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (t *MemoryTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Batches returns the command batches sent so far.
func (t *MemoryTransport) Batches() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]string
	for _, env := range t.sent {
		if env.Event != EventRunCommand {
			continue
		}
		cmds, err := env.CommandBatch()
		if err != nil {
			continue
		}
		out = append(out, cmds)
	}
	return out
}

// Commands returns every command sent so far, flattened.
func (t *MemoryTransport) Commands() []string {
	var out []string
	for _, b := range t.Batches() {
		out = append(out, b...)
	}
	return out
}

// Reset forgets the recorded traffic.
func (t *MemoryTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}
