// Package store implements the keyed state container every response
// handler writes into.
//
// Writes pass through a chain of middleware that may veto them. Accepted
// writes are batched: a debounce timer is restarted on every write and,
// when it expires, subscribers receive one notification carrying the
// deduplicated list of keys that changed during the window.
//
// Any composite value (map, slice, array, struct, pointer, interface) is
// always considered changed, because an in-place mutation followed by a
// Set of the same reference cannot be detected by comparison. Primitive
// values are compared with ==.
package store

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/ctagard/gdbmi-mcp/internal/clock"
)

// DefaultDebounce is the delay between the last write and the flush.
const DefaultDebounce = 10 * time.Millisecond

// Middleware inspects a write before it is applied. Returning false
// rejects the write and stops the remaining middleware from running.
type Middleware func(key string, oldValue, newValue any) bool

// Callback receives the keys changed since the previous flush.
type Callback func(changed []string)

// Store is safe for concurrent use. Callbacks run without the lock held.
type Store struct {
	mu          sync.Mutex
	clock       clock.Clock
	debounce    time.Duration
	data        map[string]any
	middleware  []Middleware
	subscribers map[int]Callback
	nextID      int

	pending      []string
	pendingIndex map[string]struct{}
	timer        *clock.Timer
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// New creates a store whose key set is fixed to the keys of initial.
func New(clk clock.Clock, initial map[string]any, opts ...Option) *Store {
	s := &Store{
		clock:        clk,
		debounce:     DefaultDebounce,
		data:         make(map[string]any, len(initial)),
		subscribers:  make(map[int]Callback),
		pendingIndex: make(map[string]struct{}),
	}
	for k, v := range initial {
		s.data[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	return s
}

// Get returns the current value of key, or nil if the key is unknown.
func (s *Store) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

// Has reports whether key was declared at construction.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

// Value returns the value of key as T, or the zero value of T when the
// key is unset or holds another type.
func Value[T any](s *Store, key string) T {
	v, _ := s.Get(key).(T)
	return v
}

// Set writes value under key. It reports whether the write was applied;
// unknown keys and vetoed writes are not.
func (s *Store) Set(key string, value any) bool {
	s.mu.Lock()
	old, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		glog.Errorf("store: key %q was not declared in the initial state", key)
		return false
	}
	chain := s.middleware
	s.mu.Unlock()

	// Middleware may read the store, so it runs unlocked.
	for _, mw := range chain {
		if !mw(key, old, value) {
			glog.V(3).Infof("store: write to %q vetoed by middleware", key)
			return false
		}
	}

	if !ValueHasChanged(old, value) {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	if _, queued := s.pendingIndex[key]; !queued {
		s.pendingIndex[key] = struct{}{}
		s.pending = append(s.pending, key)
	}
	s.timer.Stop()
	s.timer = s.clock.AfterFunc(s.debounce, s.Flush)
	return true
}

// Use appends middleware to the chain.
func (s *Store) Use(mw Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw)
}

// Subscribe registers cb for every flush. The returned function removes it.
func (s *Store) Subscribe(cb Callback) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// SubscribeToKeys registers cb for flushes that touch at least one of
// keys. cb receives only the matching keys.
func (s *Store) SubscribeToKeys(keys []string, cb Callback) (unsubscribe func()) {
	watched := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		watched[k] = struct{}{}
	}
	return s.Subscribe(func(changed []string) {
		var hit []string
		for _, k := range changed {
			if _, ok := watched[k]; ok {
				hit = append(hit, k)
			}
		}
		if len(hit) > 0 {
			cb(hit)
		}
	})
}

// Flush delivers pending changes immediately. Pending state is reset
// before callbacks run so writes made by a callback start a new cycle.
func (s *Store) Flush() {
	s.mu.Lock()
	s.timer.Stop()
	s.timer = nil
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	changed := s.pending
	s.pending = nil
	s.pendingIndex = make(map[string]struct{})

	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]Callback, 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, s.subscribers[id])
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(changed)
	}
}

// Snapshot copies the current state.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// ValueHasChanged reports whether replacing oldValue with newValue must
// notify subscribers.
func ValueHasChanged(oldValue, newValue any) bool {
	if isComposite(oldValue) || isComposite(newValue) {
		return true
	}
	return oldValue != newValue
}

func isComposite(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct,
		reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
