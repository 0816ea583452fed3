package store

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/ctagard/gdbmi-mcp/internal/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Unix(0, 0))
	s := New(clk, map[string]any{
		"line":   0,
		"file":   "",
		"stack":  []string(nil),
		"frames": map[string]int{},
		"paused": false,
	})
	return s, clk
}

// TestSetBatchesWithinDebounceWindow verifies a burst of writes yields a
// single notification with the deduplicated keys in first-write order.
func TestSetBatchesWithinDebounceWindow(t *testing.T) {
	s, clk := newTestStore(t)

	var notifications [][]string
	s.Subscribe(func(changed []string) {
		notifications = append(notifications, changed)
	})

	s.Set("line", 1)
	clk.Advance(5 * time.Millisecond)
	s.Set("file", "main.c")
	clk.Advance(5 * time.Millisecond)
	s.Set("line", 2)
	s.Set("paused", true)

	assert.Equal(t, len(notifications), 0)

	clk.Advance(DefaultDebounce)
	assert.Equal(t, notifications, [][]string{{"line", "file", "paused"}})
	assert.Equal(t, Value[int](s, "line"), 2)
}

func TestSetUnchangedPrimitiveDoesNotNotify(t *testing.T) {
	s, clk := newTestStore(t)
	calls := 0
	s.Subscribe(func([]string) { calls++ })

	assert.Equal(t, s.Set("line", 0), true)
	clk.Advance(time.Second)
	assert.Equal(t, calls, 0)
}

// TestInPlaceMutationStillNotifies guards the always-dirty rule for
// composite values: re-setting a mutated slice must notify.
func TestInPlaceMutationStillNotifies(t *testing.T) {
	s, clk := newTestStore(t)
	stack := []string{"main"}
	s.Set("stack", stack)
	clk.Advance(DefaultDebounce)

	var got []string
	s.Subscribe(func(changed []string) { got = changed })

	stack[0] = "foo"
	s.Set("stack", stack)
	clk.Advance(DefaultDebounce)
	assert.Equal(t, got, []string{"stack"})

	m := Value[map[string]int](s, "frames")
	m["x"] = 1
	got = nil
	s.Set("frames", m)
	clk.Advance(DefaultDebounce)
	assert.Equal(t, got, []string{"frames"})
}

func TestMiddlewareVetoShortCircuits(t *testing.T) {
	s, clk := newTestStore(t)

	var seen []string
	s.Use(func(key string, oldValue, newValue any) bool {
		seen = append(seen, "first")
		return key != "file"
	})
	s.Use(func(key string, oldValue, newValue any) bool {
		seen = append(seen, "second")
		return true
	})

	assert.Equal(t, s.Set("file", "a.c"), false)
	assert.Equal(t, seen, []string{"first"})
	assert.Equal(t, Value[string](s, "file"), "")

	seen = nil
	assert.Equal(t, s.Set("line", 7), true)
	assert.Equal(t, seen, []string{"first", "second"})

	calls := 0
	s.Subscribe(func([]string) { calls++ })
	clk.Advance(DefaultDebounce)
	assert.Equal(t, calls, 1)
}

func TestMiddlewareSeesOldAndNew(t *testing.T) {
	s, _ := newTestStore(t)
	s.Set("line", 3)

	var oldV, newV any
	s.Use(func(key string, oldValue, newValue any) bool {
		oldV, newV = oldValue, newValue
		return true
	})
	s.Set("line", 4)
	assert.Equal(t, oldV, 3)
	assert.Equal(t, newV, 4)
}

func TestSetUnknownKeyRejected(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, s.Set("nope", 1), false)
	assert.Equal(t, s.Has("nope"), false)
	assert.Equal(t, s.Get("nope"), nil)
}

// TestCallbackWritesStartNewCycle verifies pending state is cleared
// before callbacks run.
func TestCallbackWritesStartNewCycle(t *testing.T) {
	s, clk := newTestStore(t)

	var batches [][]string
	s.Subscribe(func(changed []string) {
		batches = append(batches, changed)
		if len(batches) == 1 {
			s.Set("paused", true)
		}
	})

	s.Set("line", 10)
	clk.Advance(DefaultDebounce)
	assert.Equal(t, batches, [][]string{{"line"}})

	clk.Advance(DefaultDebounce)
	assert.Equal(t, batches, [][]string{{"line"}, {"paused"}})
}

func TestSubscribeToKeysAndUnsubscribe(t *testing.T) {
	s, clk := newTestStore(t)

	var got []string
	unsubscribe := s.SubscribeToKeys([]string{"file", "paused"}, func(changed []string) {
		got = changed
	})

	s.Set("line", 1)
	clk.Advance(DefaultDebounce)
	assert.Equal(t, got, []string(nil))

	s.Set("line", 2)
	s.Set("file", "x.c")
	clk.Advance(DefaultDebounce)
	assert.Equal(t, got, []string{"file"})

	unsubscribe()
	got = nil
	s.Set("paused", true)
	clk.Advance(DefaultDebounce)
	assert.Equal(t, got, []string(nil))
}

func TestValueHasChanged(t *testing.T) {
	tests := []struct {
		name     string
		old, new any
		want     bool
	}{
		{"same int", 1, 1, false},
		{"different int", 1, 2, true},
		{"same string", "a", "a", false},
		{"nil to nil", nil, nil, false},
		{"nil to value", nil, "a", true},
		{"slice", []int{1}, []int{1}, true},
		{"map", map[string]int{}, map[string]int{}, true},
		{"struct", struct{ A int }{1}, struct{ A int }{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ValueHasChanged(tt.old, tt.new), tt.want)
		})
	}
}
