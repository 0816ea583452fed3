// Package clock abstracts time so the engine's timers can be driven
// deterministically in tests.
//
// The store's debounce timer and the command channel's response timer are
// both cancel-and-restart AfterFunc timers. Production code uses Real();
// tests use Fake() and call Advance to fire them synchronously.
package clock

import "time"

// Clock is the subset of the time package the engine depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f after d elapses. The returned Timer can cancel
	// the pending call. A fake clock runs f synchronously from Advance.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on its C channel every d.
	NewTicker(d time.Duration) *Ticker
}

// Timer cancels a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It returns false if the timer
// already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Ticker delivers periodic ticks.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }
