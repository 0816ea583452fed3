package clock

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(10*time.Millisecond, func() { fired++ })

	c.Advance(9 * time.Millisecond)
	assert.Equal(t, fired, 0)

	c.Advance(time.Millisecond)
	assert.Equal(t, fired, 1)

	c.Advance(time.Second)
	assert.Equal(t, fired, 1)
	assert.Equal(t, c.PendingCount(), 0)
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.Equal(t, timer.Stop(), true)
	assert.Equal(t, timer.Stop(), false)

	c.Advance(2 * time.Second)
	assert.Equal(t, fired, false)
}

func TestFakeCallbackSchedulesInsideWindow(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(time.Second, func() {
		order = append(order, "first")
		c.AfterFunc(time.Millisecond, func() { order = append(order, "second") })
	})

	// the nested timer's deadline is relative to the already-advanced clock
	c.Advance(time.Second)
	assert.Equal(t, order, []string{"first"})

	c.Advance(time.Millisecond)
	assert.Equal(t, order, []string{"first", "second"})
}

func TestFakeTicker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(time.Minute)
	select {
	case got := <-ticker.C:
		assert.Equal(t, got, epoch.Add(time.Minute))
	default:
		t.Fatal("expected a tick")
	}
	assert.Equal(t, c.Now(), epoch.Add(time.Minute))
}
