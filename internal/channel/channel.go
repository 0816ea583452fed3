// Package channel sends gdb command batches to the backend and receives
// its responses and out-of-band events.
//
// Commands issued before the transport opens are queued and flushed in
// order on open. Every sent batch restarts a response timer; when it
// expires the channel writes one diagnostic to the transcript and resets
// transient program state, but leaves the transport alone. Disconnects
// and fatal server errors are terminal: the notice is published to the
// store and later commands queue without ever being sent.
package channel

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/ctagard/gdbmi-mcp/internal/clock"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	"github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// DefaultResponseTimeout is how long a batch may go unanswered before the
// diagnostic is written.
const DefaultResponseTimeout = 3 * time.Second

// Transport carries envelopes to the backend. Inbound envelopes are
// handed to the delivery function given when the transport was created.
type Transport interface {
	Send(env Envelope) error
	Close() error
}

// Handler receives the data of a named event
type Handler func(data json.RawMessage)

// ResponseHandler receives each parsed gdb_response batch
type ResponseHandler func(records []mi.Record)

// Option configures a Channel
type Option func(*Channel)

// WithResponseTimeout overrides DefaultResponseTimeout.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExecutor sets the function used to run timer expiries. Sessions
// pass their event loop so expiries are serialized with everything else.
func WithExecutor(post func(func())) Option {
	return func(c *Channel) { c.post = post }
}

// Channel is the command channel of one session
type Channel struct {
	mu      sync.Mutex
	clock   clock.Clock
	store   *store.Store
	console *console.Console
	timeout time.Duration
	post    func(func())

	transport Transport
	queued    []string
	timer     *clock.Timer
	timerGen  uint64
	closed    bool
	notice    string

	handlers   map[string][]Handler
	onResponse ResponseHandler
}

// New creates a channel with no transport; commands queue until Open.
func New(clk clock.Clock, st *store.Store, con *console.Console, opts ...Option) *Channel {
	c := &Channel{
		clock:    clk,
		store:    st,
		console:  con,
		timeout:  DefaultResponseTimeout,
		post:     func(f func()) { f() },
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers h for a named event. Built-in handling of the event runs
// first.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnResponse sets the receiver of gdb_response batches.
func (c *Channel) OnResponse(h ResponseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponse = h
}

// Open attaches t and flushes queued commands in their original order.
func (c *Channel) Open(t Transport) error {
	c.mu.Lock()
	if c.closed {
		notice := c.notice
		c.mu.Unlock()
		return errors.ChannelClosed(notice)
	}
	c.transport = t
	queued := c.queued
	c.queued = nil
	c.mu.Unlock()

	c.store.Set(state.KeyConnected, true)
	glog.Infof("[ch]open, %d queued commands", len(queued))
	if len(queued) == 0 {
		return nil
	}
	return c.RunCommands(queued...)
}

// RunCommands sends cmds as one batch, or queues them while the
// transport is not open.
func (c *Channel) RunCommands(cmds ...string) error {
	if len(cmds) == 0 {
		return nil
	}
	c.mu.Lock()
	if c.closed || c.transport == nil {
		c.queued = append(c.queued, cmds...)
		closed, notice := c.closed, c.notice
		c.mu.Unlock()
		if closed {
			return errors.ChannelClosed(notice)
		}
		glog.V(2).Infof("[ch]queued %d commands", len(cmds))
		return nil
	}
	t := c.transport
	c.mu.Unlock()

	batchID := ulid.Make().String()
	if store.Value[bool](c.store, state.KeyShowAllSentCommands) {
		c.console.AddSentCommands(batchID, cmds)
	}
	env, err := NewEnvelope(EventRunCommand, commandBatch{Cmd: cmds})
	if err != nil {
		return err
	}
	glog.V(2).Infof("[ch]%s-> %s", batchID, strings.Join(cmds, " | "))
	if err := t.Send(env); err != nil {
		return errors.Wrap(errors.CodeChannelClosed, fmt.Sprintf("failed to send batch %s", batchID),
			"The transport is no longer writable. Reconnect the session.", err)
	}
	c.store.Set(state.KeyWaiting, true)
	c.startResponseTimer()
	return nil
}

// Deliver handles one inbound envelope. It must run on the session's
// event loop.
func (c *Channel) Deliver(env Envelope) {
	switch env.Event {
	case EventResponse:
		c.stopResponseTimer()
		c.store.Set(state.KeyWaiting, false)
		records, err := mi.ParseBatch(env.Data)
		if err != nil {
			glog.Errorf("[ch]dropping response: %v", err)
			break
		}
		c.mu.Lock()
		h := c.onResponse
		c.mu.Unlock()
		if h != nil {
			h(records)
		}
	case EventFatalServerError:
		c.console.Add(types.ConsoleStdErr, "Message from server: "+env.Message())
		c.terminate(env.Message())
	case EventErrorRunning:
		c.console.Add(types.ConsoleStdErr, "Error occurred on server when running gdb command: "+env.Message())
		c.terminate(env.Message())
	case EventServerError:
		c.console.Add(types.ConsoleStdErr, "Server message: "+env.Message())
	case EventDisconnect:
		c.console.Add(types.ConsoleStdErr, "The connection to the gdb session has been closed.")
		c.terminate("disconnected")
	}

	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[env.Event]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(env.Data)
	}
}

// Close ends the channel from the client side.
func (c *Channel) Close() error {
	return c.terminate("closed by client")
}

// IsOpen reports whether commands are currently sent rather than queued.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && !c.closed
}

// Closed reports whether the channel hit a terminal failure, and its notice.
func (c *Channel) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.notice
}

// Queued returns the commands waiting to be sent.
func (c *Channel) Queued() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queued...)
}

func (c *Channel) terminate(notice string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.notice = notice
	t := c.transport
	c.transport = nil
	c.timer.Stop()
	c.timer = nil
	c.timerGen++
	c.mu.Unlock()

	glog.Warningf("[ch]closed: %s", notice)
	c.store.Set(state.KeyFatalNotice, notice)
	c.store.Set(state.KeyConnected, false)
	c.store.Set(state.KeyWaiting, false)
	if t == nil {
		return nil
	}
	return t.Close()
}

func (c *Channel) startResponseTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer.Stop()
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.timeout, func() {
		c.post(func() { c.responseTimedOut(gen) })
	})
}

func (c *Channel) stopResponseTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer.Stop()
	c.timer = nil
	c.timerGen++
}

// responseTimedOut ignores expiries of timers that were restarted or
// stopped after they fired but before the expiry ran.
func (c *Channel) responseTimedOut(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	closed := c.closed
	c.mu.Unlock()

	state.ClearProgramState(c.store)
	c.store.Set(state.KeyWaiting, false)
	if closed {
		return
	}
	seconds := int(c.timeout / time.Second)
	glog.Warningf("[ch]no response after %s", c.timeout)
	c.console.Add(types.ConsoleOutput, fmt.Sprintf(
		"No gdb response received after %d seconds. Possible reasons include: "+
			"gdb or the debugged process is not running; "+
			"the program is busy and needs to be interrupted; "+
			"or something is taking a long time to finish, in which case keep waiting.", seconds))
}
