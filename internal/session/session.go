// Package session owns one gdb session: its store, command channel,
// dispatcher and the components the dispatcher routes to. All engine
// work runs on the session's event loop; callers reach it through Do.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/ctagard/gdbmi-mcp/internal/backend"
	"github.com/ctagard/gdbmi-mcp/internal/breakpoints"
	"github.com/ctagard/gdbmi-mcp/internal/channel"
	"github.com/ctagard/gdbmi-mcp/internal/clock"
	"github.com/ctagard/gdbmi-mcp/internal/config"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	"github.com/ctagard/gdbmi-mcp/internal/dispatch"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/expr"
	"github.com/ctagard/gdbmi-mcp/internal/memory"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/registers"
	"github.com/ctagard/gdbmi-mcp/internal/source"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/internal/target"
	"github.com/ctagard/gdbmi-mcp/internal/version"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// MaxPastBinaries bounds the past_binaries preference.
const MaxPastBinaries = 20

// sourceKeys are the store keys the source view is derived from.
var sourceKeys = []string{
	state.KeyProgramState,
	state.KeyFullnameToRender,
	state.KeyLineToFlash,
	state.KeyPausedOnFrame,
	state.KeySourceSelectionState,
	state.KeyCurrentAssemblyAddr,
	state.KeyCachedSourceFiles,
}

// Options configures a new Session.
type Options struct {
	// URL of the backend's websocket endpoint. Ignored when Transport
	// is set.
	URL string
	// GdbPID reattaches to a gdb process the backend already runs.
	GdbPID int
	// GDBCommand overrides the command the backend starts gdb with.
	GDBCommand string
	// Remaps become substitute-path rules when a new gdb starts.
	Remaps map[string]string

	Config      *config.Config
	Preferences *config.Preferences
	Clock       clock.Clock

	// Transport, when set, is used instead of dialing URL.
	Transport channel.Transport
	// Reader, when set, replaces the configured file reader.
	Reader source.FileReader
}

// Session is one connection to a gdb backend.
type Session struct {
	ID        string
	URL       string
	CreatedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time

	cfg     *config.Config
	opts    Options
	clock   clock.Clock
	loop    *loop
	neg     *Context
	backend *backend.Client
	local   *source.LocalReader

	store       *store.Store
	console     *console.Console
	channel     *channel.Channel
	dispatch    *dispatch.Dispatcher
	breakpoints *breakpoints.Manager
	registers   *registers.Manager
	expr        *expr.Engine
	source      *source.Manager
	memory      *memory.Cache

	unsubscribe func()
}

func newSession(id string, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	s := &Session{
		ID:        id,
		URL:       opts.URL,
		CreatedAt: clk.Now(),
		lastUsed:  clk.Now(),
		cfg:       cfg,
		opts:      opts,
		clock:     clk,
		loop:      newLoop(),
	}
	post := func(f func()) { s.loop.post(f) }

	s.neg = newContext(id, opts.URL, clk.Now())
	s.store = store.New(clk, state.Initial(), store.WithDebounce(cfg.StoreDebounce.Std()))
	if opts.Preferences != nil {
		opts.Preferences.Apply(s.store)
		s.store.Use(opts.Preferences.Middleware())
	}
	s.console = console.New(s.store)
	s.console.SetLimit(cfg.MaxConsoleEntries)
	s.channel = channel.New(clk, s.store, s.console,
		channel.WithResponseTimeout(cfg.ResponseTimeout.Std()),
		channel.WithExecutor(post))

	if opts.URL != "" {
		s.backend = backend.New(opts.URL, headerOf(cfg.Backend.Headers))
	}
	reader, err := s.reader(opts.Reader)
	if err != nil {
		s.loop.stop()
		return nil, err
	}

	s.breakpoints = breakpoints.New(s.store)
	s.registers = registers.New(s.store)
	s.expr = expr.New(s.store, s.console, s.channel, mi.NewCorrelator())
	s.expr.SetHistoryLimit(cfg.HistoryLimit)
	s.memory = memory.New(s.store, s.console, s.channel)
	s.source = source.New(s.store, s.console, reader, s.neg, s.channel,
		source.WithExecutor(post),
		source.WithReadTimeout(cfg.Backend.ReadTimeout.Std()))
	s.dispatch = dispatch.New(s.store, s.console, s.channel, dispatch.Components{
		Breakpoints: s.breakpoints,
		Registers:   s.registers,
		Expr:        s.expr,
		Source:      s.source,
		Memory:      s.memory,
	})

	s.channel.OnResponse(s.dispatch.HandleBatch)
	s.channel.On(channel.EventConnection, s.connectionEvent)
	s.channel.On(channel.EventGdbPID, s.gdbPID)
	s.unsubscribe = s.store.SubscribeToKeys(sourceKeys, func([]string) {
		post(s.source.Sync)
	})
	return s, nil
}

// reader picks the file reader: an explicit override, local disk with
// change watching, or the backend's read-file endpoint.
func (s *Session) reader(override source.FileReader) (source.FileReader, error) {
	if override != nil {
		return override, nil
	}
	if s.cfg.Backend.Sources == config.SourceBackend && s.backend != nil {
		return s.backend, nil
	}
	local, err := source.NewLocalReader(func(path string) {
		s.loop.post(func() {
			s.neg.ForgetMissingFile(path)
			s.source.Invalidate(path)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch source files: %w", err)
	}
	s.local = local
	return local, nil
}

func headerOf(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// Connect opens the transport. Commands issued earlier are flushed once
// it is open. The gdb version is resolved first so inline disassembly
// uses the right mode.
func (s *Session) Connect(ctx context.Context) error {
	v, line := version.ResolveGDB(ctx, s.cfg.GDB.Version, s.cfg.GDB.Path)
	mode := version.DisassemblyMode(v)
	glog.Infof("[session]%s gdb version %q, disassembly mode %d", s.ID, line, mode)

	t := s.opts.Transport
	if t == nil {
		u, err := s.dialURL()
		if err != nil {
			return debugerrors.ConnectFailed(s.URL, err)
		}
		ws, err := channel.Dial(ctx, u, headerOf(s.cfg.Backend.Headers), func(env channel.Envelope) {
			s.loop.post(func() { s.channel.Deliver(env) })
		})
		if err != nil {
			return debugerrors.ConnectFailed(s.URL, err)
		}
		t = ws
	}
	return s.Do(ctx, func() error {
		s.source.SetDisassemblyMode(mode)
		s.store.Set(state.KeyGdbVersion, line)
		return s.channel.Open(t)
	})
}

func (s *Session) dialURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if s.opts.GdbPID > 0 {
		q.Set("gdbpid", strconv.Itoa(s.opts.GdbPID))
	}
	cmd := s.opts.GDBCommand
	if cmd == "" {
		cmd = s.cfg.GDB.Command
	}
	if cmd != "" && cmd != "gdb" {
		q.Set("gdb_command", cmd)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connectionEvent reports the backend's view of the gdb process. A
// failed connection closes the channel; a fresh gdb gets the initial
// commands and an existing one is asked for its current state.
func (s *Session) connectionEvent(data json.RawMessage) {
	var ev types.ConnectionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		glog.Errorf("[session]bad %s: %v", channel.EventConnection, err)
		return
	}
	if ev.Message != "" {
		typ := types.ConsoleOutput
		if !ev.OK {
			typ = types.ConsoleStdErr
		}
		s.console.Add(typ, ev.Message)
	}
	if !ev.OK {
		s.channel.Close()
		return
	}
	s.store.Set(state.KeyGdbPID, ev.PID)
	if ev.StartedNewGdbProcess {
		s.run(mi.InitialCommands(s.opts.Remaps)...)
	} else {
		s.dispatch.Refresh()
	}
}

func (s *Session) gdbPID(data json.RawMessage) {
	var pid int
	if err := json.Unmarshal(data, &pid); err != nil {
		glog.Errorf("[session]bad %s: %v", channel.EventGdbPID, err)
		return
	}
	s.store.Set(state.KeyGdbPID, pid)
}

func (s *Session) run(cmds ...string) {
	if err := s.channel.RunCommands(cmds...); err != nil {
		glog.Warningf("[session]%s: %v", s.ID, err)
	}
}

// Do runs f on the event loop and waits for it. f may use every
// component of the session. Do must not be called from the loop.
func (s *Session) Do(ctx context.Context, f func() error) error {
	s.touch()
	errc := make(chan error, 1)
	if !s.loop.post(func() { errc <- f() }) {
		return debugerrors.ChannelClosed("session closed")
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.loop.done:
		return debugerrors.ChannelClosed("session closed")
	}
}

// Post queues f on the event loop without waiting.
func (s *Session) Post(f func()) {
	s.loop.post(f)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.clock.Now()
	s.mu.Unlock()
}

// LastUsed is when the session last ran work for a caller.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Component accessors. They must only be used inside Do.

func (s *Session) Store() *store.Store { return s.store }
func (s *Session) Console() *console.Console { return s.console }
func (s *Session) Channel() *channel.Channel { return s.channel }
func (s *Session) Breakpoints() *breakpoints.Manager { return s.breakpoints }
func (s *Session) Registers() *registers.Manager { return s.registers }
func (s *Session) Expr() *expr.Engine { return s.expr }
func (s *Session) Source() *source.Manager { return s.source }
func (s *Session) Memory() *memory.Cache { return s.memory }
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.dispatch }
func (s *Session) Negatives() *Context { return s.neg }

// Run sends one raw MI batch.
func (s *Session) Run(ctx context.Context, cmds ...string) error {
	return s.Do(ctx, func() error { return s.channel.RunCommands(cmds...) })
}

// ConsoleCommand sends a command typed by the user, records it in the
// command history, and refreshes program state afterwards when the
// preference asks for it.
func (s *Session) ConsoleCommand(ctx context.Context, cmd string) error {
	return s.Do(ctx, func() error {
		history := store.Value[[]string](s.store, state.KeyCommandHistory)
		s.store.Set(state.KeyCommandHistory, pushFront(history, cmd, s.cfg.HistoryLimit))
		cmds := []string{cmd}
		if store.Value[bool](s.store, state.KeyRefreshAfterConsole) {
			cmds = append(cmds, mi.RefreshCommands(s.registers.UpdateCommands(), s.memory.RefreshCommands())...)
		}
		return s.channel.RunCommands(cmds...)
	})
}

// LoadBinary loads binary with args, adding a breakpoint on main when
// auto_add_breakpoint_to_main is set.
func (s *Session) LoadBinary(ctx context.Context, binary, args string) error {
	if binary == "" {
		return debugerrors.MissingParameter("binary", "path of the program to debug")
	}
	modified := s.binaryModTime(ctx, binary)
	return s.Do(ctx, func() error {
		entry := binary
		if args != "" {
			entry += " " + args
		}
		past := store.Value[[]string](s.store, state.KeyPastBinaries)
		s.store.Set(state.KeyPastBinaries, pushFront(past, entry, MaxPastBinaries))
		s.setBinary(binary, modified)
		breakOnMain := store.Value[bool](s.store, state.KeyAutoBreakOnMain)
		return s.channel.RunCommands(mi.LoadBinary(binary, args, breakOnMain)...)
	})
}

// LoadTarget sends the batch for a resolved launch configuration.
func (s *Session) LoadTarget(ctx context.Context, t *target.Target) error {
	var modified int64
	if t.Binary() != "" {
		modified = s.binaryModTime(ctx, t.Binary())
	}
	return s.Do(ctx, func() error {
		if t.Binary() != "" {
			s.setBinary(t.Binary(), modified)
		}
		return s.channel.RunCommands(t.Commands()...)
	})
}

func (s *Session) setBinary(binary string, modified int64) {
	s.clearProgramState()
	s.source.Clear()
	s.store.Set(state.KeyInferiorBinary, binary)
	s.store.Set(state.KeyBinaryLastModified, modified)
}

// clearProgramState forgets everything that belonged to the previous
// process: frame and thread keys, cached memory and the variable objects
// of its locals. Watch expressions survive.
func (s *Session) clearProgramState() {
	state.ClearProgramState(s.store)
	s.memory.Clear()
	s.expr.ClearLocals()
}

// binaryModTime asks the backend when binary was last built, falling
// back to the local disk. Zero means unknown.
func (s *Session) binaryModTime(ctx context.Context, binary string) int64 {
	if s.backend != nil {
		sec, err := s.backend.LastModified(ctx, binary)
		if err == nil {
			return int64(sec)
		}
		glog.V(1).Infof("[session]last modified of %s: %v", binary, err)
	}
	if fi, err := os.Stat(binary); err == nil {
		return fi.ModTime().Unix()
	}
	return 0
}

// Exec actions accepted by Exec.
const (
	ExecRun       = "run"
	ExecContinue  = "continue"
	ExecNext      = "next"
	ExecStep      = "step"
	ExecFinish    = "finish"
	ExecNextInsn  = "nexti"
	ExecStepInsn  = "stepi"
	ExecInterrupt = "interrupt"
	ExecReturn    = "return"
)

var execCommands = map[string]string{
	ExecContinue: mi.CmdExecContinue,
	ExecNext:     mi.CmdExecNext,
	ExecStep:     mi.CmdExecStep,
	ExecFinish:   mi.CmdExecFinish,
	ExecNextInsn: mi.CmdExecNextInsn,
	ExecStepInsn: mi.CmdExecStepInsn,
}

// Exec controls the inferior. Stepping commands run in reverse when
// reverse is set or the debug_in_reverse flag is on.
func (s *Session) Exec(ctx context.Context, action string, reverse bool) error {
	return s.Do(ctx, func() error {
		reverse = reverse || store.Value[bool](s.store, state.KeyDebugInReverse)
		switch action {
		case ExecRun:
			state.Running(s.store)
			s.clearProgramState()
			return s.channel.RunCommands(mi.CmdExecRun)
		case ExecInterrupt:
			return s.channel.RunCommands(mi.CmdExecInterrupt)
		case ExecReturn:
			return s.channel.RunCommands(mi.CmdExecReturn)
		}
		cmd, ok := execCommands[action]
		if !ok {
			return debugerrors.InvalidParameter("action", action,
				"one of run, continue, next, step, finish, nexti, stepi, interrupt, return")
		}
		state.Running(s.store)
		return s.channel.RunCommands(mi.ExecCommand(cmd, reverse))
	})
}

// SelectFrame makes level the selected stack frame and refreshes.
func (s *Session) SelectFrame(ctx context.Context, level int) error {
	return s.Do(ctx, func() error {
		state.SelectFrame(s.store, level)
		if err := s.channel.RunCommands(mi.StackSelectFrame(level)); err != nil {
			return err
		}
		s.dispatch.Refresh()
		return nil
	})
}

// SelectThread makes id the current thread and refreshes.
func (s *Session) SelectThread(ctx context.Context, id string) error {
	return s.Do(ctx, func() error {
		if err := s.channel.RunCommands(mi.ThreadSelect(id)); err != nil {
			return err
		}
		s.dispatch.Refresh()
		return nil
	})
}

// ViewSource shows fullname around line and waits until that window is
// cached or known to be unavailable.
func (s *Session) ViewSource(ctx context.Context, fullname string, line int) error {
	var done <-chan error
	err := s.Do(ctx, func() error {
		state.ViewFile(s.store, fullname, line)
		done = s.source.View(fullname, line)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendSignal asks the backend to signal pid. pid 0 targets the
// inferior.
func (s *Session) SendSignal(ctx context.Context, signal string, pid int) (string, error) {
	if s.backend == nil {
		return "", debugerrors.NotConnected(s.ID)
	}
	if pid == 0 {
		pid = store.Value[int](s.store, state.KeyInferiorPID)
	}
	if pid == 0 {
		return "", debugerrors.InvalidParameter("pid", pid, "a running process id")
	}
	msg, err := s.backend.SendSignal(ctx, signal, pid)
	if err != nil {
		return "", err
	}
	s.Post(func() { s.console.Add(types.ConsoleOutput, msg) })
	return msg, nil
}

// WaitFor returns once ok holds for the value of key. Changes are
// observed as the store delivers them.
func (s *Session) WaitFor(ctx context.Context, key string, ok func(v any) bool) error {
	hit := make(chan struct{}, 1)
	check := func() bool {
		if !ok(s.store.Get(key)) {
			return false
		}
		select {
		case hit <- struct{}{}:
		default:
		}
		return true
	}
	unsubscribe := s.store.SubscribeToKeys([]string{key}, func([]string) { check() })
	defer unsubscribe()
	if check() {
		return nil
	}
	select {
	case <-hit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle returns once no batch is waiting for a response.
func (s *Session) WaitIdle(ctx context.Context) error {
	return s.WaitFor(ctx, state.KeyWaiting, func(v any) bool {
		waiting, _ := v.(bool)
		return !waiting
	})
}

// WaitStopped returns once the program is no longer running.
func (s *Session) WaitStopped(ctx context.Context) error {
	return s.WaitFor(ctx, state.KeyProgramState, func(v any) bool {
		return v != types.ProgramStateRunning
	})
}

// Snapshot copies the session state after delivering pending changes.
func (s *Session) Snapshot() map[string]any {
	s.store.Flush()
	return s.store.Snapshot()
}

// Info summarizes the session.
func (s *Session) Info() types.SessionInfo {
	return types.SessionInfo{
		SessionID:    s.ID,
		URL:          s.URL,
		Connected:    store.Value[bool](s.store, state.KeyConnected),
		ProgramState: state.ProgramState(s.store),
		GdbPID:       store.Value[int](s.store, state.KeyGdbPID),
		InferiorPID:  store.Value[int](s.store, state.KeyInferiorPID),
		Binary:       store.Value[string](s.store, state.KeyInferiorBinary),
	}
}

// Close ends the session. Pending work is dropped and outstanding file
// reads are cancelled.
func (s *Session) Close() error {
	var err error
	closed := make(chan struct{})
	if s.loop.post(func() {
		err = s.channel.Close()
		close(closed)
	}) {
		select {
		case <-closed:
		case <-s.loop.done:
		}
	}
	s.unsubscribe()
	s.source.Close()
	s.loop.stop()
	if s.local != nil {
		if cerr := s.local.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func pushFront(list []string, v string, limit int) []string {
	out := []string{v}
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
