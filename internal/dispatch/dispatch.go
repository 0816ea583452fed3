// Package dispatch routes MI records delivered by the backend to the
// components that own them. It is the only writer of program state
// transitions (ready, running, paused, exited).
//
// Result payloads are decoded by mi.Classify into the closed set of
// mi.Result shapes; every shape present in a payload is handled.
package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/ctagard/gdbmi-mcp/internal/breakpoints"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	"github.com/ctagard/gdbmi-mcp/internal/expr"
	"github.com/ctagard/gdbmi-mcp/internal/memory"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/registers"
	"github.com/ctagard/gdbmi-mcp/internal/source"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

const (
	msgNotRunning   = "The program is not being run."
	msgNoExecutable = "No executable file specified"
	msgMachTaskPort = "Unable to find Mach task port"

	reverseFeature = "reverse"
)

// Runner sends command batches to gdb.
type Runner interface {
	RunCommands(cmds ...string) error
}

// Dispatcher handles delivered batches. It must only be used from the
// session event loop.
type Dispatcher struct {
	store       *store.Store
	console     *console.Console
	run         Runner
	breakpoints *breakpoints.Manager
	registers   *registers.Manager
	expr        *expr.Engine
	source      *source.Manager
	memory      *memory.Cache
}

// Components bundles the handlers a Dispatcher routes to.
type Components struct {
	Breakpoints *breakpoints.Manager
	Registers   *registers.Manager
	Expr        *expr.Engine
	Source      *source.Manager
	Memory      *memory.Cache
}

func New(st *store.Store, con *console.Console, run Runner, c Components) *Dispatcher {
	return &Dispatcher{
		store:       st,
		console:     con,
		run:         run,
		breakpoints: c.Breakpoints,
		registers:   c.Registers,
		expr:        c.Expr,
		source:      c.Source,
		memory:      c.Memory,
	}
}

// HandleBatch handles each record in delivery order.
func (d *Dispatcher) HandleBatch(records []mi.Record) {
	for _, r := range records {
		d.Handle(r)
	}
}

// Handle routes one record.
func (d *Dispatcher) Handle(r mi.Record) {
	switch r.Type {
	case mi.TypeResult:
		switch {
		case r.IsError():
			d.handleError(r)
		case r.IsDone():
			d.handleDone(r)
		}
	case mi.TypeConsole, mi.TypeOutput, mi.TypeTarget, mi.TypeLog:
		d.console.AddStream(r)
	case mi.TypeNotify:
		d.handleNotify(r)
	default:
		glog.V(1).Infof("[dispatch]ignoring record type %q", r.Type)
	}
}

func (d *Dispatcher) handleError(r mi.Record) {
	if r.Token == mi.TokenIgnoreErrors {
		return
	}
	if d.expr.HandleError(r) {
		return
	}
	if r.Token == mi.TokenDisassemblyMissingFile {
		d.source.MissingFileAssemblyFailed()
		return
	}

	msg := r.Payload.String("msg")
	switch {
	case strings.HasPrefix(msg, msgMachTaskPort):
		d.console.AddRecord(r)
		d.console.Add(types.ConsoleOutput,
			"See https://github.com/cs01/gdbgui/issues/55#issuecomment-288209648 to codesign gdb.")
		return
	case msg == msgNotRunning, strings.Contains(msg, msgNoExecutable):
		state.Ready(d.store)
	}
	d.console.AddRecord(r)

	binary := store.Value[string](d.store, state.KeyInferiorBinary)
	if binary != "" && msg == binary+": No such file or directory." {
		d.exited()
	}
}

func (d *Dispatcher) handleDone(r mi.Record) {
	results, err := mi.Classify(r.Payload)
	if err != nil {
		glog.Warningf("[dispatch]malformed payload (token %d): %v", r.Token, err)
	}
	for _, res := range results {
		if !d.handleResult(r.Token, res) {
			glog.Warningf("[dispatch]no handler for payload shape %q", res.Kind())
		}
	}
}

// handleResult applies one decoded shape. It reports false for a shape
// it does not know.
func (d *Dispatcher) handleResult(token mi.Token, res mi.Result) bool {
	switch res := res.(type) {
	case mi.BreakpointResult:
		d.savedBreakpoint(res.Breakpoint)
	case mi.BreakpointTableResult:
		d.breakpoints.SaveAll(res.Body)
	case mi.StackResult:
		state.UpdateStack(d.store, res.Frames)
	case mi.ThreadsResult:
		d.store.Set(state.KeyThreads, res.Threads.Threads)
		d.store.Set(state.KeyCurrentThreadID, res.CurrentThreadID)
	case mi.RegisterNamesResult:
		d.registers.SaveNames(res.Names)
	case mi.RegisterValuesResult:
		d.registers.SaveValues(res.Values)
	case mi.AssemblyResult:
		d.source.SaveAssembly(res, token)
	case mi.SourceFilesResult:
		d.saveSourceFiles(res.Files)
	case mi.MemoryResult:
		d.memory.Add(res.Ranges)
	case mi.LocalsResult:
		d.expr.SaveLocals(res.Locals)
	case mi.ChangelistResult:
		d.expr.HandleChangelist(res.Changes)
	case mi.ChildrenResult:
		d.expr.HandleChildren(token, res)
	case mi.VarCreatedResult:
		d.expr.HandleCreated(token, res)
	case mi.FeaturesResult:
		d.store.Set(state.KeyFeatures, res.Features)
		for _, f := range res.Features {
			if f == reverseFeature {
				d.store.Set(state.KeyReverse, true)
			}
		}
	case mi.TargetFeaturesResult:
		d.store.Set(state.KeyTargetFeatures, res.Features)
	default:
		return false
	}
	return true
}

// savedBreakpoint removes breakpoints gdb created twice at the same
// place, then shows where the new one landed.
func (d *Dispatcher) savedBreakpoint(rec types.BreakpointRecord) {
	var cmds []string
	for _, dup := range d.breakpoints.Duplicates(rec) {
		cmds = append(cmds, mi.BreakDelete(dup.DeleteNumber()))
	}
	bkpt := d.breakpoints.Save(rec)
	// Without debug symbols gdb reports only a function, which cannot
	// be shown.
	if bkpt.FullNameToDisplay != "" {
		state.ViewFile(d.store, bkpt.FullNameToDisplay, bkpt.LineNumber)
	}
	cmds = append(cmds, mi.CmdBreakList)
	if err := d.run.RunCommands(cmds...); err != nil {
		glog.Warningf("[dispatch]refreshing breakpoints: %v", err)
	}
}

func (d *Dispatcher) saveSourceFiles(files []types.SourceFileEntry) {
	if len(files) == 0 {
		d.store.Set(state.KeySourceFilePaths, []string{state.NoDebugSymbolsSourceFile})
		if store.Value[string](d.store, state.KeyInferiorBinary) != "" {
			d.console.Add(types.ConsoleOutput,
				"Warning: this binary was not compiled with debug symbols. Recompile with the -g flag for a better debugging experience.")
		}
		return
	}
	seen := make(map[string]bool, len(files))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.Fullname == "" || seen[f.Fullname] {
			continue
		}
		seen[f.Fullname] = true
		paths = append(paths, f.Fullname)
	}
	sort.Strings(paths)
	d.store.Set(state.KeySourceFilePaths, paths)
	d.store.Set(state.KeyLanguage, DetectLanguage(paths))
}

// DetectLanguage picks rust if any path ends in .rs, go if any ends in
// .go, and c_family otherwise.
func DetectLanguage(paths []string) types.Language {
	lang := types.LanguageCFamily
	for _, p := range paths {
		switch {
		case strings.HasSuffix(p, ".rs"):
			return types.LanguageRust
		case strings.HasSuffix(p, ".go"):
			lang = types.LanguageGo
		}
	}
	return lang
}

func (d *Dispatcher) handleNotify(r mi.Record) {
	switch r.Message {
	case mi.MessageStopped:
		d.stopped(r)
	case mi.MessageRunning:
		state.Running(d.store)
	case mi.MessageThreadGroupStarted:
		if pid := r.Payload.Get("pid"); pid.Exists() {
			d.store.Set(state.KeyInferiorPID, int(pid.Int()))
		}
	case mi.MessageConnected:
		d.remoteConnected()
	}
}

func (d *Dispatcher) stopped(r mi.Record) {
	reason := r.Payload.String("reason")
	if reason == "" {
		return
	}
	if strings.Contains(reason, "exited") {
		d.exited()
		return
	}

	details := &types.StoppedDetails{
		Reason:            reason,
		ThreadID:          r.Payload.String("thread-id"),
		AllThreadsStopped: r.Payload.String("stopped-threads") == "all",
		SignalName:        r.Payload.String("signal-name"),
		SignalMeaning:     r.Payload.String("signal-meaning"),
	}
	if r.Payload.Get("frame").IsObject() {
		var f types.Frame
		if err := r.Payload.Decode("frame", &f); err == nil {
			details.Frame = &f
		}
	}
	d.store.Set(state.KeyStoppedDetails, details)
	state.Paused(d.store, details.Frame)

	if reason == "signal-received" && details.SignalName != "SIGINT" {
		d.console.Add(types.ConsoleOutput,
			fmt.Sprintf("Signal received: (%s, %s).", details.SignalMeaning, details.SignalName),
			"If the program exited due to a fault, you can attempt to re-enter the state of the program when the fault occurred by running the command 'backtrace' in the gdb terminal.")
	}
	d.Refresh()
}

// Refresh re-reads threads, locals, expressions, registers, memory,
// breakpoints and the stack.
func (d *Dispatcher) Refresh() {
	cmds := mi.RefreshCommands(d.registers.UpdateCommands(), d.memory.RefreshCommands())
	if err := d.run.RunCommands(cmds...); err != nil {
		glog.Warningf("[dispatch]refresh: %v", err)
	}
}

// exited resets everything tied to the inferior process.
func (d *Dispatcher) exited() {
	state.Exited(d.store)
	d.expr.ClearLocals()
	d.memory.Clear()
}

func (d *Dispatcher) remoteConnected() {
	if !store.Value[bool](d.store, state.KeyAutoBreakOnMain) {
		d.console.Add(types.ConsoleOutput,
			`Connected to remote target! Add breakpoint(s), then press "continue".`)
		return
	}
	d.console.Add(types.ConsoleOutput,
		"Connected to remote target! Adding breakpoint to main, then continuing target execution.")
	if err := d.run.RunCommands(mi.CmdBreakInsertMain, mi.CmdExecContinue, mi.CmdBreakList); err != nil {
		glog.Warningf("[dispatch]remote connected: %v", err)
	}
}
