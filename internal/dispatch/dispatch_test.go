package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/tidwall/sjson"

	"github.com/ctagard/gdbmi-mcp/internal/breakpoints"
	"github.com/ctagard/gdbmi-mcp/internal/clock"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/expr"
	"github.com/ctagard/gdbmi-mcp/internal/memory"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/registers"
	"github.com/ctagard/gdbmi-mcp/internal/source"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

type recorder struct{ cmds []string }

func (r *recorder) RunCommands(cmds ...string) error {
	r.cmds = append(r.cmds, cmds...)
	return nil
}

func (r *recorder) take() []string {
	out := r.cmds
	r.cmds = nil
	return out
}

type noFiles struct{}

func (noFiles) ReadFile(_ context.Context, path string, _, _ int) (types.FileChunk, error) {
	return types.FileChunk{}, debugerrors.FileMissing(path, nil)
}

type negatives map[string]bool

func (n negatives) IsMissingFile(f string) bool     { return n["f:"+f] }
func (n negatives) AddMissingFile(f string)          { n["f:"+f] = true }
func (n negatives) IsUnfetchableAddr(a string) bool { return n["a:"+a] }
func (n negatives) AddUnfetchableAddr(a string)      { n["a:"+a] = true }

type fixture struct {
	d    *Dispatcher
	st   *store.Store
	con  *console.Console
	run  *recorder
	expr *expr.Engine
	mem  *memory.Cache
	bps  *breakpoints.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(clock.Fake(time.Unix(0, 0)), state.Initial())
	con := console.New(st)
	run := &recorder{}
	src := source.New(st, con, noFiles{}, negatives{}, run)
	t.Cleanup(src.Close)
	f := &fixture{
		st:   st,
		con:  con,
		run:  run,
		expr: expr.New(st, con, run, mi.NewCorrelator()),
		mem:  memory.New(st, con, run),
		bps:  breakpoints.New(st),
	}
	f.d = New(st, con, run, Components{
		Breakpoints: f.bps,
		Registers:   registers.New(st),
		Expr:        f.expr,
		Source:      src,
		Memory:      f.mem,
	})
	return f
}

func done(token mi.Token, payload string) mi.Record {
	return mi.Record{Type: mi.TypeResult, Message: mi.MessageDone, Token: token, Payload: mi.NewPayload(payload)}
}

func failed(token mi.Token, msg string) mi.Record {
	raw, _ := sjson.Set(`{}`, "msg", msg)
	return mi.Record{Type: mi.TypeResult, Message: mi.MessageError, Token: token, Payload: mi.NewPayload(raw)}
}

func notify(message, payload string) mi.Record {
	return mi.Record{Type: mi.TypeNotify, Message: message, Payload: mi.NewPayload(payload)}
}

// shapes holds one minimal payload per result kind.
var shapes = map[mi.Kind]string{
	mi.KindBreakpoint:      `{"bkpt":{"number":"1","func":"main"}}`,
	mi.KindBreakpointTable: `{"BreakpointTable":{"body":[]}}`,
	mi.KindStack:           `{"stack":[{"level":"0"}]}`,
	mi.KindThreads:         `{"threads":[{"id":"1"}],"current-thread-id":"1"}`,
	mi.KindRegisterNames:   `{"register-names":["rax",""]}`,
	mi.KindRegisterValues:  `{"register-values":[{"number":"0","value":"0x1"}]}`,
	mi.KindAssembly:        `{"asm_insns":[{"address":"0x1","inst":"nop"}]}`,
	mi.KindSourceFiles:     `{"files":[{"file":"a.c","fullname":"/a.c"}]}`,
	mi.KindMemory:          `{"memory":[{"begin":"0x10","offset":"0x0","end":"0x11","contents":"41"}]}`,
	mi.KindLocals:          `{"variables":[{"name":"i","type":"int","value":"1"}]}`,
	mi.KindChangelist:      `{"changelist":[]}`,
	mi.KindChildren:        `{"numchild":"0","has_more":"0","children":[]}`,
	mi.KindVarCreated:      `{"name":"var1","numchild":"0","value":"1","type":"int"}`,
	mi.KindFeatures:        `{"features":["async"]}`,
	mi.KindTargetFeatures:  `{"target_features":["async"]}`,
}

func TestEveryShapeIsHandled(t *testing.T) {
	f := newFixture(t)
	for _, k := range mi.AllKinds {
		raw, ok := shapes[k]
		if !ok {
			t.Fatalf("no payload for kind %q", k)
		}
		results, err := mi.Classify(mi.NewPayload(raw))
		if err != nil {
			t.Fatalf("classify %q: %v", k, err)
		}
		var found bool
		for _, res := range results {
			if res.Kind() == k {
				found = true
				if !f.d.handleResult(mi.TokenDisassemblyMissingFile, res) {
					t.Errorf("kind %q not handled", k)
				}
			}
		}
		if !found {
			t.Errorf("payload for %q classified as %v", k, results)
		}
	}
}

func TestIgnoredErrorsAreSilent(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(failed(mi.TokenIgnoreErrors, "No symbol table is loaded."))
	assert.Equal(t, len(f.con.Entries()), 0)
}

func TestNotRunningSetsReady(t *testing.T) {
	f := newFixture(t)
	state.Paused(f.st, nil)
	f.d.Handle(failed(mi.NoToken, "The program is not being run."))
	assert.Equal(t, state.ProgramState(f.st), types.ProgramStateReady)
	assert.Equal(t, len(f.con.Entries()), 1)
	assert.Equal(t, f.con.Entries()[0].Type, types.ConsoleStdErr)

	state.Paused(f.st, nil)
	f.d.Handle(failed(mi.NoToken, "No executable file specified.\nUse the \"file\" command."))
	assert.Equal(t, state.ProgramState(f.st), types.ProgramStateReady)
}

func TestMissingBinaryMeansExited(t *testing.T) {
	f := newFixture(t)
	f.st.Set(state.KeyInferiorBinary, "/bin/prog")
	f.st.Set(state.KeyInferiorPID, 42)
	f.d.Handle(failed(mi.NoToken, "/bin/prog: No such file or directory."))
	assert.Equal(t, state.ProgramState(f.st), types.ProgramStateExited)
	assert.Equal(t, store.Value[int](f.st, state.KeyInferiorPID), 0)
}

func TestMissingFileAssemblyError(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(failed(mi.TokenDisassemblyMissingFile, "Cannot access memory at address 0x0"))
	entries := f.con.Entries()
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Type, types.ConsoleOutput)
}

func TestExpressionErrorsGoToEngine(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.expr.CreateExpression("nosuch", expr.KindExpr), nil)
	f.run.take()
	f.d.Handle(failed(mi.FirstCorrelationToken, "-var-create: unable to create variable object"))
	assert.Equal(t, len(f.con.Entries()), 1)
	assert.Equal(t, len(f.expr.Roots()), 0)

	assert.Equal(t, f.expr.Hover("nosuch"), nil)
	f.run.take()
	f.d.Handle(failed(mi.FirstCorrelationToken+1, "-var-create: unable to create variable object"))
	assert.Equal(t, len(f.con.Entries()), 1)
}

func TestStoppedIssuesRefresh(t *testing.T) {
	f := newFixture(t)
	raw, _ := sjson.Set(`{}`, "reason", "breakpoint-hit")
	raw, _ = sjson.Set(raw, "thread-id", "1")
	raw, _ = sjson.Set(raw, "stopped-threads", "all")
	raw, _ = sjson.Set(raw, "frame", map[string]any{"fullname": "/src/main.c", "line": "7", "addr": "0x401000"})
	f.d.Handle(notify(mi.MessageStopped, raw))

	assert.Equal(t, state.ProgramState(f.st), types.ProgramStatePaused)
	details := store.Value[*types.StoppedDetails](f.st, state.KeyStoppedDetails)
	assert.Equal(t, details.AllThreadsStopped, true)
	assert.Equal(t, details.Frame.Fullname, "/src/main.c")
	assert.Equal(t, store.Value[int](f.st, state.KeyLineToFlash), 7)
	assert.Equal(t, f.run.take(), []string{
		"1-thread-info",
		"1-stack-list-variables --simple-values",
		"1-var-update --all-values *",
		"1-data-list-register-names",
		"1-data-list-register-values x",
		"1-break-list",
		"1-stack-list-frames",
	})
	assert.Equal(t, len(f.con.Entries()), 0)
}

func TestSignalWritesExplanation(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(notify(mi.MessageStopped, `{"reason":"signal-received","signal-name":"SIGINT","signal-meaning":"Interrupt"}`))
	assert.Equal(t, len(f.con.Entries()), 0)

	f.d.Handle(notify(mi.MessageStopped, `{"reason":"signal-received","signal-name":"SIGSEGV","signal-meaning":"Segmentation fault"}`))
	entries := f.con.Entries()
	assert.Equal(t, len(entries), 2)
	assert.Equal(t, entries[0].Value, "Signal received: (Segmentation fault, SIGSEGV).")
}

// TestExitedScenario verifies an exit notification clears everything
// tied to the inferior.
func TestExitedScenario(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(notify(mi.MessageThreadGroupStarted, `{"id":"i1","pid":"4242"}`))
	assert.Equal(t, store.Value[int](f.st, state.KeyInferiorPID), 4242)
	f.d.Handle(notify(mi.MessageRunning, `{"thread-id":"all"}`))
	assert.Equal(t, state.ProgramState(f.st), types.ProgramStateRunning)
	f.d.Handle(done(mi.NoToken, `{"stack":[{"level":"0","fullname":"/a.c","line":"3"}]}`))
	f.d.Handle(done(mi.NoToken, `{"memory":[{"begin":"0x10","offset":"0x0","end":"0x11","contents":"41"}]}`))
	f.run.take()

	f.d.Handle(notify(mi.MessageStopped, `{"reason":"exited-normally"}`))

	assert.Equal(t, state.ProgramState(f.st), types.ProgramStateExited)
	assert.Equal(t, store.Value[int](f.st, state.KeyInferiorPID), 0)
	assert.Equal(t, len(store.Value[[]types.Frame](f.st, state.KeyStack)), 0)
	assert.Equal(t, len(f.mem.Entries()), 0)
	assert.Equal(t, len(f.run.take()), 0)
}

func TestBreakpointDuplicatesAreDeleted(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(done(mi.NoToken, `{"bkpt":{"number":"1","fullname":"/a.c","line":"4","func":"main"}}`))
	assert.Equal(t, f.run.take(), []string{"-break-list"})
	assert.Equal(t, store.Value[string](f.st, state.KeyFullnameToRender), "/a.c")
	assert.Equal(t, store.Value[types.SelectionState](f.st, state.KeySourceSelectionState), types.SelectionUserSelection)

	f.d.Handle(done(mi.NoToken, `{"bkpt":{"number":"2","fullname":"/a.c","line":"4","func":"main"}}`))
	assert.Equal(t, f.run.take(), []string{"-break-delete 1", "-break-list"})
	assert.Equal(t, len(f.bps.List()), 2)
}

func TestSourceFiles(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(done(mi.NoToken, `{"files":[{"file":"b.go","fullname":"/b.go"},{"file":"a.c","fullname":"/a.c"},{"file":"a.c","fullname":"/a.c"}]}`))
	assert.Equal(t, store.Value[[]string](f.st, state.KeySourceFilePaths), []string{"/a.c", "/b.go"})
	assert.Equal(t, store.Value[types.Language](f.st, state.KeyLanguage), types.LanguageGo)

	f.st.Set(state.KeyInferiorBinary, "/bin/prog")
	f.d.Handle(done(mi.NoToken, `{"files":[]}`))
	assert.Equal(t, store.Value[[]string](f.st, state.KeySourceFilePaths), []string{state.NoDebugSymbolsSourceFile})
	assert.Equal(t, len(f.con.Entries()), 1)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		paths []string
		want  types.Language
	}{
		{nil, types.LanguageCFamily},
		{[]string{"/a.c", "/b.h"}, types.LanguageCFamily},
		{[]string{"/a.go", "/b.c"}, types.LanguageGo},
		{[]string{"/a.go", "/lib.rs"}, types.LanguageRust},
	}
	for _, tt := range tests {
		assert.Equal(t, DetectLanguage(tt.paths), tt.want)
	}
}

func TestFeatures(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(done(mi.NoToken, `{"features":["async","reverse"]}`))
	assert.Equal(t, store.Value[bool](f.st, state.KeyReverse), true)
	assert.Equal(t, store.Value[[]string](f.st, state.KeyFeatures), []string{"async", "reverse"})
}

func TestStreamsGoToTranscript(t *testing.T) {
	f := newFixture(t)
	f.d.HandleBatch([]mi.Record{
		{Type: mi.TypeConsole, Stream: "stdout", Payload: mi.NewPayload(`"Breakpoint 1 at 0x1139\n"`)},
		{Type: mi.TypeOutput, Stream: "stderr", Payload: mi.NewPayload(`"oops"`)},
	})
	entries := f.con.Entries()
	assert.Equal(t, len(entries), 2)
	assert.Equal(t, entries[0].Type, types.ConsoleStdOut)
	assert.Equal(t, entries[1].Type, types.ConsoleStdErr)
}

func TestRemoteConnectedBreaksOnMain(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(notify(mi.MessageConnected, `{}`))
	assert.Equal(t, f.run.take(), []string{"-break-insert main", "-exec-continue", "-break-list"})

	f.st.Set(state.KeyAutoBreakOnMain, false)
	f.d.Handle(notify(mi.MessageConnected, `{}`))
	assert.Equal(t, len(f.run.take()), 0)
}
