package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/ctagard/gdbmi-mcp/internal/channel"
	"github.com/ctagard/gdbmi-mcp/internal/config"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/session"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

const done = `{"type":"result","message":"done","token":null,"payload":null}`

// gdbStub answers every command batch with the records reply returns.
type gdbStub struct {
	mu      sync.Mutex
	sess    *session.Session
	batches [][]string
	reply   func(cmds []string) []string
}

func (g *gdbStub) Send(env channel.Envelope) error {
	if env.Event != channel.EventRunCommand {
		return nil
	}
	cmds, err := env.CommandBatch()
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.batches = append(g.batches, cmds)
	sess := g.sess
	g.mu.Unlock()
	if sess == nil {
		return nil
	}
	records := []string{done}
	if g.reply != nil {
		records = g.reply(cmds)
	}
	data := json.RawMessage("[" + strings.Join(records, ",") + "]")
	sess.Post(func() {
		sess.Channel().Deliver(channel.Envelope{Event: channel.EventResponse, Data: data})
	})
	return nil
}

func (g *gdbStub) Close() error { return nil }

func (g *gdbStub) commands() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, b := range g.batches {
		out = append(out, b...)
	}
	return out
}

type noSources struct{}

func (noSources) ReadFile(_ context.Context, path string, start, end int) (types.FileChunk, error) {
	lines := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		lines = append(lines, "int x;")
	}
	return types.FileChunk{Path: path, StartLine: start, EndLine: end, Lines: lines, NumLinesInFile: end}, nil
}

func testConfig(mode config.CapabilityMode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.GDB.Version = "12.1"
	cfg.ResponseTimeout = config.Duration(time.Second)
	return cfg
}

func newTestServer(t *testing.T, mode config.CapabilityMode) (*Server, *gdbStub) {
	t.Helper()
	s, err := NewServer(testConfig(mode))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(s.Close)
	stub := &gdbStub{}
	s.sessionOptions = func(o *session.Options) {
		o.Transport = stub
		o.Reader = noSources{}
	}
	return s, stub
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return tc.Text
}

// connect starts a session and lets the stub answer for it.
func connect(t *testing.T, s *Server, stub *gdbStub) string {
	t.Helper()
	res, err := s.handleGdbConnect(context.Background(), call(map[string]any{}))
	assert.Equal(t, err, nil)
	assert.Equal(t, res.IsError, false)
	id := gjson.Get(text(t, res), "sessionId").String()
	sess, err := s.Sessions().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	stub.mu.Lock()
	stub.sess = sess
	stub.mu.Unlock()
	return id
}

func TestConnectListDisconnect(t *testing.T) {
	s, stub := newTestServer(t, config.ModeFull)
	ctx := context.Background()
	id := connect(t, s, stub)

	res, _ := s.handleGdbListSessions(ctx, call(nil))
	body := text(t, res)
	assert.Equal(t, gjson.Get(body, "count").Int(), int64(1))
	assert.Equal(t, gjson.Get(body, "sessions.0.sessionId").String(), id)
	assert.Equal(t, gjson.Get(body, "sessions.0.connected").Bool(), true)

	res, _ = s.handleGdbDisconnect(ctx, call(map[string]any{"sessionId": id}))
	assert.Equal(t, res.IsError, false)
	res, _ = s.handleGdbListSessions(ctx, call(nil))
	assert.Equal(t, gjson.Get(text(t, res), "count").Int(), int64(0))

	res, _ = s.handleGdbDisconnect(ctx, call(map[string]any{"sessionId": id}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, strings.Contains(text(t, res), "SESSION_NOT_FOUND"), true)
}

func TestConnectRejectsBadRemaps(t *testing.T) {
	s, _ := newTestServer(t, config.ModeFull)
	res, _ := s.handleGdbConnect(context.Background(), call(map[string]any{"remaps": "{not json"}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, len(s.Sessions().List()), 0)
}

func TestReadOnlyRefusesControl(t *testing.T) {
	s, stub := newTestServer(t, config.ModeReadOnly)
	ctx := context.Background()
	id := connect(t, s, stub)

	res, _ := s.handleGdbExec(ctx, call(map[string]any{"sessionId": id, "action": "continue"}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, strings.Contains(text(t, res), "PERMISSION_DENIED"), true)

	res, _ = s.handleGdbCommand(ctx, call(map[string]any{"sessionId": id, "command": "info frame"}))
	assert.Equal(t, res.IsError, true)

	res, _ = s.handleGdbExpression(ctx, call(map[string]any{"sessionId": id, "action": "assign", "name": "var1", "value": "3"}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, len(stub.commands()), 0)
}

func TestCommandReturnsItsOutput(t *testing.T) {
	s, stub := newTestServer(t, config.ModeFull)
	stub.reply = func(cmds []string) []string {
		if cmds[0] == "info frame" {
			return []string{
				`{"type":"console","message":null,"token":null,"payload":"Stack level 0, frame at 0x7ffe:\n","stream":"stdout"}`,
				done,
			}
		}
		return []string{done}
	}
	id := connect(t, s, stub)

	res, _ := s.handleGdbCommand(context.Background(), call(map[string]any{"sessionId": id, "command": "info frame"}))
	assert.Equal(t, res.IsError, false)
	body := text(t, res)
	assert.Equal(t, gjson.Get(body, "status").String(), "done")
	var values []string
	for _, e := range gjson.Get(body, "output").Array() {
		values = append(values, e.Get("value").String())
	}
	assert.Equal(t, strings.Contains(strings.Join(values, "\n"), "Stack level 0, frame at 0x7ffe:"), true)
	assert.Equal(t, stub.commands()[0], "info frame")
}

func TestCommandBatch(t *testing.T) {
	s, stub := newTestServer(t, config.ModeFull)
	id := connect(t, s, stub)

	res, _ := s.handleGdbCommand(context.Background(), call(map[string]any{
		"sessionId": id,
		"commands":  `["-thread-info", "-stack-list-frames"]`,
		"wait":      false,
	}))
	assert.Equal(t, res.IsError, false)
	assert.Equal(t, gjson.Get(text(t, res), "status").String(), "sent")
	assert.Equal(t, stub.commands(), []string{"-thread-info", "-stack-list-frames"})

	res, _ = s.handleGdbCommand(context.Background(), call(map[string]any{"sessionId": id, "commands": `"-thread-info"`}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, strings.Contains(text(t, res), "INVALID_JSON"), true)
}

func TestBreakpointCommands(t *testing.T) {
	s, stub := newTestServer(t, config.ModeFull)
	ctx := context.Background()
	id := connect(t, s, stub)

	res, _ := s.handleGdbBreakpoint(ctx, call(map[string]any{"sessionId": id, "action": "toggle", "path": "/src/main.c", "line": 12}))
	assert.Equal(t, res.IsError, false)
	res, _ = s.handleGdbBreakpoint(ctx, call(map[string]any{"sessionId": id, "action": "insert", "location": "parse_args"}))
	assert.Equal(t, res.IsError, false)
	res, _ = s.handleGdbBreakpoint(ctx, call(map[string]any{"sessionId": id, "action": "condition", "number": "2", "condition": "argc > 1"}))
	assert.Equal(t, res.IsError, false)
	res, _ = s.handleGdbBreakpoint(ctx, call(map[string]any{"sessionId": id, "action": "disable"}))
	assert.Equal(t, res.IsError, true)

	assert.Equal(t, stub.commands(), []string{
		`-break-insert "/src/main.c:12"`,
		"-break-insert parse_args",
		"-break-list",
		"-break-condition 2 argc > 1",
		"-break-list",
	})
}

func TestExecWaitsForStop(t *testing.T) {
	s, stub := newTestServer(t, config.ModeFull)
	stub.reply = func(cmds []string) []string {
		if cmds[0] == "-exec-next" {
			return []string{
				`{"type":"result","message":"running","token":null,"payload":null}`,
				`{"type":"notify","message":"stopped","token":null,"payload":{"reason":"end-stepping-range","thread-id":"1","stopped-threads":"all","frame":{"fullname":"/src/main.c","line":"8","addr":"0x401004","func":"main"}}}`,
			}
		}
		return []string{done}
	}
	id := connect(t, s, stub)

	res, _ := s.handleGdbExec(context.Background(), call(map[string]any{"sessionId": id, "action": "next"}))
	assert.Equal(t, res.IsError, false)
	body := text(t, res)
	assert.Equal(t, gjson.Get(body, "status").String(), "stopped")
	assert.Equal(t, gjson.Get(body, "session.programState").String(), string(types.ProgramStatePaused))
	assert.Equal(t, gjson.Get(body, "stoppedDetails.reason").String(), "end-stepping-range")
	assert.Equal(t, stub.commands()[0], "-exec-next")
}

func TestExecRejectsUnknownAction(t *testing.T) {
	s, stub := newTestServer(t, config.ModeFull)
	id := connect(t, s, stub)
	res, _ := s.handleGdbExec(context.Background(), call(map[string]any{"sessionId": id, "action": "jump"}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, strings.Contains(text(t, res), "INVALID_PARAMETER"), true)
}

func TestSourceView(t *testing.T) {
	s, stub := newTestServer(t, config.ModeReadOnly)
	id := connect(t, s, stub)

	res, _ := s.handleGdbSource(context.Background(), call(map[string]any{"sessionId": id}))
	assert.Equal(t, res.IsError, true)

	res, _ = s.handleGdbSource(context.Background(), call(map[string]any{"sessionId": id, "path": "/src/main.c", "line": 10}))
	assert.Equal(t, res.IsError, false)
	body := text(t, res)
	assert.Equal(t, gjson.Get(body, "fullname").String(), "/src/main.c")
	assert.Equal(t, gjson.Get(body, "lines.#(line==10).text").String(), "int x;")
}

func TestSourceViewOfUnreadableAddress(t *testing.T) {
	s, stub := newTestServer(t, config.ModeReadOnly)
	id := connect(t, s, stub)
	sess, _ := s.Sessions().Get(id)
	sess.Do(context.Background(), func() error {
		sess.Negatives().AddUnfetchableAddr("0x400500")
		sess.Store().Set(state.KeyCurrentAssemblyAddr, "0x400500")
		return nil
	})

	res, _ := s.handleGdbSource(context.Background(), call(map[string]any{"sessionId": id}))
	assert.Equal(t, res.IsError, true)
	assert.Equal(t, strings.HasPrefix(text(t, res), string(debugerrors.CodeAddressUnreadable)), true)
}

func TestMemoryReadSendsByteReads(t *testing.T) {
	s, stub := newTestServer(t, config.ModeReadOnly)
	id := connect(t, s, stub)

	res, _ := s.handleGdbMemory(context.Background(), call(map[string]any{"sessionId": id, "action": "read"}))
	assert.Equal(t, res.IsError, true)

	res, _ = s.handleGdbMemory(context.Background(), call(map[string]any{"sessionId": id, "start": "0x1000", "end": "0x1003"}))
	assert.Equal(t, res.IsError, false)
	assert.Equal(t, len(stub.commands()) > 0, true)
	assert.Equal(t, strings.HasPrefix(stub.commands()[0], "-data-read-memory"), true)
}

func TestExpressionCreate(t *testing.T) {
	s, stub := newTestServer(t, config.ModeReadOnly)
	stub.reply = func(cmds []string) []string {
		if strings.Contains(cmds[0], "-var-create") {
			token := strings.SplitN(cmds[0], "-", 2)[0]
			return []string{`{"type":"result","message":"done","token":` + token + `,"payload":{"name":"var1","numchild":"0","value":"42","type":"int","has_more":"0"}}`}
		}
		return []string{done}
	}
	id := connect(t, s, stub)

	res, _ := s.handleGdbExpression(context.Background(), call(map[string]any{"sessionId": id, "action": "create", "expression": "answer"}))
	assert.Equal(t, res.IsError, false)
	body := text(t, res)
	assert.Equal(t, gjson.Get(body, "expressions.0.name").String(), "var1")
	assert.Equal(t, gjson.Get(body, "expressions.0.value").String(), "42")

	res, _ = s.handleGdbExpression(context.Background(), call(map[string]any{"sessionId": id, "action": "expand"}))
	assert.Equal(t, res.IsError, true)
}

func TestListConfigs(t *testing.T) {
	dir := t.TempDir()
	vscode := filepath.Join(dir, ".vscode")
	assert.Equal(t, os.MkdirAll(vscode, 0o755), nil)
	launch := `{
		// gdb and lldb side by side
		"version": "0.2.0",
		"configurations": [
			{"name": "Launch", "type": "cppdbg", "request": "launch", "program": "${workspaceFolder}/a.out", "MIMode": "gdb"},
			{"name": "Attach", "type": "cppdbg", "request": "attach", "processId": "${input:pid}", "MIMode": "gdb"},
			{"name": "LLDB", "type": "cppdbg", "request": "launch", "program": "a.out", "MIMode": "lldb"},
		],
		"inputs": [{"id": "pid", "type": "promptString", "description": "pid"}]
	}`
	assert.Equal(t, os.WriteFile(filepath.Join(vscode, "launch.json"), []byte(launch), 0o644), nil)

	s, _ := newTestServer(t, config.ModeFull)
	res, _ := s.handleGdbListConfigs(context.Background(), call(map[string]any{"workspace": dir}))
	assert.Equal(t, res.IsError, false)
	body := text(t, res)
	assert.Equal(t, gjson.Get(body, "count").Int(), int64(2))
	assert.Equal(t, gjson.Get(body, "configurations.1.name").String(), "Attach")

	t.Run("attach needs permission", func(t *testing.T) {
		s.config.AllowAttach = false
		defer func() { s.config.AllowAttach = true }()
		_, err := s.resolveTarget(call(map[string]any{"workspace": dir, "inputValues": `{"pid": "99"}`}), "Attach")
		assert.NotEqual(t, err, nil)
		assert.Equal(t, debugerrors.FromError(err).Code, debugerrors.CodePermissionDenied)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := s.resolveTarget(call(map[string]any{"workspace": dir}), "Attach")
		assert.NotEqual(t, err, nil)
		assert.Equal(t, debugerrors.FromError(err).Code, debugerrors.CodeMissingInputs)
	})

	t.Run("launch", func(t *testing.T) {
		tg, err := s.resolveTarget(call(map[string]any{"workspace": dir}), "Launch")
		assert.Equal(t, err, nil)
		assert.Equal(t, tg.Program, filepath.Join(dir, "a.out"))
	})
}

func TestShapeSnapshot(t *testing.T) {
	data := []byte(`{"stack":[{"level":"0"}],"locals":[],"gdbgui_state":"paused","gdb_console_entries":[{"value":"a"},{"value":"b"},{"value":"c"}]}`)

	out, err := shapeSnapshot(data, []string{"stack", "gdb_console_entries", "nosuch"}, 2)
	assert.Equal(t, err, nil)
	assert.Equal(t, gjson.GetBytes(out, "gdbgui_state").Exists(), false)
	assert.Equal(t, gjson.GetBytes(out, "nosuch").Exists(), false)
	assert.Equal(t, gjson.GetBytes(out, "stack.0.level").String(), "0")
	assert.Equal(t, gjson.GetBytes(out, "gdb_console_entries.#").Int(), int64(2))
	assert.Equal(t, gjson.GetBytes(out, "gdb_console_entries.0.value").String(), "b")

	out, err = shapeSnapshot(data, nil, 50)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(out), string(data))
}

func TestEntriesAfter(t *testing.T) {
	entries := []console.Entry{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	assert.Equal(t, len(entriesAfter(entries, "")), 3)
	assert.Equal(t, entriesAfter(entries, "2"), []console.Entry{{ID: "3"}})
	assert.Equal(t, len(entriesAfter(entries, "3")), 0)
	assert.Equal(t, len(entriesAfter(entries, "gone")), 3)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, splitList(" stack, locals,,breakpoints "), []string{"stack", "locals", "breakpoints"})
	assert.Equal(t, len(splitList("")), 0)
}
