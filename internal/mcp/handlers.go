package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ctagard/gdbmi-mcp/internal/breakpoints"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	"github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/expr"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/session"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/internal/target"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// DefaultConsoleEntries is how much of the transcript gdb_snapshot
// returns unless asked otherwise.
const DefaultConsoleEntries = 50

// DefaultStopTimeout bounds how long gdb_exec waits for the program to
// stop.
const DefaultStopTimeout = 10 * time.Second

// Session Management Handlers

func (s *Server) handleGdbConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", s.config.Backend.URL)
	gdbPid := request.GetInt("gdbPid", 0)
	if gdbPid > 0 && !s.config.CanAttach() {
		return toolError(errors.PermissionDenied("attach", string(s.config.Mode)))
	}

	remaps := make(map[string]string, len(s.config.GDB.SourceRemaps))
	for k, v := range s.config.GDB.SourceRemaps {
		remaps[k] = v
	}
	if raw := request.GetString("remaps", ""); raw != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			return toolError(errors.InvalidJSON("remaps", err, `{"/build/src": "/home/me/src"}`))
		}
		for k, v := range extra {
			remaps[k] = v
		}
	}

	// Resolve the launch configuration before connecting so a bad
	// configuration does not leave a session behind.
	var t *target.Target
	if configName := request.GetString("configName", ""); configName != "" {
		if !s.config.CanUseControlTools() {
			return toolError(errors.PermissionDenied("load", string(s.config.Mode)))
		}
		resolved, err := s.resolveTarget(request, configName)
		if err != nil {
			return toolError(err)
		}
		t = resolved
	}

	opts := session.Options{
		URL:         url,
		GdbPID:      gdbPid,
		GDBCommand:  request.GetString("gdbCommand", ""),
		Remaps:      remaps,
		Config:      s.config,
		Preferences: s.preferences,
	}
	if t != nil && t.GDBPath != "" && opts.GDBCommand == "" {
		opts.GDBCommand = t.GDBPath
	}
	if s.sessionOptions != nil {
		s.sessionOptions(&opts)
	}

	sess, err := s.sessions.Create(ctx, opts)
	if err != nil {
		return toolError(err)
	}

	result := map[string]interface{}{
		"sessionId": sess.ID,
		"session":   sess.Info(),
		"status":    "connected",
	}
	if t != nil {
		if err := sess.LoadTarget(ctx, t); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("connected as %s but loading %s failed: %v", sess.ID, t.Name, err)), nil
		}
		if err := s.settle(ctx, sess); err != nil {
			glog.Warningf("[session]%s: %v", sess.ID, err)
		}
		result["target"] = t.String()
		result["session"] = sess.Info()
	}
	if msg := s.updateMessage(); msg != "" {
		result["update"] = msg
	}
	return jsonResult(result)
}

func (s *Server) handleGdbDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(errors.MissingParameter("sessionId", "The session ID returned by gdb_connect"))
	}

	if err := s.sessions.Terminate(sessionID); err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleGdbListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessions.List()
	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	result := map[string]interface{}{
		"sessions": infos,
		"count":    len(infos),
		"mode":     s.config.Mode,
	}
	if msg := s.updateMessage(); msg != "" {
		result["update"] = msg
	}
	return jsonResult(result)
}

func (s *Server) handleGdbListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configPath := request.GetString("configPath", "")
	workspace := request.GetString("workspace", ".")

	var lj *target.LaunchJSON
	var err error
	if configPath != "" {
		lj, err = target.LoadFromPath(configPath)
	} else {
		lj, configPath, err = target.LoadAndDiscover(workspace)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load launch.json: %v", err)), nil
	}

	type configSummary struct {
		Name    string `json:"name"`
		Request string `json:"request"`
		Program string `json:"program,omitempty"`
		Remote  string `json:"remote,omitempty"`
	}
	var configs []configSummary
	for _, c := range lj.Configurations {
		if !c.IsGDB() {
			continue
		}
		configs = append(configs, configSummary{
			Name:    c.Name,
			Request: c.Request,
			Program: c.Program,
			Remote:  c.RemoteAddress(),
		})
	}

	return jsonResult(map[string]interface{}{
		"configPath":     configPath,
		"configurations": configs,
		"count":          len(configs),
	})
}

// Inspection Handlers

func (s *Server) handleGdbSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}
	consoleEntries := request.GetInt("consoleEntries", DefaultConsoleEntries)
	keys := splitList(request.GetString("keys", ""))

	var data []byte
	err = sess.Do(ctx, func() error {
		snap := sess.Snapshot()
		if rows, ok := sess.Registers().Rows(); ok {
			snap["registers"] = rows
		}
		snap["memory"] = sess.Memory().Rows(sess.Memory().BytesPerLine())
		snap["session"] = sess.Info()
		var merr error
		data, merr = json.Marshal(snap)
		return merr
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build snapshot: %v", err)), nil
	}

	out, err := shapeSnapshot(data, keys, consoleEntries)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build snapshot: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// shapeSnapshot keeps only keys, when given, and the last
// consoleEntries transcript lines.
func shapeSnapshot(data []byte, keys []string, consoleEntries int) ([]byte, error) {
	out := data
	if len(keys) > 0 {
		out = []byte("{}")
		for _, k := range keys {
			v := gjson.GetBytes(data, gjson.Escape(k))
			if !v.Exists() {
				continue
			}
			var err error
			if out, err = sjson.SetRawBytes(out, gjson.Escape(k), []byte(v.Raw)); err != nil {
				return nil, err
			}
		}
	}

	path := gjson.Escape(state.KeyConsoleEntries)
	entries := gjson.GetBytes(out, path)
	if !entries.IsArray() {
		return out, nil
	}
	all := entries.Array()
	if consoleEntries < 0 {
		consoleEntries = 0
	}
	if len(all) <= consoleEntries {
		return out, nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range all[len(all)-consoleEntries:] {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.Raw)
	}
	b.WriteByte(']')
	return sjson.SetRawBytes(out, path, []byte(b.String()))
}

func (s *Server) handleGdbExpression(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}
	action, err := request.RequireString("action")
	if err != nil {
		return toolError(errors.MissingParameter("action", "create, hover, local, expand, collapse, delete, assign or list"))
	}
	expression := request.GetString("expression", "")
	name := request.GetString("name", "")

	if action == "assign" && !s.config.CanModifyVariables() {
		return toolError(errors.PermissionDenied("assign", string(s.config.Mode)))
	}
	if needsName(action) && name == "" {
		return toolError(errors.MissingParameter("name", "variable object name, e.g. var1 or var1.field"))
	}

	err = sess.Do(ctx, func() error {
		e := sess.Expr()
		switch action {
		case "list":
			return nil
		case "create":
			return e.CreateExpression(expression, expr.KindExpr)
		case "hover":
			return e.Hover(expression)
		case "local":
			return e.ExpandLocal(expression)
		case "expand":
			return e.FetchAndShowChildren(name)
		case "collapse":
			return e.Collapse(name)
		case "delete":
			return e.Delete(name)
		case "assign":
			if e.Resolve(name) == nil {
				return errors.VarNotFound(name)
			}
			cmds := append([]string{mi.VarAssign(name, request.GetString("value", ""))}, e.UpdateCommands(name)...)
			return sess.Channel().RunCommands(cmds...)
		default:
			return errors.InvalidParameter("action", action, "create, hover, local, expand, collapse, delete, assign or list")
		}
	})
	if err != nil {
		return toolError(err)
	}
	if action != "list" {
		if err := s.settle(ctx, sess); err != nil {
			return toolError(err)
		}
	}

	var roots []*expr.Var
	var entries []console.Entry
	if err := sess.Do(ctx, func() error {
		roots = sess.Expr().Roots()
		entries = sess.Console().Entries()
		return nil
	}); err != nil {
		return toolError(err)
	}

	result := map[string]interface{}{
		"expressions": roots,
	}
	if action == "assign" || action == "create" {
		if last := lastOfType(entries, types.ConsoleStdErr); last != "" {
			result["lastError"] = last
		}
	}
	return jsonResult(result)
}

func needsName(action string) bool {
	switch action {
	case "expand", "collapse", "delete", "assign":
		return true
	}
	return false
}

func (s *Server) handleGdbSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	if request.GetString("action", "view") == "files" {
		if err := sess.Run(ctx, mi.CmdSourceFiles); err != nil {
			return toolError(err)
		}
		if err := s.settle(ctx, sess); err != nil {
			return toolError(err)
		}
		var files []string
		if err := sess.Do(ctx, func() error {
			files = store.Value[[]string](sess.Store(), state.KeySourceFilePaths)
			return nil
		}); err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]interface{}{
			"files": files,
			"count": len(files),
		})
	}

	path := request.GetString("path", "")
	line := request.GetInt("line", 0)
	if path == "" || line == 0 {
		if err := sess.Do(ctx, func() error {
			if path == "" {
				path = store.Value[string](sess.Store(), state.KeyFullnameToRender)
			}
			if line == 0 {
				line = store.Value[int](sess.Store(), state.KeyLineToFlash)
			}
			return nil
		}); err != nil {
			return toolError(err)
		}
	}
	if path == "" {
		return s.missingFileAssembly(ctx, sess)
	}
	if line <= 0 {
		line = 1
	}

	if err := sess.ViewSource(ctx, path, line); err != nil {
		return toolError(err)
	}
	if request.GetBool("assembly", false) {
		if err := sess.Do(ctx, func() error { return sess.Source().FetchAssembly(path, line) }); err != nil {
			return toolError(err)
		}
		if err := s.settle(ctx, sess); err != nil {
			return toolError(err)
		}
	}

	result := map[string]interface{}{"fullname": path}
	err = sess.Do(ctx, func() error {
		start, end, _ := sess.Source().WindowFor(path, line)
		f := sess.Source().File(path)
		if f == nil {
			return errors.FileMissing(path, nil)
		}
		result["start"] = start
		result["end"] = end
		result["numLines"] = f.NumLines
		result["lines"] = f.Render(start, end)
		if f.ModifiedAfterBinary {
			result["warning"] = "source file is newer than the binary"
		}
		result["state"] = sess.Store().Get(state.KeySourceCodeState)
		return nil
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleGdbMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	action := request.GetString("action", "read")
	err = sess.Do(ctx, func() error {
		m := sess.Memory()
		switch action {
		case "read":
			start := request.GetString("start", "")
			if start == "" {
				return errors.MissingParameter("start", "start address, e.g. 0x7fffffffe000 or &buf")
			}
			return m.Fetch(start, request.GetString("end", ""))
		case "more":
			return m.ReadMore()
		case "preceding":
			return m.ReadPreceding()
		default:
			return errors.InvalidParameter("action", action, "read, more or preceding")
		}
	})
	if err != nil {
		return toolError(err)
	}
	if err := s.settle(ctx, sess); err != nil {
		return toolError(err)
	}

	result := make(map[string]interface{})
	err = sess.Do(ctx, func() error {
		m := sess.Memory()
		result["start"] = sess.Store().Get(state.KeyMemoryStart)
		result["end"] = sess.Store().Get(state.KeyMemoryEnd)
		result["rows"] = m.Rows(request.GetInt("bytesPerLine", m.BytesPerLine()))
		if last := lastOfType(sess.Console().Entries(), types.ConsoleStdErr); last != "" {
			result["lastError"] = last
		}
		return nil
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) handleGdbSelectFrame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	if threadID := request.GetString("threadId", ""); threadID != "" {
		err = sess.SelectThread(ctx, threadID)
	} else {
		level := request.GetInt("level", -1)
		if level < 0 {
			return toolError(errors.MissingParameter("level", "frame level from gdb_snapshot's stack, or threadId"))
		}
		err = sess.SelectFrame(ctx, level)
	}
	if err != nil {
		return toolError(err)
	}
	if err := s.settle(ctx, sess); err != nil {
		return toolError(err)
	}
	return s.stateResult(ctx, sess, nil)
}

// Control Handlers

func (s *Server) handleGdbCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanExecute() {
		return toolError(errors.PermissionDenied("command", string(s.config.Mode)))
	}
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	command := request.GetString("command", "")
	var batch []string
	if raw := request.GetString("commands", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			return toolError(errors.InvalidJSON("commands", err, `["-stack-list-frames", "-thread-info"]`))
		}
	}
	if command == "" && len(batch) == 0 {
		return toolError(errors.MissingParameter("command", "a console command such as 'info frame', or commands with a JSON array of MI commands"))
	}

	mark, err := s.consoleMark(ctx, sess)
	if err != nil {
		return toolError(err)
	}
	if command != "" {
		err = sess.ConsoleCommand(ctx, command)
	} else {
		err = sess.Run(ctx, batch...)
	}
	if err != nil {
		return toolError(err)
	}

	result := map[string]interface{}{"status": "sent"}
	if request.GetBool("wait", true) {
		if err := s.settle(ctx, sess); err != nil {
			return toolError(err)
		}
		var output []console.Entry
		if err := sess.Do(ctx, func() error {
			output = entriesAfter(sess.Console().Entries(), mark)
			return nil
		}); err != nil {
			return toolError(err)
		}
		result["status"] = "done"
		result["output"] = output
	}
	result["session"] = sess.Info()
	return jsonResult(result)
}

func (s *Server) handleGdbLoadBinary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	mark, err := s.consoleMark(ctx, sess)
	if err != nil {
		return toolError(err)
	}
	result := make(map[string]interface{})
	if configName := request.GetString("configName", ""); configName != "" {
		t, err := s.resolveTarget(request, configName)
		if err != nil {
			return toolError(err)
		}
		if err := sess.LoadTarget(ctx, t); err != nil {
			return toolError(err)
		}
		result["target"] = t.String()
	} else {
		binary, err := request.RequireString("binary")
		if err != nil {
			return toolError(errors.MissingParameter("binary",
				"Path of the program to debug. Alternatively, use configName to load from launch.json."))
		}
		if err := sess.LoadBinary(ctx, binary, request.GetString("args", "")); err != nil {
			return toolError(err)
		}
	}
	if err := s.settle(ctx, sess); err != nil {
		return toolError(err)
	}

	var output []console.Entry
	if err := sess.Do(ctx, func() error {
		output = entriesAfter(sess.Console().Entries(), mark)
		return nil
	}); err != nil {
		return toolError(err)
	}
	result["session"] = sess.Info()
	result["output"] = output
	return jsonResult(result)
}

func (s *Server) handleGdbBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}
	action, err := request.RequireString("action")
	if err != nil {
		return toolError(errors.MissingParameter("action", "toggle, insert, delete, enable, disable, condition or list"))
	}

	path := request.GetString("path", "")
	line := request.GetInt("line", 0)
	number := request.GetString("number", "")

	var cmds []string
	switch action {
	case "list":
		cmds = []string{mi.CmdBreakList}
	case "toggle", "insert":
		location := request.GetString("location", "")
		if action == "insert" && location != "" {
			cmds = []string{mi.BreakInsertAt(location), mi.CmdBreakList}
			break
		}
		if path == "" || line <= 0 {
			return toolError(errors.MissingParameter("path", "absolute source path and line (or location for insert)"))
		}
	case "delete", "enable", "disable", "condition":
		if number == "" {
			return toolError(errors.MissingParameter("number", "breakpoint number from the breakpoint list"))
		}
		switch action {
		case "delete":
			cmds = breakpoints.DeleteCommands(number)
		case "enable", "disable":
			cmds = breakpoints.EnableCommands(number, action == "enable")
		case "condition":
			cmds = breakpoints.ConditionCommands(number, request.GetString("condition", ""))
		}
	default:
		return toolError(errors.InvalidParameter("action", action, "toggle, insert, delete, enable, disable, condition or list"))
	}

	err = sess.Do(ctx, func() error {
		if cmds == nil {
			if action == "toggle" {
				cmds = sess.Breakpoints().ToggleCommands(path, line)
			} else {
				cmds = []string{mi.BreakInsert(path, line), mi.CmdBreakList}
			}
		}
		return sess.Channel().RunCommands(cmds...)
	})
	if err != nil {
		return toolError(err)
	}
	if err := s.settle(ctx, sess); err != nil {
		return toolError(err)
	}

	var list []breakpoints.Breakpoint
	var entries []console.Entry
	if err := sess.Do(ctx, func() error {
		list = sess.Breakpoints().List()
		entries = sess.Console().Entries()
		return nil
	}); err != nil {
		return toolError(err)
	}
	result := map[string]interface{}{
		"breakpoints": list,
		"count":       len(list),
	}
	if action != "list" {
		if last := lastOfType(entries, types.ConsoleStdErr); last != "" {
			result["lastError"] = last
		}
	}
	return jsonResult(result)
}

func (s *Server) handleGdbExec(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanExecute() {
		return toolError(errors.PermissionDenied("exec", string(s.config.Mode)))
	}
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}
	action, err := request.RequireString("action")
	if err != nil {
		return toolError(errors.MissingParameter("action", "run, continue, next, step, finish, nexti, stepi, interrupt or return"))
	}

	if err := sess.Exec(ctx, action, request.GetBool("reverse", false)); err != nil {
		return toolError(err)
	}

	timeout := time.Duration(request.GetFloat("timeout", DefaultStopTimeout.Seconds()) * float64(time.Second))
	status := "sent"
	if timeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := sess.WaitStopped(waitCtx)
		cancel()
		switch {
		case err == nil:
			status = "stopped"
			if err := s.settle(ctx, sess); err != nil {
				glog.Warningf("[session]%s: %v", sess.ID, err)
			}
		case stderrors.Is(err, context.DeadlineExceeded):
			status = "running"
		default:
			return toolError(err)
		}
	}
	return s.stateResult(ctx, sess, map[string]interface{}{"status": status})
}

func (s *Server) handleGdbSignal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanSignal() {
		return toolError(errors.PermissionDenied("signal", string(s.config.Mode)))
	}
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}
	signal, err := request.RequireString("signal")
	if err != nil {
		return toolError(errors.MissingParameter("signal", "signal name, e.g. SIGINT"))
	}

	msg, err := sess.SendSignal(ctx, signal, request.GetInt("pid", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"status":  "sent",
		"message": msg,
	})
}

// Helper methods

func (s *Server) getSession(request mcp.CallToolRequest) (*session.Session, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, errors.MissingParameter("sessionId", "The session ID returned by gdb_connect")
	}
	return s.sessions.Get(sessionID)
}

// settle waits until gdb answered every batch sent so far. The channel
// gives up on a batch after its response timeout, so this only blocks
// past that when the loop is stuck.
func (s *Server) settle(ctx context.Context, sess *session.Session) error {
	limit := max(s.config.ResponseTimeout.Std(), time.Second) + time.Second
	waitCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	err := sess.WaitIdle(waitCtx)
	if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return errors.GdbTimeout(int(limit.Seconds()))
	}
	return err
}

// consoleMark returns the ID of the newest transcript entry so output
// produced afterwards can be picked out.
func (s *Server) consoleMark(ctx context.Context, sess *session.Session) (string, error) {
	var mark string
	err := sess.Do(ctx, func() error {
		if entries := sess.Console().Entries(); len(entries) > 0 {
			mark = entries[len(entries)-1].ID
		}
		return nil
	})
	return mark, err
}

func entriesAfter(entries []console.Entry, mark string) []console.Entry {
	if mark == "" {
		return entries
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ID == mark {
			return entries[i+1:]
		}
	}
	return entries
}

func lastOfType(entries []console.Entry, typ types.ConsoleEntryType) string {
	if n := len(entries); n > 0 && entries[n-1].Type == typ {
		return entries[n-1].Value
	}
	return ""
}

// stateResult reports where the program is: state, stop reason, frame
// and locals.
func (s *Server) stateResult(ctx context.Context, sess *session.Session, extra map[string]interface{}) (*mcp.CallToolResult, error) {
	result := make(map[string]interface{}, len(extra)+6)
	for k, v := range extra {
		result[k] = v
	}
	err := sess.Do(ctx, func() error {
		st := sess.Store()
		result["session"] = sess.Info()
		result["stoppedDetails"] = st.Get(state.KeyStoppedDetails)
		result["frame"] = st.Get(state.KeyPausedOnFrame)
		result["selectedFrame"] = st.Get(state.KeySelectedFrameNum)
		result["threadId"] = st.Get(state.KeyCurrentThreadID)
		result["locals"] = st.Get(state.KeyLocals)
		return nil
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(result)
}

func (s *Server) updateMessage() string {
	if !s.updates.HasChecked() {
		return ""
	}
	info := s.updates.GetUpdateInfo()
	if info == nil {
		return ""
	}
	return info.UpdateMessage()
}

// missingFileAssembly answers a source view with no file to show: the
// paused frame's file is missing, so its disassembly is returned instead.
func (s *Server) missingFileAssembly(ctx context.Context, sess *session.Session) (*mcp.CallToolResult, error) {
	if err := s.settle(ctx, sess); err != nil {
		return toolError(err)
	}
	var (
		addr string
		asm  []types.AsmInstruction
	)
	err := sess.Do(ctx, func() error {
		addr = store.Value[string](sess.Store(), state.KeyCurrentAssemblyAddr)
		if addr == "" {
			return errors.MissingParameter("path", "absolute path of the source file; there is no paused frame to default to")
		}
		var err error
		asm, err = sess.Source().MissingFileAssembly(addr)
		return err
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"address":  addr,
		"assembly": asm,
		"state":    types.SourceFileMissing,
	})
}

// toolError reports err to the client, prefixed with its error code
// when it has one.
func toolError(err error) (*mcp.CallToolResult, error) {
	de := errors.FromError(err)
	if de.Code == errors.CodeUnknown {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", de.Code, de.Error())), nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Launch.json Configuration Handlers

// resolveTarget loads configName from launch.json and substitutes its
// variables.
func (s *Server) resolveTarget(request mcp.CallToolRequest, configName string) (*target.Target, error) {
	workspace := request.GetString("workspace", "")
	configPath := request.GetString("configPath", "")

	var lj *target.LaunchJSON
	var err error
	switch {
	case configPath != "":
		lj, err = target.LoadFromPath(configPath)
	case workspace != "":
		lj, configPath, err = target.LoadAndDiscover(workspace)
	default:
		return nil, errors.MissingParameter("workspace", "workspace or configPath is required when using configName")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load launch.json: %w", err)
	}

	cfg, err := target.FindConfiguration(lj, configName)
	if err != nil {
		return nil, err
	}

	resCtx := &target.ResolutionContext{WorkspaceFolder: workspace}
	if resCtx.WorkspaceFolder == "" {
		resCtx.WorkspaceFolder = target.GetWorkspaceFolder(configPath)
	}
	if raw := request.GetString("inputValues", ""); raw != "" {
		var inputValues map[string]string
		if err := json.Unmarshal([]byte(raw), &inputValues); err != nil {
			return nil, errors.InvalidJSON("inputValues", err, `{"pid": "4242"}`)
		}
		resCtx.InputValues = inputValues
	}

	t, err := target.Resolve(cfg, lj.Inputs, resCtx)
	if err != nil {
		return nil, err
	}
	if (t.PID != "" || t.Remote != "") && !s.config.CanAttach() {
		return nil, errors.PermissionDenied("attach", string(s.config.Mode))
	}
	return t, nil
}
