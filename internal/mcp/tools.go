package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the gdb tool API
func (s *Server) registerTools() {
	// Session Management
	s.registerGdbConnect()
	s.registerGdbDisconnect()
	s.registerGdbListSessions()
	s.registerGdbListConfigs()

	// Inspection
	s.registerGdbSnapshot()
	s.registerGdbExpression()
	s.registerGdbSource()
	s.registerGdbMemory()
	s.registerGdbSelectFrame()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerGdbCommand()
		s.registerGdbLoadBinary()
		s.registerGdbBreakpoint()
		s.registerGdbExec()
		s.registerGdbSignal()
	}
}

// launch.json options shared by gdb_connect and gdb_load_binary
func launchConfigOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("configName",
			mcp.Description("Name of a gdb configuration (cppdbg with MIMode gdb, or type gdb) in launch.json to load."),
		),
		mcp.WithString("configPath",
			mcp.Description("Path to launch.json file. Auto-discovers from workspace if not provided."),
		),
		mcp.WithString("workspace",
			mcp.Description("Workspace root for variable resolution (e.g., ${workspaceFolder}) and config discovery."),
		),
		mcp.WithString("inputValues",
			mcp.Description("JSON object with values for ${input:} variables in launch.json. Example: {\"pid\": \"4242\"}"),
		),
	}
}

func sessionIDOption() mcp.ToolOption {
	return mcp.WithString("sessionId",
		mcp.Required(),
		mcp.Description("The session ID returned by gdb_connect"),
	)
}

// Session Management Tools

func (s *Server) registerGdbConnect() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Connect to a gdb backend over its websocket endpoint and start a session. Returns sessionId needed for all other tools. Optionally loads a launch.json configuration once connected."),
		mcp.WithString("url",
			mcp.Description("Websocket URL of the backend (default from server config, e.g. ws://127.0.0.1:5000/gdb_listener)"),
		),
		mcp.WithNumber("gdbPid",
			mcp.Description("PID of a gdb process the backend already runs, to reconnect to it"),
		),
		mcp.WithString("gdbCommand",
			mcp.Description("Command the backend should start gdb with, e.g. 'gdb-multiarch -nx'"),
		),
		mcp.WithString("remaps",
			mcp.Description("JSON object mapping compile-time source prefixes to local ones; each becomes a substitute-path rule"),
		),
	}
	tool := mcp.NewTool("gdb_connect", append(opts, launchConfigOptions()...)...)
	s.mcpServer.AddTool(tool, s.handleGdbConnect)
}

func (s *Server) registerGdbDisconnect() {
	tool := mcp.NewTool("gdb_disconnect",
		mcp.WithDescription("Close a gdb session"),
		sessionIDOption(),
	)
	s.mcpServer.AddTool(tool, s.handleGdbDisconnect)
}

func (s *Server) registerGdbListSessions() {
	tool := mcp.NewTool("gdb_list_sessions",
		mcp.WithDescription("List all active gdb sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleGdbListSessions)
}

func (s *Server) registerGdbListConfigs() {
	tool := mcp.NewTool("gdb_list_configs",
		mcp.WithDescription("List the gdb configurations of a VS Code launch.json"),
		mcp.WithString("configPath",
			mcp.Description("Path to launch.json file. Auto-discovers from workspace if not provided."),
		),
		mcp.WithString("workspace",
			mcp.Description("Directory to start discovery from (default: current directory)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbListConfigs)
}

// Inspection Tools

func (s *Server) registerGdbSnapshot() {
	tool := mcp.NewTool("gdb_snapshot",
		mcp.WithDescription("Get the session state in ONE call: program state, stopped details, stack, threads, locals, registers, breakpoints, expressions, memory and the recent console transcript."),
		sessionIDOption(),
		mcp.WithString("keys",
			mcp.Description("Comma-separated state keys to return, e.g. 'stack,locals,breakpoints'. Omit for everything."),
		),
		mcp.WithNumber("consoleEntries",
			mcp.Description("Number of most recent console entries to include (default: 50)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbSnapshot)
}

func (s *Server) registerGdbExpression() {
	tool := mcp.NewTool("gdb_expression",
		mcp.WithDescription("Manage watch expressions backed by gdb variable objects. Actions: create, hover, local (expand a local), expand, collapse, delete, assign, list."),
		sessionIDOption(),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum("create", "hover", "local", "expand", "collapse", "delete", "assign", "list"),
			mcp.Description("What to do"),
		),
		mcp.WithString("expression",
			mcp.Description("Expression text for create and hover, local name for local"),
		),
		mcp.WithString("name",
			mcp.Description("Variable object name (e.g. var1.field) for expand, collapse, delete and assign"),
		),
		mcp.WithString("value",
			mcp.Description("New value for assign"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbExpression)
}

func (s *Server) registerGdbSource() {
	tool := mcp.NewTool("gdb_source",
		mcp.WithDescription("Read a window of a source file around a line, optionally with inline assembly. With action 'files', list the program's source files."),
		sessionIDOption(),
		mcp.WithString("action",
			mcp.Enum("view", "files"),
			mcp.Description("'view' (default) or 'files'"),
		),
		mcp.WithString("path",
			mcp.Description("Absolute path of the source file (default: file of the paused frame)"),
		),
		mcp.WithNumber("line",
			mcp.Description("Line to center the window on (default: paused line)"),
		),
		mcp.WithBoolean("assembly",
			mcp.Description("Fetch source-interleaved disassembly (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbSource)
}

func (s *Server) registerGdbMemory() {
	tool := mcp.NewTool("gdb_memory",
		mcp.WithDescription("Read inferior memory. Addresses may be hex or decimal. Actions: read (default), more, preceding."),
		sessionIDOption(),
		mcp.WithString("action",
			mcp.Enum("read", "more", "preceding"),
			mcp.Description("'read' a range, read 'more' after it, or read 'preceding' bytes"),
		),
		mcp.WithString("start",
			mcp.Description("Start address for read"),
		),
		mcp.WithString("end",
			mcp.Description("End address for read (default: start + 8 rows)"),
		),
		mcp.WithNumber("bytesPerLine",
			mcp.Description("Bytes per row of the dump (default: 8)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbMemory)
}

func (s *Server) registerGdbSelectFrame() {
	tool := mcp.NewTool("gdb_select_frame",
		mcp.WithDescription("Select a stack frame, or a thread, and refresh locals, registers and the source view"),
		sessionIDOption(),
		mcp.WithNumber("level",
			mcp.Description("Frame level, 0 is the innermost frame"),
		),
		mcp.WithString("threadId",
			mcp.Description("Thread to select instead of a frame"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbSelectFrame)
}

// Control Tools (Full mode only)

func (s *Server) registerGdbCommand() {
	tool := mcp.NewTool("gdb_command",
		mcp.WithDescription("Send a gdb console command (e.g. 'info frame') or, with commands, a batch of raw MI commands. Waits for the response and returns the console output it produced."),
		sessionIDOption(),
		mcp.WithString("command",
			mcp.Description("Console command to run"),
		),
		mcp.WithString("commands",
			mcp.Description("JSON array of MI commands to send as one batch, e.g. [\"-stack-list-frames\"]"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for gdb's response (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbCommand)
}

func (s *Server) registerGdbLoadBinary() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Load the program to debug, with arguments, or a launch.json configuration (launch, attach or remote). Adds a breakpoint on main when auto_add_breakpoint_to_main is set."),
		sessionIDOption(),
		mcp.WithString("binary",
			mcp.Description("Path of the program to debug"),
		),
		mcp.WithString("args",
			mcp.Description("Program arguments as one string"),
		),
	}
	tool := mcp.NewTool("gdb_load_binary", append(opts, launchConfigOptions()...)...)
	s.mcpServer.AddTool(tool, s.handleGdbLoadBinary)
}

func (s *Server) registerGdbBreakpoint() {
	tool := mcp.NewTool("gdb_breakpoint",
		mcp.WithDescription("Manage breakpoints. Actions: toggle (path+line), insert (path+line or location), delete, enable, disable, condition (number), list."),
		sessionIDOption(),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum("toggle", "insert", "delete", "enable", "disable", "condition", "list"),
			mcp.Description("What to do"),
		),
		mcp.WithString("path",
			mcp.Description("Absolute source path"),
		),
		mcp.WithNumber("line",
			mcp.Description("Source line"),
		),
		mcp.WithString("location",
			mcp.Description("Any gdb location, e.g. a function name or *0x400123"),
		),
		mcp.WithString("number",
			mcp.Description("Breakpoint number, e.g. '2' or '2.1'"),
		),
		mcp.WithString("condition",
			mcp.Description("Condition expression for action condition; empty clears it"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbBreakpoint)
}

func (s *Server) registerGdbExec() {
	tool := mcp.NewTool("gdb_exec",
		mcp.WithDescription("Control the program: run, continue, next, step, finish, nexti, stepi, interrupt, return. Stepping commands can run in reverse when the target supports it."),
		sessionIDOption(),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum("run", "continue", "next", "step", "finish", "nexti", "stepi", "interrupt", "return"),
			mcp.Description("What to do"),
		),
		mcp.WithBoolean("reverse",
			mcp.Description("Run backwards (default: false)"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the program to stop (default: 10, 0 returns immediately)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbExec)
}

func (s *Server) registerGdbSignal() {
	tool := mcp.NewTool("gdb_signal",
		mcp.WithDescription("Send a signal through the backend, to the inferior by default"),
		sessionIDOption(),
		mcp.WithString("signal",
			mcp.Required(),
			mcp.Description("Signal name, e.g. SIGINT"),
		),
		mcp.WithNumber("pid",
			mcp.Description("Process to signal (default: the inferior)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGdbSignal)
}
