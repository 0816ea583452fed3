// Package types defines shared data types used across the gdbmi-mcp engine.
//
// This package provides type definitions for:
//   - ProgramState: debuggee lifecycle (ready, running, paused, exited)
//   - Language: source language family detected from the debug symbols
//   - ConsoleEntryType: transcript entry categories
//   - SourceCodeState: what the source view can currently show
//   - Wire types: Frame, Thread, Local, RegisterValue, AsmInstruction,
//     AsmSourceLine, MemoryRange, decoded from MI result payloads
//   - ConnectionEvent and SessionInfo for session lifecycle reporting
//
// Scalar MI values arrive as strings, so numeric fields such as line
// numbers stay strings here and are converted at the point of use.
package types

import "strconv"

// ProgramState represents the state of the debugged program
type ProgramState string

const (
	ProgramStateReady   ProgramState = "ready"
	ProgramStateRunning ProgramState = "running"
	ProgramStatePaused  ProgramState = "paused"
	ProgramStateExited  ProgramState = "exited"
)

// Language is the source language family of the loaded binary
type Language string

const (
	LanguageCFamily Language = "c_family"
	LanguageRust    Language = "rust"
	LanguageGo      Language = "go"
)

// ConsoleEntryType classifies a transcript entry
type ConsoleEntryType string

const (
	ConsoleSentCommand ConsoleEntryType = "SENT_COMMAND"
	ConsoleStdErr      ConsoleEntryType = "STD_ERR"
	ConsoleStdOut      ConsoleEntryType = "STD_OUT"
	ConsoleOutput      ConsoleEntryType = "GDBGUI_OUTPUT"
	ConsoleOutputRaw   ConsoleEntryType = "GDBGUI_OUTPUT_RAW"
)

// SourceCodeState describes what the source view is able to show
type SourceCodeState string

const (
	SourceAssemblyAndSourceCached SourceCodeState = "ASSM_AND_SOURCE_CACHED"
	SourceCached                  SourceCodeState = "SOURCE_CACHED"
	SourceFetching                SourceCodeState = "FETCHING_SOURCE"
	SourceAssemblyCached          SourceCodeState = "ASSM_CACHED"
	SourceFetchingAssembly        SourceCodeState = "FETCHING_ASSM"
	SourceAssemblyUnavailable     SourceCodeState = "ASSM_UNAVAILABLE"
	SourceFileMissing             SourceCodeState = "FILE_MISSING"
	SourceNoneAvailable           SourceCodeState = "NONE_AVAILABLE"
)

// SelectionState says whether the source view follows the paused frame or
// a file the user opened.
type SelectionState string

const (
	SelectionPausedFrame   SelectionState = "PAUSED_FRAME"
	SelectionUserSelection SelectionState = "USER_SELECTION"
)

// Frame is one entry of an MI stack or the frame of a stopped record
type Frame struct {
	Level    string `json:"level,omitempty"`
	Addr     string `json:"addr,omitempty"`
	Func     string `json:"func,omitempty"`
	File     string `json:"file,omitempty"`
	Fullname string `json:"fullname,omitempty"`
	Line     string `json:"line,omitempty"`
	From     string `json:"from,omitempty"`
	Arch     string `json:"arch,omitempty"`
}

// LineNumber returns the frame line as an int, or 0 when absent.
func (f *Frame) LineNumber() int {
	if f == nil {
		return 0
	}
	n, _ := strconv.Atoi(f.Line)
	return n
}

// Thread represents an entry of -thread-info
type Thread struct {
	ID       string `json:"id"`
	TargetID string `json:"target-id,omitempty"`
	Name     string `json:"name,omitempty"`
	State    string `json:"state,omitempty"`
	Core     string `json:"core,omitempty"`
	Frame    *Frame `json:"frame,omitempty"`
}

// Threads is the threads payload together with the current thread id
type Threads struct {
	CurrentThreadID string   `json:"current-thread-id,omitempty"`
	Threads         []Thread `json:"threads"`
}

// Local is a variable from -stack-list-variables --simple-values.
// Value is nil for aggregates, which gdb does not print with
// --simple-values.
type Local struct {
	Name          string  `json:"name"`
	Type          string  `json:"type,omitempty"`
	Value         *string `json:"value,omitempty"`
	Arg           string  `json:"arg,omitempty"`
	CanBeExpanded bool    `json:"can_be_expanded"`
}

// RegisterValue is one entry of -data-list-register-values
type RegisterValue struct {
	Number string `json:"number"`
	Value  string `json:"value"`
}

// AsmInstruction is a single disassembled instruction
type AsmInstruction struct {
	Address  string `json:"address"`
	FuncName string `json:"func-name,omitempty"`
	Offset   string `json:"offset,omitempty"`
	Inst     string `json:"inst"`
	Opcodes  string `json:"opcodes,omitempty"`
}

// AsmSourceLine groups instructions generated for one source line
// (disassembly modes 3 and 4).
type AsmSourceLine struct {
	Line         string           `json:"line"`
	File         string           `json:"file,omitempty"`
	Fullname     string           `json:"fullname,omitempty"`
	Instructions []AsmInstruction `json:"line_asm_insn"`
}

// MemoryRange is one block of -data-read-memory-bytes
type MemoryRange struct {
	Begin    string `json:"begin"`
	Offset   string `json:"offset"`
	End      string `json:"end"`
	Contents string `json:"contents"`
}

// SourceFileEntry is one entry of -file-list-exec-source-files
type SourceFileEntry struct {
	File     string `json:"file"`
	Fullname string `json:"fullname"`
}

// StoppedDetails captures why and where the program last stopped
type StoppedDetails struct {
	Reason            string `json:"reason"`
	ThreadID          string `json:"threadId,omitempty"`
	AllThreadsStopped bool   `json:"allThreadsStopped"`
	SignalName        string `json:"signalName,omitempty"`
	SignalMeaning     string `json:"signalMeaning,omitempty"`
	Frame             *Frame `json:"frame,omitempty"`
}

// ConnectionEvent is the payload of debug_session_connection_event
type ConnectionEvent struct {
	PID                  int    `json:"pid"`
	Message              string `json:"message"`
	OK                   bool   `json:"ok"`
	StartedNewGdbProcess bool   `json:"started_new_gdb_process"`
}

// SessionInfo represents information about an engine session
type SessionInfo struct {
	SessionID    string       `json:"sessionId"`
	URL          string       `json:"url"`
	Connected    bool         `json:"connected"`
	ProgramState ProgramState `json:"programState"`
	GdbPID       int          `json:"gdbPid,omitempty"`
	InferiorPID  int          `json:"inferiorPid,omitempty"`
	Binary       string       `json:"binary,omitempty"`
}

// BreakpointRecord is a bkpt object as gdb reports it
type BreakpointRecord struct {
	Number           string   `json:"number"`
	Type             string   `json:"type,omitempty"`
	Disp             string   `json:"disp,omitempty"`
	Enabled          string   `json:"enabled,omitempty"`
	Addr             string   `json:"addr,omitempty"`
	Func             string   `json:"func,omitempty"`
	File             string   `json:"file,omitempty"`
	Fullname         string   `json:"fullname,omitempty"`
	Line             string   `json:"line,omitempty"`
	ThreadGroups     []string `json:"thread-groups,omitempty"`
	Times            string   `json:"times,omitempty"`
	Cond             string   `json:"cond,omitempty"`
	OriginalLocation string   `json:"original-location,omitempty"`

	// Locations is set by gdb 13 and later for multi-location
	// breakpoints; older versions list locations as sibling records.
	Locations []BreakpointRecord `json:"locations,omitempty"`
}

// FileChunk is a window of a source file. Lines[0] is line StartLine.
type FileChunk struct {
	Path                string   `json:"path"`
	StartLine           int      `json:"start_line"`
	EndLine             int      `json:"end_line"`
	Lines               []string `json:"source_code_array"`
	NumLinesInFile      int      `json:"num_lines_in_file"`
	LastModifiedUnixSec float64  `json:"last_modified_unix_sec"`
	Encoding            string   `json:"encoding,omitempty"`
}

// DirEntry is one child of a directory listing
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FsDir is a directory listing returned by the backend
type FsDir struct {
	Path     string     `json:"path"`
	Children []DirEntry `json:"children"`
}
