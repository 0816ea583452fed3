// Package state declares the store keys shared by the engine and the
// transitions of the debugged program that touch several of them.
//
// Keys are fixed at construction; Initial returns the complete key set
// with zero values. Keys whose values belong to a single package (the
// transcript, breakpoints, expressions, cached files, memory) start as
// nil here and are typed by their owner.
package state

import (
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// Session and debugger
const (
	KeyConnected      = "connected"
	KeyFatalNotice    = "fatal_notice"
	KeyGdbPID         = "gdb_pid"
	KeyGdbVersion     = "gdb_version"
	KeyWaiting        = "waiting_for_response"
	KeyFeatures       = "features"
	KeyTargetFeatures = "target_features"
	KeyReverse        = "reverse_supported"
	KeyDebugInReverse = "debug_in_reverse"
)

// Inferior program
const (
	KeyProgramState         = "gdbgui_state"
	KeyInferiorPID          = "inferior_pid"
	KeyInferiorBinary       = "inferior_binary_path"
	KeyBinaryLastModified   = "inferior_binary_path_last_modified_unix_sec"
	KeyStoppedDetails       = "stoppedDetails"
	KeyPausedOnFrame        = "paused_on_frame"
	KeySelectedFrameNum     = "selected_frame_num"
	KeyStack                = "stack"
	KeyThreads              = "threads"
	KeyCurrentThreadID      = "current_thread_id"
	KeyLocals               = "locals"
	KeyRegisterNames        = "register_names"
	KeyPreviousRegisters    = "previous_register_values"
	KeyCurrentRegisters     = "current_register_values"
	KeyCanFetchRegisters    = "can_fetch_register_values"
	KeyBreakpoints          = "breakpoints"
	KeyExpressions          = "expressions"
	KeyRootVar              = "root_gdb_tree_var"
	KeyConsoleEntries       = "gdb_console_entries"
	KeyMemoryCache          = "memory_cache"
	KeyMemoryStart          = "start_addr"
	KeyMemoryEnd            = "end_addr"
	KeyBytesPerLine         = "bytes_per_line"
	KeyLanguage             = "language"
	KeySourceFilePaths      = "source_file_paths"
	KeyCachedSourceFiles    = "cached_source_files"
	KeyMissingFileAssembly  = "disassembly_for_missing_file"
	KeyFullnameToRender     = "fullname_to_render"
	KeyLineToFlash          = "line_of_source_to_flash"
	KeyCurrentAssemblyAddr  = "current_assembly_address"
	KeyMakeLineVisible      = "make_current_line_visible"
	KeySourceCodeState      = "source_code_state"
	KeySourceSelectionState = "source_code_selection_state"
)

// Preferences persisted between runs
const (
	KeyTheme                 = "theme"
	KeyAutoBreakOnMain       = "auto_add_breakpoint_to_main"
	KeyMaxLinesOfCode        = "max_lines_of_code_to_fetch"
	KeyPrettyPrint           = "pretty_print"
	KeyRefreshAfterConsole   = "refresh_state_after_sending_console_command"
	KeyShowAllSentCommands   = "show_all_sent_commands_in_console"
	KeyCommandHistory        = "command_history"
	KeyPastBinaries          = "past_binaries"
	KeyAssemblyFlavor        = "assembly_flavor"
	DefaultMaxLinesOfCode    = 500
	DefaultBytesPerLine      = "8"
	DefaultAssemblyFlavor    = "att"
	DefaultTheme             = "monokai"
	NoDebugSymbolsSourceFile = "Either no executable is loaded or the executable was compiled without debug symbols."
)

// PreferenceKeys lists the keys persisted by config.Preferences.
var PreferenceKeys = []string{
	KeyTheme,
	KeyAutoBreakOnMain,
	KeyMaxLinesOfCode,
	KeyPrettyPrint,
	KeyRefreshAfterConsole,
	KeyShowAllSentCommands,
	KeyCommandHistory,
	KeyPastBinaries,
	KeyAssemblyFlavor,
}

// Initial returns the full key set with default values.
func Initial() map[string]any {
	return map[string]any{
		KeyConnected:      false,
		KeyFatalNotice:    "",
		KeyGdbPID:         0,
		KeyGdbVersion:     "",
		KeyWaiting:        false,
		KeyFeatures:       []string(nil),
		KeyTargetFeatures: []string(nil),
		KeyReverse:        false,
		KeyDebugInReverse: false,

		KeyProgramState:         types.ProgramStateReady,
		KeyInferiorPID:          0,
		KeyInferiorBinary:       "",
		KeyBinaryLastModified:   int64(0),
		KeyStoppedDetails:       (*types.StoppedDetails)(nil),
		KeyPausedOnFrame:        (*types.Frame)(nil),
		KeySelectedFrameNum:     0,
		KeyStack:                []types.Frame(nil),
		KeyThreads:              []types.Thread(nil),
		KeyCurrentThreadID:      "",
		KeyLocals:               []types.Local(nil),
		KeyRegisterNames:        []string(nil),
		KeyPreviousRegisters:    map[string]string{},
		KeyCurrentRegisters:     map[string]string{},
		KeyCanFetchRegisters:    true,
		KeyBreakpoints:          nil,
		KeyExpressions:          nil,
		KeyRootVar:              "",
		KeyConsoleEntries:       nil,
		KeyMemoryCache:          nil,
		KeyMemoryStart:          "",
		KeyMemoryEnd:            "",
		KeyBytesPerLine:         DefaultBytesPerLine,
		KeyLanguage:             types.LanguageCFamily,
		KeySourceFilePaths:      []string(nil),
		KeyCachedSourceFiles:    nil,
		KeyMissingFileAssembly:  []types.AsmInstruction(nil),
		KeyFullnameToRender:     "",
		KeyLineToFlash:          0,
		KeyCurrentAssemblyAddr:  "",
		KeyMakeLineVisible:      false,
		KeySourceCodeState:      types.SourceNoneAvailable,
		KeySourceSelectionState: types.SelectionPausedFrame,

		KeyTheme:               DefaultTheme,
		KeyAutoBreakOnMain:     true,
		KeyMaxLinesOfCode:      DefaultMaxLinesOfCode,
		KeyPrettyPrint:         true,
		KeyRefreshAfterConsole: true,
		KeyShowAllSentCommands: false,
		KeyCommandHistory:      []string{},
		KeyPastBinaries:        []string{},
		KeyAssemblyFlavor:      DefaultAssemblyFlavor,
	}
}

// ProgramState returns the current program state.
func ProgramState(s *store.Store) types.ProgramState {
	return store.Value[types.ProgramState](s, KeyProgramState)
}

// MaxLinesOfCode returns the source window size, falling back to the
// default for non-positive values.
func MaxLinesOfCode(s *store.Store) int {
	n := store.Value[int](s, KeyMaxLinesOfCode)
	if n <= 0 {
		return DefaultMaxLinesOfCode
	}
	return n
}

// ClearProgramState resets the frame, stack, thread and locals keys.
// The session clears the memory cache and local variable objects.
func ClearProgramState(s *store.Store) {
	s.Set(KeyLineToFlash, 0)
	s.Set(KeyPausedOnFrame, (*types.Frame)(nil))
	s.Set(KeySelectedFrameNum, 0)
	s.Set(KeyCurrentThreadID, "")
	s.Set(KeyStack, []types.Frame(nil))
	s.Set(KeyThreads, []types.Thread(nil))
	s.Set(KeyLocals, []types.Local(nil))
}

// Running marks the program running without discarding state.
func Running(s *store.Store) {
	s.Set(KeyProgramState, types.ProgramStateRunning)
}

// Ready marks that no program is being debugged.
func Ready(s *store.Store) {
	s.Set(KeyProgramState, types.ProgramStateReady)
}

// Paused records the frame the program stopped in and points the source
// view at it. frame may be nil when gdb did not report one.
func Paused(s *store.Store, frame *types.Frame) {
	s.Set(KeyProgramState, types.ProgramStatePaused)
	s.Set(KeySourceSelectionState, types.SelectionPausedFrame)
	if frame == nil {
		frame = &types.Frame{}
	}
	s.Set(KeyPausedOnFrame, frame)
	s.Set(KeyFullnameToRender, frame.Fullname)
	s.Set(KeyLineToFlash, frame.LineNumber())
	s.Set(KeyCurrentAssemblyAddr, frame.Addr)
	s.Set(KeyMakeLineVisible, true)
}

// Exited resets everything tied to the inferior process.
func Exited(s *store.Store) {
	s.Set(KeyProgramState, types.ProgramStateExited)
	s.Set(KeyMissingFileAssembly, []types.AsmInstruction(nil))
	s.Set(KeyRootVar, "")
	s.Set(KeyPreviousRegisters, map[string]string{})
	s.Set(KeyCurrentRegisters, map[string]string{})
	s.Set(KeyInferiorPID, 0)
	s.Set(KeyStoppedDetails, (*types.StoppedDetails)(nil))
	ClearProgramState(s)
}

// UpdateStack stores a new stack and derives the paused frame from the
// selected frame number.
func UpdateStack(s *store.Store, stack []types.Frame) {
	s.Set(KeyStack, stack)
	n := store.Value[int](s, KeySelectedFrameNum)
	var frame *types.Frame
	if n >= 0 && n < len(stack) {
		f := stack[n]
		frame = &f
	}
	s.Set(KeyPausedOnFrame, frame)
	if frame == nil {
		return
	}
	s.Set(KeyFullnameToRender, frame.Fullname)
	s.Set(KeyLineToFlash, frame.LineNumber())
	s.Set(KeyCurrentAssemblyAddr, frame.Addr)
	s.Set(KeyMakeLineVisible, true)
}

// SelectFrame records a user frame selection.
func SelectFrame(s *store.Store, level int) {
	s.Set(KeySelectedFrameNum, level)
	s.Set(KeyLineToFlash, 0)
}

// ViewFile points the source view at a file chosen by the user.
func ViewFile(s *store.Store, fullname string, line int) {
	s.Set(KeyFullnameToRender, fullname)
	s.Set(KeySourceSelectionState, types.SelectionUserSelection)
	s.Set(KeyLineToFlash, line)
	s.Set(KeyMakeLineVisible, true)
}
