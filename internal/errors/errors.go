// Package errors provides structured error types for the gdbmi-mcp server.
// These errors include hints that tell the calling agent how to recover
// when something goes wrong.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"

	// Channel errors
	CodeConnectFailed ErrorCode = "CONNECT_FAILED"
	CodeNotConnected  ErrorCode = "NOT_CONNECTED"
	CodeChannelClosed ErrorCode = "CHANNEL_CLOSED"
	CodeGdbTimeout    ErrorCode = "GDB_TIMEOUT"
	CodeProtocolError ErrorCode = "PROTOCOL_ERROR"

	// Missing resources
	CodeFileMissing       ErrorCode = "FILE_MISSING"
	CodeAddressUnreadable ErrorCode = "ADDRESS_UNREADABLE"
	CodeVarNotFound       ErrorCode = "VARIABLE_NOT_FOUND"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Configuration errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	CodeMissingInputs  ErrorCode = "MISSING_INPUTS"

	// CodeUnknown marks a plain error wrapped by FromError
	CodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type carrying a code, a hint and
// optional details.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message describes what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// Is matches any DebugError with the same code, so callers can test
// errors.Is(err, errors.ChannelClosed()).
func (e *DebugError) Is(target error) bool {
	var de *DebugError
	if !stderrors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use gdb_list_sessions to see active sessions, or use gdb_connect to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use gdb_disconnect to close an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// --- Channel Errors ---

// ConnectFailed creates an error when the backend cannot be reached
func ConnectFailed(url string, err error) *DebugError {
	return &DebugError{
		Code:    CodeConnectFailed,
		Message: fmt.Sprintf("failed to connect to gdb backend at %s: %v", url, err),
		Hint:    "Check that a gdbgui-compatible backend is running and that the URL points at its websocket endpoint.",
		Cause:   err,
		Details: map[string]interface{}{
			"url": url,
		},
	}
}

// NotConnected creates an error for operations that need an open channel
func NotConnected(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("session '%s' is not connected to gdb yet", sessionID),
		Hint:    "Commands are queued until the connection opens. Retry after gdb_connect reports the session as connected.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// ChannelClosed creates an error for a channel that hit a terminal failure
func ChannelClosed(notice string) *DebugError {
	return &DebugError{
		Code:    CodeChannelClosed,
		Message: fmt.Sprintf("the connection to the gdb session has been closed: %s", notice),
		Hint:    "The session can no longer send commands. Use gdb_disconnect and then gdb_connect to start a new one.",
		Details: map[string]interface{}{
			"notice": notice,
		},
	}
}

// GdbTimeout creates an error for a command batch that got no response
func GdbTimeout(seconds int) *DebugError {
	return &DebugError{
		Code:    CodeGdbTimeout,
		Message: fmt.Sprintf("no gdb response received after %d seconds", seconds),
		Hint:    "gdb or the debugged process may be busy. Use gdb_exec with action 'interrupt' to pause it, or keep waiting.",
		Details: map[string]interface{}{
			"timeoutSeconds": seconds,
		},
	}
}

// ProtocolError creates an error for malformed MI traffic
func ProtocolError(what string, err error) *DebugError {
	return &DebugError{
		Code:    CodeProtocolError,
		Message: fmt.Sprintf("malformed %s: %v", what, err),
		Hint:    "The backend sent data that is not valid MI output. Check that the backend version is compatible.",
		Cause:   err,
	}
}

// --- Missing Resources ---

// FileMissing creates an error for a source file that could not be read
func FileMissing(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeFileMissing,
		Message: fmt.Sprintf("source file '%s' is not available", path),
		Hint:    "The file may not exist on the machine running gdb. Use a substitute-path mapping (sourceFileMap in launch.json) or view the disassembly instead.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// AddressUnreadable creates an error for an address whose disassembly
// could not be fetched
func AddressUnreadable(addr string) *DebugError {
	return &DebugError{
		Code:    CodeAddressUnreadable,
		Message: fmt.Sprintf("cannot retrieve assembly at %s", addr),
		Hint:    "The address is outside any loaded code. Select another frame with gdb_select_frame.",
		Details: map[string]interface{}{
			"address": addr,
		},
	}
}

// VarNotFound creates an error for an unknown variable object name
func VarNotFound(name string) *DebugError {
	return &DebugError{
		Code:    CodeVarNotFound,
		Message: fmt.Sprintf("no expression named '%s'", name),
		Hint:    "Use gdb_snapshot to list the current expressions and their names.",
		Details: map[string]interface{}{
			"name": name,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "command":
		hint = "Raw gdb commands are disabled in the current server mode. Use the dedicated tools instead."
	case "attach":
		hint = "The server is configured to disallow attaching to processes. Ask the administrator to enable 'allowAttach' in the configuration."
	case "evaluate":
		hint = "Expression evaluation is disabled in the current server mode. This may be intentional for security reasons."
	case "exec":
		hint = "Execution control is disabled in the current server mode. The server may be in read-only mode."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Configuration Errors ---

// ConfigNotFound creates an error for missing launch.json configurations
func ConfigNotFound(configName string, availableConfigs []string) *DebugError {
	var hint string
	if len(availableConfigs) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(availableConfigs, ", "))
	} else {
		hint = "No gdb configurations found in launch.json. Create a cppdbg launch configuration first."
	}

	return &DebugError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": availableConfigs,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(configName, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", configName, reason),
		Hint:    "Check the file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"configName": configName,
			"reason":     reason,
		},
	}
}

// MissingInputs creates an error for missing input values
func MissingInputs(inputs []string) *DebugError {
	return &DebugError{
		Code:    CodeMissingInputs,
		Message: fmt.Sprintf("missing required input values: %s", strings.Join(inputs, ", ")),
		Hint:    "Provide the missing values via the inputValues parameter as a JSON object, e.g., {\"inputName\": \"value\"}",
		Details: map[string]interface{}{
			"missingInputs": inputs,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
