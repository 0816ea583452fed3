// Package target reads VS Code launch.json files and turns gdb
// configurations (cppdbg with MIMode gdb, or the native "gdb" type) into
// the MI command batches that load, attach to or connect to a program.
package target

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string          `json:"version"`
	Configurations []Configuration `json:"configurations"`
	Inputs         []Input         `json:"inputs,omitempty"`
}

// Configuration is one debug configuration. Only the fields gdb
// configurations use are kept.
type Configuration struct {
	Type    string `json:"type"`    // "cppdbg" or "gdb"
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	Program string            `json:"program,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// cppdbg lists environment as [{name, value}]
	Environment []EnvVar `json:"environment,omitempty"`

	// Break on main: cppdbg uses stopAtEntry, the gdb type uses
	// stopAtBeginningOfMainSubprogram.
	StopAtEntry                     bool `json:"stopAtEntry,omitempty"`
	StopAtBeginningOfMainSubprogram bool `json:"stopAtBeginningOfMainSubprogram,omitempty"`

	// ProcessID is a number or a string such as "${input:pid}".
	ProcessID ProcessID `json:"processId,omitempty"`

	MIMode                  string `json:"MIMode,omitempty"`
	MIDebuggerPath          string `json:"miDebuggerPath,omitempty"`
	MIDebuggerServerAddress string `json:"miDebuggerServerAddress,omitempty"` // cppdbg remote
	Target                  string `json:"target,omitempty"`                  // gdb type remote

	SourceFileMap map[string]string `json:"sourceFileMap,omitempty"`
	SetupCommands []SetupCommand    `json:"setupCommands,omitempty"`
}

// EnvVar is one cppdbg environment entry
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SetupCommand is a gdb command run before the program is loaded
type SetupCommand struct {
	Text           string `json:"text"`
	Description    string `json:"description,omitempty"`
	IgnoreFailures bool   `json:"ignoreFailures,omitempty"`
}

// Input represents a user input variable definition.
type Input struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"` // "promptString", "pickString"
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// ProcessID accepts both JSON numbers and strings.
type ProcessID string

func (p *ProcessID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = ProcessID(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("processId must be a number or string, got %s", data)
	}
	*p = ProcessID(strconv.Itoa(n))
	return nil
}

// IsGDB reports whether the configuration is debugged with gdb.
func (c *Configuration) IsGDB() bool {
	switch c.Type {
	case "gdb":
		return true
	case "cppdbg":
		return c.MIMode == "" || c.MIMode == "gdb"
	}
	return false
}

// IsAttach reports whether this is an attach configuration.
func (c *Configuration) IsAttach() bool {
	return c.Request == "attach"
}

// RemoteAddress returns the gdbserver address, if any.
func (c *Configuration) RemoteAddress() string {
	if c.MIDebuggerServerAddress != "" {
		return c.MIDebuggerServerAddress
	}
	return c.Target
}

// BreakOnMain reports whether the program should stop at main.
func (c *Configuration) BreakOnMain() bool {
	return c.StopAtEntry || c.StopAtBeginningOfMainSubprogram
}

// Validate performs basic validation on a configuration.
func (c *Configuration) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("configuration name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("configuration type is required")
	}
	if !c.IsGDB() {
		return fmt.Errorf("type %q (MIMode %q) is not debugged with gdb", c.Type, c.MIMode)
	}
	switch c.Request {
	case "launch":
		if c.Program == "" && c.RemoteAddress() == "" {
			return fmt.Errorf("launch configurations need a program")
		}
	case "attach":
		if c.ProcessID == "" && c.RemoteAddress() == "" {
			return fmt.Errorf("attach configurations need a processId or a remote address")
		}
	default:
		return fmt.Errorf("request must be 'launch' or 'attach', got %q", c.Request)
	}
	return nil
}

// quoteArgs joins args for -exec-arguments, quoting those that contain
// whitespace or quotes.
func quoteArgs(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}
