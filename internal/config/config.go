// Package config provides configuration management for the gdbmi-mcp server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control attach, execute, modify and signal operations
//   - Backend settings: the gdb listener URL and where source files are read
//   - GDB settings: the binary probed for its version and substitute paths
//   - Safety limits: maximum sessions and session timeout
//
// Configuration can be loaded from a YAML or JSON (comments allowed) file,
// overlaid on sensible defaults. Client preferences are persisted
// separately, see Preferences.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Only inspection tools
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// SourceReader selects where source files are read from
type SourceReader string

const (
	SourceLocal   SourceReader = "local"   // Read from disk, watched for changes
	SourceBackend SourceReader = "backend" // Read through the backend HTTP endpoints
)

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode         CapabilityMode `json:"mode" yaml:"mode"`
	AllowAttach  bool           `json:"allowAttach" yaml:"allowAttach"`
	AllowModify  bool           `json:"allowModify" yaml:"allowModify"`
	AllowExecute bool           `json:"allowExecute" yaml:"allowExecute"`
	AllowSignals bool           `json:"allowSignals" yaml:"allowSignals"`

	Backend BackendConfig `json:"backend" yaml:"backend"`
	GDB     GDBConfig     `json:"gdb" yaml:"gdb"`

	// Engine tuning
	ResponseTimeout   Duration `json:"responseTimeout" yaml:"responseTimeout"`
	StoreDebounce     Duration `json:"storeDebounce" yaml:"storeDebounce"`
	MaxConsoleEntries int      `json:"maxConsoleEntries" yaml:"maxConsoleEntries"`
	HistoryLimit      int      `json:"historyLimit" yaml:"historyLimit"`

	// PreferencesPath is where client preferences are persisted. Empty
	// keeps them in memory only.
	PreferencesPath string `json:"preferencesPath" yaml:"preferencesPath"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions" yaml:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout" yaml:"sessionTimeout"`
}

// BackendConfig describes the gdbgui-compatible server sessions connect to
type BackendConfig struct {
	// URL is the websocket endpoint of the gdb listener.
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers" yaml:"headers"`

	// Sources selects the file reader; SourceBackend uses the HTTP
	// endpoints of the server at URL.
	Sources     SourceReader `json:"sources" yaml:"sources"`
	ReadTimeout Duration     `json:"readTimeout" yaml:"readTimeout"`
}

// GDBConfig holds GDB-specific configuration
type GDBConfig struct {
	Path string `json:"path" yaml:"path"` // gdb binary, probed with --version

	// Version overrides the probe, e.g. "12.1".
	Version string `json:"version" yaml:"version"`

	// Command is passed to the backend when it starts a new gdb process.
	Command string `json:"command" yaml:"command"`

	// SourceRemaps become "set substitute-path" rules.
	SourceRemaps map[string]string `json:"sourceRemaps" yaml:"sourceRemaps"`
}

// Duration reads either a Go duration string ("30s") or integer
// nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(n)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:              ModeFull,
		AllowAttach:       true,
		AllowModify:       true,
		AllowExecute:      true,
		AllowSignals:      true,
		ResponseTimeout:   Duration(3 * time.Second),
		StoreDebounce:     Duration(10 * time.Millisecond),
		MaxConsoleEntries: 5000,
		HistoryLimit:      100,
		MaxSessions:       10,
		SessionTimeout:    Duration(30 * time.Minute),
		Backend: BackendConfig{
			URL:         "ws://127.0.0.1:5000/gdb_listener",
			Sources:     SourceLocal,
			ReadTimeout: Duration(30 * time.Second),
		},
		GDB: GDBConfig{
			Path:    "gdb",
			Command: "gdb",
		},
	}
}

// LoadConfig loads configuration from a YAML or JSON file. JSON may
// contain comments and trailing commas.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable zero.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("invalid mode %q (expected %q or %q)", c.Mode, ModeReadOnly, ModeFull)
	}
	switch c.Backend.Sources {
	case SourceLocal, SourceBackend:
	case "":
		c.Backend.Sources = SourceLocal
	default:
		return fmt.Errorf("invalid backend.sources %q (expected %q or %q)", c.Backend.Sources, SourceLocal, SourceBackend)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("maxSessions must be positive, got %d", c.MaxSessions)
	}
	return nil
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanAttach returns true if attaching to processes and remote targets is allowed
func (c *Config) CanAttach() bool {
	return c.Mode == ModeFull && c.AllowAttach
}

// CanModifyVariables returns true if variable modification is allowed
func (c *Config) CanModifyVariables() bool {
	return c.Mode == ModeFull && c.AllowModify
}

// CanExecute returns true if raw gdb commands and execution control are allowed
func (c *Config) CanExecute() bool {
	return c.Mode == ModeFull && c.AllowExecute
}

// CanSignal returns true if signals may be sent to processes
func (c *Config) CanSignal() bool {
	return c.Mode == ModeFull && c.AllowSignals
}
