package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/ctagard/gdbmi-mcp/internal/clock"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != ModeFull {
		t.Errorf("expected mode %s, got %s", ModeFull, cfg.Mode)
	}
	if !cfg.CanExecute() || !cfg.CanAttach() || !cfg.CanModifyVariables() {
		t.Error("expected full mode to allow execute, attach and modify")
	}
	if cfg.MaxSessions != 10 {
		t.Errorf("expected MaxSessions 10, got %d", cfg.MaxSessions)
	}
	if cfg.SessionTimeout.Std() != 30*time.Minute {
		t.Errorf("expected SessionTimeout 30m, got %v", cfg.SessionTimeout.Std())
	}
	assert.Equal(t, cfg.ResponseTimeout.Std(), 3*time.Second)
	assert.Equal(t, cfg.Backend.Sources, SourceLocal)
	assert.Equal(t, cfg.GDB.Path, "gdb")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, cfg.Mode, DefaultConfig().Mode)
}

// TestLoadConfig_JSONWithComments verifies JSON files may carry comments
// and that unset fields keep their defaults.
func TestLoadConfig_JSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	data := `{
		// inspection only
		"mode": "readonly",
		"backend": {"url": "ws://debug-host:5000/gdb_listener", "sources": "backend"},
		"responseTimeout": "5s",
		"sessionTimeout": 60000000000,
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, cfg.Mode, ModeReadOnly)
	assert.Equal(t, cfg.CanExecute(), false)
	assert.Equal(t, cfg.Backend.URL, "ws://debug-host:5000/gdb_listener")
	assert.Equal(t, cfg.Backend.Sources, SourceBackend)
	assert.Equal(t, cfg.ResponseTimeout.Std(), 5*time.Second)
	assert.Equal(t, cfg.SessionTimeout.Std(), time.Minute)
	assert.Equal(t, cfg.MaxSessions, 10)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
mode: full
allowSignals: false
gdb:
  version: "7.7"
  sourceRemaps:
    /build: /home/me/src
sessionTimeout: 10m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, cfg.CanSignal(), false)
	assert.Equal(t, cfg.GDB.Version, "7.7")
	assert.Equal(t, cfg.GDB.SourceRemaps["/build"], "/home/me/src")
	assert.Equal(t, cfg.SessionTimeout.Std(), 10*time.Minute)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"mode.json":    `{"mode": "godmode"}`,
		"sources.json": `{"backend": {"sources": "ftp"}}`,
		"limit.json":   `{"maxSessions": 0}`,
		"syntax.json":  `{"mode": `,
	}
	for name, data := range tests {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestPreferencesDiscardMismatchedTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	data := `{
		"theme": "light",
		"pretty_print": "yes",
		"max_lines_of_code_to_fetch": -1,
		"auto_add_breakpoint_to_main": false,
		"past_binaries": ["/bin/a", 3],
		"command_history": ["info frame"]
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPreferences(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, p.Get(state.KeyTheme), "light")
	assert.Equal(t, p.Get(state.KeyPrettyPrint), true)
	assert.Equal(t, p.Get(state.KeyMaxLinesOfCode), state.DefaultMaxLinesOfCode)
	assert.Equal(t, p.Get(state.KeyAutoBreakOnMain), false)
	assert.Equal(t, p.Get(state.KeyPastBinaries), []string{})
	assert.Equal(t, p.Get(state.KeyCommandHistory), []string{"info frame"})
}

func TestPreferencesPersistOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	p, err := LoadPreferences(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := store.New(clock.Fake(time.Unix(0, 0)), state.Initial())
	st.Use(p.Middleware())
	p.Apply(st)

	assert.Equal(t, st.Set(state.KeyMaxLinesOfCode, 200), true)
	assert.Equal(t, st.Set(state.KeyMaxLinesOfCode, 0), false)
	assert.Equal(t, st.Set(state.KeyPrettyPrint, "no"), false)
	assert.Equal(t, st.Set(state.KeyFullnameToRender, "/a.c"), true)
	assert.Equal(t, store.Value[int](st, state.KeyMaxLinesOfCode), 200)

	reloaded, err := LoadPreferences(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, reloaded.Get(state.KeyMaxLinesOfCode), 200)
}
