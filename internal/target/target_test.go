package target

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"

	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
)

const launchJSON = `{
	// comments are allowed
	"version": "0.2.0",
	"configurations": [
		{
			"name": "Launch hello",
			"type": "cppdbg",
			"request": "launch",
			"program": "${workspaceFolder}/build/hello",
			"args": ["--name", "two words"],
			"cwd": "${workspaceFolder}",
			"environment": [{"name": "LEVEL", "value": "3"}],
			"stopAtEntry": true,
			"MIMode": "gdb",
			"sourceFileMap": {"/build/src": "${workspaceFolder}/src"},
			"setupCommands": [
				{"text": "-enable-pretty-printing", "ignoreFailures": true},
				{"text": "set print elements 0"}
			],
		},
		{
			"name": "Attach",
			"type": "gdb",
			"request": "attach",
			"program": "build/hello",
			"processId": "${input:pid}"
		},
		{
			"name": "Remote",
			"type": "cppdbg",
			"request": "launch",
			"program": "/opt/fw.elf",
			"miDebuggerServerAddress": "localhost:3333"
		},
		{
			"name": "LLDB only",
			"type": "cppdbg",
			"request": "launch",
			"MIMode": "lldb",
			"program": "a.out"
		},
		{
			"name": "Python",
			"type": "debugpy",
			"request": "launch"
		}
	],
	"inputs": [
		{"id": "pid", "type": "promptString", "description": "Process ID"}
	]
}`

func writeWorkspace(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, VSCodeDirName)
	if err := os.MkdirAll(filepath.Join(root, "src", "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, LaunchJSONFileName)
	if err := os.WriteFile(path, []byte(launchJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, path
}

func TestDiscoverWalksUp(t *testing.T) {
	root, path := writeWorkspace(t)

	found, err := Discover(filepath.Join(root, "src", "nested"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	assert.Equal(t, found, path)
	assert.Equal(t, GetWorkspaceFolder(found), filepath.ToSlash(root))

	if _, err := Discover(t.TempDir()); err == nil {
		t.Error("expected an error when no launch.json exists")
	}
}

func TestListOnlyGDBConfigurations(t *testing.T) {
	_, path := writeWorkspace(t)
	lj, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	assert.Equal(t, ListConfigurationNames(lj), []string{"Launch hello", "Attach", "Remote"})
}

func TestFindConfigurationErrors(t *testing.T) {
	_, path := writeWorkspace(t)
	lj, _ := LoadFromPath(path)

	_, err := FindConfiguration(lj, "missing")
	var de *debugerrors.DebugError
	if !errors.As(err, &de) {
		t.Fatalf("expected DebugError, got %v", err)
	}
	assert.Equal(t, de.Code, debugerrors.CodeConfigNotFound)

	_, err = FindConfiguration(lj, "LLDB only")
	if !errors.As(err, &de) {
		t.Fatalf("expected DebugError, got %v", err)
	}
	assert.Equal(t, de.Code, debugerrors.CodeConfigInvalid)
}

func TestResolveLaunch(t *testing.T) {
	_, path := writeWorkspace(t)
	lj, _ := LoadFromPath(path)
	cfg, err := FindConfiguration(lj, "Launch hello")
	if err != nil {
		t.Fatal(err)
	}
	ws := GetWorkspaceFolder(path)

	tgt, err := Resolve(cfg, lj.Inputs, &ResolutionContext{WorkspaceFolder: ws})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	assert.Equal(t, tgt.Program, ws+"/build/hello")
	assert.Equal(t, tgt.BreakOnMain, true)
	assert.Equal(t, tgt.Remaps["/build/src"], ws+"/src")

	assert.Equal(t, tgt.Commands(), []string{
		"1-enable-pretty-printing",
		"set print elements 0",
		`set substitute-path "/build/src" "` + ws + `/src"`,
		`-environment-cd "` + ws + `"`,
		"set environment LEVEL=3",
		`-exec-arguments --name "two words"`,
		"-file-exec-and-symbols " + ws + "/build/hello",
		"-break-insert main",
		"-break-list",
	})
}

func TestResolveAttachNeedsInput(t *testing.T) {
	_, path := writeWorkspace(t)
	lj, _ := LoadFromPath(path)
	cfg, _ := FindConfiguration(lj, "Attach")
	ws := GetWorkspaceFolder(path)

	_, err := Resolve(cfg, lj.Inputs, &ResolutionContext{WorkspaceFolder: ws})
	var de *debugerrors.DebugError
	if !errors.As(err, &de) {
		t.Fatalf("expected DebugError, got %v", err)
	}
	assert.Equal(t, de.Code, debugerrors.CodeMissingInputs)

	tgt, err := Resolve(cfg, lj.Inputs, &ResolutionContext{
		WorkspaceFolder: ws,
		InputValues:     map[string]string{"pid": "4242"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	assert.Equal(t, tgt.Program, filepath.Join(ws, "build/hello"))
	assert.Equal(t, tgt.Commands(), []string{
		"-file-exec-and-symbols " + filepath.Join(ws, "build/hello"),
		"-target-attach 4242",
		"-break-list",
	})
}

func TestResolveRemote(t *testing.T) {
	_, path := writeWorkspace(t)
	lj, _ := LoadFromPath(path)
	cfg, _ := FindConfiguration(lj, "Remote")

	tgt, err := Resolve(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, tgt.String(), "Remote (remote localhost:3333)")
	assert.Equal(t, tgt.Commands(), []string{
		"-file-exec-and-symbols /opt/fw.elf",
		"-target-select remote localhost:3333",
		"-break-list",
	})
}

func TestResolveVariables(t *testing.T) {
	ctx := &ResolutionContext{
		WorkspaceFolder: "/ws/proj",
		CurrentFile:     "/ws/proj/src/main.c",
		EnvOverrides:    map[string]string{"BUILD": "debug"},
	}
	tests := map[string]string{
		"${workspaceFolderBasename}": "proj",
		"${fileBasenameNoExtension}": "main",
		"${fileDirname}":             "/ws/proj/src",
		"out/${env:BUILD}/a.out":     "out/debug/a.out",
		"a${pathSeparator}b":         "a/b",
	}
	for in, want := range tests {
		got, err := ResolveVariables(in, ctx)
		if err != nil {
			t.Fatalf("ResolveVariables(%q): %v", in, err)
		}
		assert.Equal(t, got, want)
	}

	got, err := ResolveVariables("${command:pickProcess}", ctx)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, got, "${command:pickProcess}")
}

func TestProcessIDAcceptsNumbers(t *testing.T) {
	var p ProcessID
	if err := p.UnmarshalJSON([]byte("1234")); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(p), "1234")
	assert.NotEqual(t, p.UnmarshalJSON([]byte("true")), nil)
}
