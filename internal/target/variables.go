package target

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	CurrentFile     string            // For ${file} variables
	InputValues     map[string]string // Values for ${input:} variables
	EnvOverrides    map[string]string // Override environment variables
}

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in text. Unknown
// variables are left in place and reported.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var lastErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		resolved, err := resolveVariable(match[2:len(match)-1], ctx)
		if err != nil {
			lastErr = err
			return match
		}
		return resolved
	})

	return result, lastErr
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder", expr == "workspaceRoot":
		return ctx.WorkspaceFolder, nil
	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil
	case expr == "file":
		return ctx.CurrentFile, nil
	case expr == "fileBasename":
		return filepath.Base(ctx.CurrentFile), nil
	case expr == "fileDirname":
		return filepath.Dir(ctx.CurrentFile), nil
	case expr == "fileBasenameNoExtension":
		base := filepath.Base(ctx.CurrentFile)
		return strings.TrimSuffix(base, filepath.Ext(base)), nil
	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil
	case expr == "cwd":
		return os.Getwd()
	case expr == "pathSeparator":
		return string(os.PathSeparator), nil

	case strings.HasPrefix(expr, "env:"):
		name := strings.TrimPrefix(expr, "env:")
		if val, ok := ctx.EnvOverrides[name]; ok {
			return val, nil
		}
		return os.Getenv(name), nil

	case strings.HasPrefix(expr, "input:"):
		id := strings.TrimPrefix(expr, "input:")
		if val, ok := ctx.InputValues[id]; ok {
			return val, nil
		}
		return "", fmt.Errorf("missing input value for ${input:%s}", id)
	}
	return "", fmt.Errorf("unsupported variable: ${%s}", expr)
}

// FindRequiredInputs scans text for ${input:...} variables and returns their IDs.
func FindRequiredInputs(text string) []string {
	var inputs []string
	seen := make(map[string]bool)
	for _, match := range variablePattern.FindAllStringSubmatch(text, -1) {
		id, ok := strings.CutPrefix(match[1], "input:")
		if ok && !seen[id] {
			seen[id] = true
			inputs = append(inputs, id)
		}
	}
	return inputs
}

// missingInputs lists ${input:} variables used by cfg that have no value.
func missingInputs(cfg *Configuration, values map[string]string) []string {
	texts := []string{cfg.Program, cfg.Cwd, string(cfg.ProcessID), cfg.MIDebuggerServerAddress, cfg.Target}
	texts = append(texts, cfg.Args...)
	for _, v := range cfg.Env {
		texts = append(texts, v)
	}
	for _, e := range cfg.Environment {
		texts = append(texts, e.Value)
	}
	for _, v := range cfg.SourceFileMap {
		texts = append(texts, v)
	}
	for _, c := range cfg.SetupCommands {
		texts = append(texts, c.Text)
	}

	var missing []string
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, id := range FindRequiredInputs(text) {
			if _, ok := values[id]; !ok && !seen[id] {
				seen[id] = true
				missing = append(missing, id)
			}
		}
	}
	return missing
}
