package target

import (
	"fmt"
	"path/filepath"
	"sort"

	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
)

// Target is a fully resolved gdb configuration.
type Target struct {
	Name          string
	Program       string
	Args          []string
	Cwd           string
	Env           map[string]string
	PID           string
	Remote        string
	BreakOnMain   bool
	GDBPath       string
	Remaps        map[string]string
	SetupCommands []SetupCommand
}

// Resolve substitutes every variable in cfg. Inputs that have no value
// and no default are reported together as a single error.
func Resolve(cfg *Configuration, inputs []Input, ctx *ResolutionContext) (*Target, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}
	values := make(map[string]string, len(ctx.InputValues))
	for _, in := range inputs {
		if in.Default != "" {
			values[in.ID] = in.Default
		}
	}
	for k, v := range ctx.InputValues {
		values[k] = v
	}
	if missing := missingInputs(cfg, values); len(missing) > 0 {
		return nil, debugerrors.MissingInputs(missing)
	}
	rctx := *ctx
	rctx.InputValues = values

	r := resolver{ctx: &rctx}
	t := &Target{
		Name:        cfg.Name,
		Program:     r.str(cfg.Program),
		Cwd:         r.str(cfg.Cwd),
		PID:         r.str(string(cfg.ProcessID)),
		Remote:      r.str(cfg.RemoteAddress()),
		BreakOnMain: cfg.BreakOnMain(),
		GDBPath:     r.str(cfg.MIDebuggerPath),
	}
	for _, a := range cfg.Args {
		t.Args = append(t.Args, r.str(a))
	}
	if len(cfg.Env)+len(cfg.Environment) > 0 {
		t.Env = make(map[string]string)
		for k, v := range cfg.Env {
			t.Env[k] = r.str(v)
		}
		for _, e := range cfg.Environment {
			t.Env[e.Name] = r.str(e.Value)
		}
	}
	if len(cfg.SourceFileMap) > 0 {
		t.Remaps = make(map[string]string, len(cfg.SourceFileMap))
		for k, v := range cfg.SourceFileMap {
			t.Remaps[r.str(k)] = r.str(v)
		}
	}
	for _, c := range cfg.SetupCommands {
		c.Text = r.str(c.Text)
		t.SetupCommands = append(t.SetupCommands, c)
	}
	if t.Program != "" && !filepath.IsAbs(t.Program) && ctx.WorkspaceFolder != "" {
		t.Program = filepath.Join(ctx.WorkspaceFolder, t.Program)
	}

	if r.err != nil {
		return nil, debugerrors.ConfigInvalid(cfg.Name, r.err.Error())
	}
	if cfg.IsAttach() && t.PID == "" && t.Remote == "" {
		return nil, debugerrors.ConfigInvalid(cfg.Name, "processId resolved to an empty value")
	}
	return t, nil
}

type resolver struct {
	ctx *ResolutionContext
	err error
}

func (r *resolver) str(s string) string {
	out, err := ResolveVariables(s, r.ctx)
	if err != nil && r.err == nil {
		r.err = err
	}
	return out
}

// Commands returns the MI batch that prepares gdb for the target: setup
// commands, path remaps, working directory and environment, then the
// load, attach or remote connection.
func (t *Target) Commands() []string {
	var cmds []string
	for _, c := range t.SetupCommands {
		if c.IgnoreFailures {
			cmds = append(cmds, mi.IgnoreErrors(c.Text)...)
		} else {
			cmds = append(cmds, c.Text)
		}
	}
	cmds = append(cmds, mi.SubstitutePaths(t.Remaps)...)
	if t.Cwd != "" {
		cmds = append(cmds, mi.EnvironmentCd(t.Cwd))
	}
	names := make([]string, 0, len(t.Env))
	for k := range t.Env {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		cmds = append(cmds, mi.SetEnvironment(k, t.Env[k]))
	}

	switch {
	case t.Remote != "":
		if t.Program != "" {
			cmds = append(cmds, mi.FileExecAndSymbols(t.Program))
		}
		cmds = append(cmds, mi.TargetRemote(t.Remote), mi.CmdBreakList)
	case t.PID != "":
		if t.Program != "" {
			cmds = append(cmds, mi.FileExecAndSymbols(t.Program))
		}
		cmds = append(cmds, mi.TargetAttach(t.PID), mi.CmdBreakList)
	default:
		cmds = append(cmds, mi.LoadBinary(t.Program, quoteArgs(t.Args), t.BreakOnMain)...)
	}
	return cmds
}

// Binary is the path recorded as the loaded binary, if any.
func (t *Target) Binary() string { return t.Program }

func (t *Target) String() string {
	switch {
	case t.Remote != "":
		return fmt.Sprintf("%s (remote %s)", t.Name, t.Remote)
	case t.PID != "":
		return fmt.Sprintf("%s (pid %s)", t.Name, t.PID)
	}
	return fmt.Sprintf("%s (%s)", t.Name, t.Program)
}
