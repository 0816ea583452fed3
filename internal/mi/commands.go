package mi

import (
	"fmt"
	"sort"
	"strings"
)

// WithToken prefixes cmd with t. NoToken leaves cmd unchanged.
func WithToken(t Token, cmd string) string {
	return t.Prefix() + cmd
}

// IgnoreErrors tags every command with TokenIgnoreErrors.
func IgnoreErrors(cmds ...string) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = WithToken(TokenIgnoreErrors, c)
	}
	return out
}

// Quote renders s as an MI c-string. A value that already starts with a
// double quote is passed through untouched.
func Quote(s string) string {
	if strings.HasPrefix(s, `"`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Common commands
const (
	CmdBreakList        = "-break-list"
	CmdThreadInfo       = "-thread-info"
	CmdStackVariables   = "-stack-list-variables --simple-values"
	CmdVarUpdateAll     = "-var-update --all-values *"
	CmdStackFrames      = "-stack-list-frames"
	CmdRegisterNames    = "-data-list-register-names"
	CmdRegisterValues   = "-data-list-register-values x"
	CmdListFeatures     = "-list-features"
	CmdListTargetFeat   = "-list-target-features"
	CmdSourceFiles      = "-file-list-exec-source-files"
	CmdPrettyPrinting   = "-enable-pretty-printing"
	CmdExecRun          = "-exec-run"
	CmdExecInterrupt    = "-exec-interrupt"
	CmdExecReturn       = "-exec-return"
	CmdBreakInsertMain  = "-break-insert main"
	CmdExecContinue     = "-exec-continue"
	CmdExecNext         = "-exec-next"
	CmdExecStep         = "-exec-step"
	CmdExecFinish       = "-exec-finish"
	CmdExecNextInsn     = "-exec-next-instruction"
	CmdExecStepInsn     = "-exec-step-instruction"
	CmdDisassemblyFlavr = "set disassembly-flavor"
)

// ExecCommand returns cmd, with --reverse appended when reverse is set.
func ExecCommand(cmd string, reverse bool) string {
	if reverse {
		return cmd + " --reverse"
	}
	return cmd
}

// BreakInsert inserts a breakpoint at fullname:line.
func BreakInsert(fullname string, line int) string {
	return "-break-insert " + Quote(fmt.Sprintf("%s:%d", fullname, line))
}

// BreakInsertAt inserts a breakpoint at any gdb location, e.g. a
// function name or *addr.
func BreakInsertAt(location string) string {
	return "-break-insert " + location
}

// BreakDelete deletes breakpoint number (a parent group number for
// multi-location breakpoints).
func BreakDelete(number string) string {
	return "-break-delete " + number
}

func BreakEnable(number string) string  { return "-break-enable " + number }
func BreakDisable(number string) string { return "-break-disable " + number }

// BreakCondition sets the condition of breakpoint number. An empty
// condition clears it.
func BreakCondition(number, condition string) string {
	if condition == "" {
		return "-break-condition " + number
	}
	return "-break-condition " + number + " " + condition
}

// VarCreate creates a floating variable object evaluated in the current
// frame; gdb assigns the name.
func VarCreate(t Token, expression string) string {
	return WithToken(t, "-var-create - * "+Quote(expression))
}

// VarListChildren lists the children of a variable object with values.
func VarListChildren(t Token, name string) string {
	return WithToken(t, "-var-list-children --all-values "+Quote(name))
}

func VarDelete(name string) string { return "-var-delete " + name }

// VarAssign sets the value of a variable object
func VarAssign(name, value string) string {
	return "-var-assign " + name + " " + Quote(value)
}

func StackSelectFrame(level int) string { return fmt.Sprintf("-stack-select-frame %d", level) }
func ThreadSelect(id string) string     { return "-thread-select " + id }
func TargetAttach(target string) string { return "-target-attach " + target }
func TargetRemote(target string) string { return "-target-select remote " + target }

// ReadMemoryByte reads one byte at addr.
func ReadMemoryByte(addr uint64) string {
	return fmt.Sprintf("-data-read-memory-bytes 0x%x 1", addr)
}

// InlineDisassembly disassembles around fullname:line interleaved with
// source, in the given response mode (3 or 4 depending on gdb version).
func InlineDisassembly(fullname string, line, mode int) string {
	return WithToken(TokenInlineDisassembly,
		fmt.Sprintf("-data-disassemble -f %s -l %d -n 1000 -- %d", fullname, line, mode))
}

// MissingFileDisassembly disassembles the 100 bytes following addr.
func MissingFileDisassembly(addr uint64) string {
	return WithToken(TokenDisassemblyMissingFile,
		fmt.Sprintf("-data-disassemble -s 0x%x -e 0x%x -- 0", addr, addr+100))
}

// LoadBinary returns the batch that sets arguments, loads binary and
// refreshes breakpoints, optionally breaking on main.
func LoadBinary(binary, args string, breakOnMain bool) []string {
	cmds := []string{
		"-exec-arguments " + args,
		FileExecAndSymbols(binary),
	}
	if breakOnMain {
		cmds = append(cmds, CmdBreakInsertMain)
	}
	return append(cmds, CmdBreakList)
}

// InitialCommands are sent once when the backend starts a new gdb
// process. Each remap becomes a substitute-path rule, in sorted order.
func InitialCommands(remaps map[string]string) []string {
	return append([]string{CmdListFeatures, CmdListTargetFeat}, SubstitutePaths(remaps)...)
}

// SubstitutePaths returns one substitute-path rule per remap, sorted by
// source prefix.
func SubstitutePaths(remaps map[string]string) []string {
	srcs := make([]string, 0, len(remaps))
	for src := range remaps {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	cmds := make([]string, 0, len(srcs))
	for _, src := range srcs {
		cmds = append(cmds, fmt.Sprintf("set substitute-path %s %s", Quote(src), Quote(remaps[src])))
	}
	return cmds
}

// EnvironmentCd sets the inferior's working directory.
func EnvironmentCd(dir string) string { return "-environment-cd " + Quote(dir) }

// SetEnvironment sets one variable in the inferior's environment.
func SetEnvironment(name, value string) string {
	return fmt.Sprintf("set environment %s=%s", name, value)
}

// FileExecAndSymbols loads binary for both execution and symbols.
func FileExecAndSymbols(binary string) string { return "-file-exec-and-symbols " + binary }

// RefreshCommands is the batch issued whenever the program pauses.
// registers and memory are the caller's current register and memory
// re-read commands, untagged. Every command is tagged to ignore errors
// since several are invalid before a program is running.
func RefreshCommands(registers, memory []string) []string {
	cmds := []string{CmdThreadInfo, CmdStackVariables, CmdVarUpdateAll}
	cmds = append(cmds, registers...)
	cmds = append(cmds, memory...)
	cmds = append(cmds, CmdBreakList, CmdStackFrames)
	return IgnoreErrors(cmds...)
}
