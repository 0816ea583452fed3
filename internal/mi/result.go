package mi

import (
	"errors"
	"fmt"

	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// Kind names a result payload shape by its distinguishing key.
type Kind string

const (
	KindBreakpoint      Kind = "bkpt"
	KindBreakpointTable Kind = "BreakpointTable"
	KindStack           Kind = "stack"
	KindThreads         Kind = "threads"
	KindRegisterNames   Kind = "register-names"
	KindRegisterValues  Kind = "register-values"
	KindAssembly        Kind = "asm_insns"
	KindSourceFiles     Kind = "files"
	KindMemory          Kind = "memory"
	KindLocals          Kind = "variables"
	KindChangelist      Kind = "changelist"
	KindChildren        Kind = "children"
	KindVarCreated      Kind = "name"
	KindFeatures        Kind = "features"
	KindTargetFeatures  Kind = "target_features"
)

// AllKinds lists every shape in the order Classify tests for them.
var AllKinds = []Kind{
	KindBreakpoint,
	KindBreakpointTable,
	KindStack,
	KindThreads,
	KindRegisterNames,
	KindRegisterValues,
	KindAssembly,
	KindSourceFiles,
	KindMemory,
	KindLocals,
	KindChangelist,
	KindChildren,
	KindVarCreated,
	KindFeatures,
	KindTargetFeatures,
}

// Result is one recognised shape within a done payload. The concrete
// types below form a closed set; consumers switch on them.
type Result interface {
	Kind() Kind
}

type BreakpointResult struct {
	Breakpoint types.BreakpointRecord
}

type BreakpointTableResult struct {
	Body []types.BreakpointRecord
}

type StackResult struct {
	Frames []types.Frame
}

type ThreadsResult struct {
	types.Threads
}

type RegisterNamesResult struct {
	Names []string
}

type RegisterValuesResult struct {
	Values []types.RegisterValue
}

// AssemblyResult holds either source-interleaved lines (modes 3 and 4)
// or a flat instruction list (mode 0).
type AssemblyResult struct {
	Lines        []types.AsmSourceLine
	Instructions []types.AsmInstruction
}

type SourceFilesResult struct {
	Files []types.SourceFileEntry
}

type MemoryResult struct {
	Ranges []types.MemoryRange
}

type LocalsResult struct {
	Locals []types.Local
}

// VarChild is one child of a variable object
type VarChild struct {
	Name     string `json:"name"`
	Exp      string `json:"exp"`
	NumChild string `json:"numchild"`
	Value    string `json:"value,omitempty"`
	Type     string `json:"type,omitempty"`
	ThreadID string `json:"thread-id,omitempty"`
	Dynamic  string `json:"dynamic,omitempty"`
	HasMore  string `json:"has_more,omitempty"`
}

// VarChange is one changelist entry of -var-update
type VarChange struct {
	Name           string     `json:"name"`
	Value          *string    `json:"value,omitempty"`
	InScope        string     `json:"in_scope"`
	TypeChanged    string     `json:"type_changed"`
	NewType        string     `json:"new_type,omitempty"`
	NewNumChildren string     `json:"new_num_children,omitempty"`
	Dynamic        string     `json:"dynamic,omitempty"`
	HasMore        string     `json:"has_more,omitempty"`
	DisplayHint    string     `json:"displayhint,omitempty"`
	NewChildren    []VarChild `json:"new_children,omitempty"`
}

type ChangelistResult struct {
	Changes []VarChange
}

type ChildrenResult struct {
	NumChild string
	HasMore  string
	Children []VarChild
}

// VarCreatedResult is the reply to -var-create
type VarCreatedResult struct {
	Name        string `json:"name"`
	NumChild    string `json:"numchild"`
	Value       string `json:"value,omitempty"`
	Type        string `json:"type,omitempty"`
	ThreadID    string `json:"thread-id,omitempty"`
	HasMore     string `json:"has_more,omitempty"`
	Dynamic     string `json:"dynamic,omitempty"`
	DisplayHint string `json:"displayhint,omitempty"`
}

type FeaturesResult struct {
	Features []string
}

type TargetFeaturesResult struct {
	Features []string
}

func (BreakpointResult) Kind() Kind      { return KindBreakpoint }
func (BreakpointTableResult) Kind() Kind { return KindBreakpointTable }
func (StackResult) Kind() Kind           { return KindStack }
func (ThreadsResult) Kind() Kind         { return KindThreads }
func (RegisterNamesResult) Kind() Kind   { return KindRegisterNames }
func (RegisterValuesResult) Kind() Kind  { return KindRegisterValues }
func (AssemblyResult) Kind() Kind        { return KindAssembly }
func (SourceFilesResult) Kind() Kind     { return KindSourceFiles }
func (MemoryResult) Kind() Kind          { return KindMemory }
func (LocalsResult) Kind() Kind          { return KindLocals }
func (ChangelistResult) Kind() Kind      { return KindChangelist }
func (ChildrenResult) Kind() Kind        { return KindChildren }
func (VarCreatedResult) Kind() Kind      { return KindVarCreated }
func (FeaturesResult) Kind() Kind        { return KindFeatures }
func (TargetFeaturesResult) Kind() Kind  { return KindTargetFeatures }

// Matches reports whether payload p has the shape of kind k. gdb omits
// the children list when a variable object has none, so a numchild and
// has_more pair without a name is an empty children listing.
func Matches(p Payload, k Kind) bool {
	if k == KindChildren {
		return p.Has("has_more") && p.Has("numchild") && (p.Has("children") || !p.Has("name"))
	}
	return p.Has(string(k))
}

// Classify decodes every shape present in p. A payload can carry more
// than one shape; each is returned in AllKinds order. Shapes that match
// but fail to decode are reported in the joined error and skipped.
func Classify(p Payload) ([]Result, error) {
	if !p.IsObject() {
		return nil, nil
	}
	var results []Result
	var errs []error
	for _, k := range AllKinds {
		if !Matches(p, k) {
			continue
		}
		r, err := decode(p, k)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

func decode(p Payload, k Kind) (Result, error) {
	switch k {
	case KindBreakpoint:
		var r BreakpointResult
		err := p.Decode("bkpt", &r.Breakpoint)
		return r, err
	case KindBreakpointTable:
		var r BreakpointTableResult
		if !p.Get("BreakpointTable.body").Exists() {
			return r, nil
		}
		err := p.Decode("BreakpointTable.body", &r.Body)
		return r, err
	case KindStack:
		var r StackResult
		err := p.Decode("stack", &r.Frames)
		return r, err
	case KindThreads:
		var r ThreadsResult
		if err := p.Decode("threads", &r.Threads.Threads); err != nil {
			return nil, err
		}
		r.CurrentThreadID = p.String("current-thread-id")
		return r, nil
	case KindRegisterNames:
		var r RegisterNamesResult
		err := p.Decode("register-names", &r.Names)
		return r, err
	case KindRegisterValues:
		var r RegisterValuesResult
		err := p.Decode("register-values", &r.Values)
		return r, err
	case KindAssembly:
		var r AssemblyResult
		insns := p.Get("asm_insns")
		if insns.Get("0.line_asm_insn").Exists() || insns.Get("0.line").Exists() {
			err := p.Decode("asm_insns", &r.Lines)
			return r, err
		}
		err := p.Decode("asm_insns", &r.Instructions)
		return r, err
	case KindSourceFiles:
		var r SourceFilesResult
		err := p.Decode("files", &r.Files)
		return r, err
	case KindMemory:
		var r MemoryResult
		err := p.Decode("memory", &r.Ranges)
		return r, err
	case KindLocals:
		var r LocalsResult
		err := p.Decode("variables", &r.Locals)
		return r, err
	case KindChangelist:
		var r ChangelistResult
		err := p.Decode("changelist", &r.Changes)
		return r, err
	case KindChildren:
		r := ChildrenResult{
			NumChild: p.String("numchild"),
			HasMore:  p.String("has_more"),
		}
		if p.Get("children").IsArray() {
			if err := p.Decode("children", &r.Children); err != nil {
				return nil, err
			}
		}
		return r, nil
	case KindVarCreated:
		var r VarCreatedResult
		err := p.DecodeAll(&r)
		return r, err
	case KindFeatures:
		var r FeaturesResult
		err := p.Decode("features", &r.Features)
		return r, err
	case KindTargetFeatures:
		var r TargetFeaturesResult
		err := p.Decode("target_features", &r.Features)
		return r, err
	}
	return nil, fmt.Errorf("unknown payload kind %q", k)
}
