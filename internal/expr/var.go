package expr

import (
	"strconv"
	"strings"

	"github.com/ctagard/gdbmi-mcp/internal/mi"
)

// Kind says who created a root expression
type Kind string

const (
	KindExpr  Kind = "expr"
	KindLocal Kind = "local"
	KindHover Kind = "hover"
)

// DefaultHistoryLimit bounds the numeric value history of each variable.
const DefaultHistoryLimit = 100

// Var is a gdb variable object. Name is assigned by gdb and is unique
// across the forest; children are named "<parent>.<field>".
type Var struct {
	Name        string    `json:"name"`
	Expression  string    `json:"expression"`
	Type        string    `json:"type,omitempty"`
	Value       string    `json:"value,omitempty"`
	NumChild    int       `json:"numchild"`
	HasMore     bool      `json:"hasMore"`
	Dynamic     bool      `json:"dynamic,omitempty"`
	DisplayHint string    `json:"displayHint,omitempty"`
	ThreadID    string    `json:"threadId,omitempty"`
	Kind        Kind      `json:"kind"`
	Expanded    bool      `json:"expanded"`
	InScope     bool      `json:"inScope"`
	History     []float64 `json:"history,omitempty"`
	Children    []*Var    `json:"children"`
	Parent      *Var      `json:"-"`

	childrenFetched bool
}

// IsRoot reports whether v was created directly rather than listed as
// a child.
func (v *Var) IsRoot() bool {
	return v.Parent == nil
}

// NeedsChildren reports whether v declares children that were never
// fetched.
func (v *Var) NeedsChildren() bool {
	return v.NumChild > 0 && len(v.Children) == 0
}

// Path returns the source-level access path of v, skipping the access
// specifier pseudo-children gdb inserts for C++ classes.
func (v *Var) Path() string {
	var parts []string
	depth := 0
	for cur := v; cur != nil && depth < 100; cur = cur.Parent {
		switch cur.Expression {
		case "public", "private", "protected":
		default:
			parts = append(parts, cur.Expression)
		}
		depth++
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func (v *Var) appendHistory(value string, limit int) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || !isFinite(f) {
		return
	}
	v.History = append(v.History, f)
	if over := len(v.History) - limit; over > 0 {
		v.History = append([]float64(nil), v.History[over:]...)
	}
}

func isFinite(f float64) bool {
	return f == f && f-f == 0
}

func newRoot(text string, kind Kind, r mi.VarCreatedResult) *Var {
	n, _ := strconv.Atoi(r.NumChild)
	return &Var{
		Name:        r.Name,
		Expression:  text,
		Type:        r.Type,
		Value:       r.Value,
		NumChild:    n,
		HasMore:     r.HasMore == "1",
		Dynamic:     r.Dynamic == "1",
		DisplayHint: r.DisplayHint,
		ThreadID:    r.ThreadID,
		Kind:        kind,
		InScope:     true,
	}
}

func newChild(parent *Var, c mi.VarChild) *Var {
	n, _ := strconv.Atoi(c.NumChild)
	return &Var{
		Name:       c.Name,
		Expression: c.Exp,
		Type:       c.Type,
		Value:      c.Value,
		NumChild:   n,
		HasMore:    c.HasMore == "1",
		Dynamic:    c.Dynamic == "1",
		ThreadID:   c.ThreadID,
		Kind:       parent.Kind,
		InScope:    true,
		Parent:     parent,
	}
}

// clone copies v and its subtree, leaving Parent unset on the copy's
// root.
func (v *Var) clone() *Var {
	c := *v
	c.Parent = nil
	c.History = append([]float64(nil), v.History...)
	c.Children = make([]*Var, len(v.Children))
	for i, child := range v.Children {
		cc := child.clone()
		cc.Parent = &c
		c.Children[i] = cc
	}
	return &c
}
