// Package expr manages gdb variable objects: user expressions, expanded
// locals and hover evaluations.
//
// Creation and child listing each go through a FIFO queue with at most
// one command in flight. Every command carries a correlation token so
// the response is matched to its request even when other commands are
// interleaved; responses without a token fall back to the in-flight
// request of the matching queue.
package expr

import (
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/ctagard/gdbmi-mcp/internal/console"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// Runner sends command batches to gdb.
type Runner interface {
	RunCommands(cmds ...string) error
}

type request struct {
	token mi.Token
	text  string
	kind  Kind
}

type fifo struct {
	pending []request
	active  *request
}

func (q *fifo) has(text string, kind Kind) bool {
	if q.active != nil && q.active.text == text && q.active.kind == kind {
		return true
	}
	for _, r := range q.pending {
		if r.text == text && r.kind == kind {
			return true
		}
	}
	return false
}

func (q *fifo) drop(match func(request) bool) {
	kept := q.pending[:0]
	for _, r := range q.pending {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	q.pending = kept
}

// Engine owns the expression forest.
type Engine struct {
	store   *store.Store
	console *console.Console
	run     Runner
	tokens  *mi.Correlator

	roots        []*Var
	create       fifo
	children     fifo
	inFlight     map[mi.Token]*fifo
	historyLimit int
}

func New(st *store.Store, con *console.Console, run Runner, tokens *mi.Correlator) *Engine {
	e := &Engine{
		store:        st,
		console:      con,
		run:          run,
		tokens:       tokens,
		inFlight:     make(map[mi.Token]*fifo),
		historyLimit: DefaultHistoryLimit,
	}
	e.publish()
	return e
}

// SetHistoryLimit changes the per-variable history bound.
func (e *Engine) SetHistoryLimit(n int) {
	if n > 0 {
		e.historyLimit = n
	}
}

// Roots returns a copy of the forest.
func (e *Engine) Roots() []*Var {
	out := make([]*Var, len(e.roots))
	for i, v := range e.roots {
		out[i] = v.clone()
	}
	return out
}

// CreateExpression queues a -var-create for text. A root of the same
// kind and text that exists or is already queued is not created twice.
func (e *Engine) CreateExpression(text string, kind Kind) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return debugerrors.MissingParameter("expression", "the expression to evaluate")
	}
	for _, v := range e.roots {
		if v.Expression == text && v.Kind == kind {
			return nil
		}
	}
	if e.create.has(text, kind) {
		return nil
	}
	e.create.pending = append(e.create.pending, request{text: text, kind: kind})
	return e.nextCreate()
}

// Hover replaces the current hover evaluation with text.
func (e *Engine) Hover(text string) error {
	for _, v := range e.rootsOfKind(KindHover) {
		e.logErr(e.Delete(v.Name))
	}
	e.create.drop(func(r request) bool { return r.kind == KindHover })
	return e.CreateExpression(text, KindHover)
}

// ExpandLocal creates a variable object for a local so its members can
// be listed.
func (e *Engine) ExpandLocal(name string) error {
	return e.CreateExpression(name, KindLocal)
}

func (e *Engine) nextCreate() error {
	if e.create.active != nil || len(e.create.pending) == 0 {
		return nil
	}
	r := e.create.pending[0]
	e.create.pending = e.create.pending[1:]
	r.token = e.tokens.Next()
	e.create.active = &r
	e.inFlight[r.token] = &e.create

	var cmds []string
	if store.Value[bool](e.store, state.KeyPrettyPrint) {
		cmds = append(cmds, mi.CmdPrettyPrinting)
	}
	cmds = append(cmds, mi.VarCreate(r.token, r.text))
	if err := e.run.RunCommands(cmds...); err != nil {
		e.finish(&e.create, r.token)
		return err
	}
	return nil
}

func (e *Engine) nextChildren() error {
	if e.children.active != nil || len(e.children.pending) == 0 {
		return nil
	}
	r := e.children.pending[0]
	e.children.pending = e.children.pending[1:]
	r.token = e.tokens.Next()
	e.children.active = &r
	e.inFlight[r.token] = &e.children

	if err := e.run.RunCommands(mi.VarListChildren(r.token, r.text)); err != nil {
		e.finish(&e.children, r.token)
		return err
	}
	return nil
}

// claim resolves the request a response belongs to and clears it from
// its queue.
func (e *Engine) claim(q *fifo, t mi.Token) (request, bool) {
	if q.active == nil {
		return request{}, false
	}
	switch {
	case t == q.active.token:
	case t == mi.NoToken:
	case t == mi.TokenCreateVar && q == &e.create:
	default:
		return request{}, false
	}
	r := *q.active
	e.finish(q, r.token)
	return r, true
}

func (e *Engine) finish(q *fifo, t mi.Token) {
	delete(e.inFlight, t)
	if q.active != nil && q.active.token == t {
		q.active = nil
	}
}

// OwnsToken reports whether a response tagged t answers an engine
// command.
func (e *Engine) OwnsToken(t mi.Token) bool {
	if t == mi.TokenCreateVar {
		return true
	}
	_, ok := e.inFlight[t]
	return ok
}

// HandleCreated saves a created root and fetches its children.
func (e *Engine) HandleCreated(t mi.Token, res mi.VarCreatedResult) {
	r, ok := e.claim(&e.create, t)
	if !ok {
		glog.Warningf("[expr]unexpected var-create result %q token %d", res.Name, t)
		return
	}
	v := newRoot(r.text, r.kind, res)
	e.roots = append(e.roots, v)
	if v.NeedsChildren() {
		e.enqueueChildren(v.Name, v.Kind)
	}
	e.publish()
	e.logErr(e.nextCreate())
}

// HandleError consumes an error result for an engine command. It
// reports false when the record belongs to someone else.
func (e *Engine) HandleError(rec mi.Record) bool {
	if !e.OwnsToken(rec.Token) {
		return false
	}
	if q, ok := e.inFlight[rec.Token]; ok && q == &e.children {
		r, _ := e.claim(q, rec.Token)
		glog.Warningf("[expr]listing children of %s failed: %s", r.text, rec.Payload.String("msg"))
		e.console.AddRecord(rec)
		e.logErr(e.nextChildren())
		return true
	}
	r, ok := e.claim(&e.create, rec.Token)
	if !ok {
		return true
	}
	if r.kind != KindHover {
		e.console.AddRecord(rec)
	}
	e.logErr(e.nextCreate())
	return true
}

// FetchAndShowChildren marks name expanded and lists its children if
// they were never fetched.
func (e *Engine) FetchAndShowChildren(name string) error {
	v := e.Resolve(name)
	if v == nil {
		return debugerrors.VarNotFound(name)
	}
	v.Expanded = true
	if v.NeedsChildren() {
		e.enqueueChildren(v.Name, v.Kind)
	}
	e.publish()
	return nil
}

// Collapse marks name collapsed. Fetched children are kept.
func (e *Engine) Collapse(name string) error {
	v := e.Resolve(name)
	if v == nil {
		return debugerrors.VarNotFound(name)
	}
	v.Expanded = false
	e.publish()
	return nil
}

func (e *Engine) enqueueChildren(name string, kind Kind) {
	if e.children.has(name, kind) {
		return
	}
	e.children.pending = append(e.children.pending, request{text: name, kind: kind})
	e.logErr(e.nextChildren())
}

// HandleChildren attaches listed children to their parent.
func (e *Engine) HandleChildren(t mi.Token, res mi.ChildrenResult) {
	r, ok := e.claim(&e.children, t)
	if !ok {
		glog.Warningf("[expr]unexpected children result token %d", t)
		return
	}
	parent := e.Resolve(r.text)
	if parent == nil {
		glog.Warningf("[expr]children of %s arrived after it was deleted", r.text)
		e.logErr(e.nextChildren())
		return
	}
	kids := make([]*Var, 0, len(res.Children))
	for _, c := range res.Children {
		kids = append(kids, newChild(parent, c))
	}
	parent.Children = kids
	parent.NumChild = len(kids)
	parent.HasMore = res.HasMore == "1"
	parent.childrenFetched = true
	e.publish()

	e.logErr(e.nextChildren())
	for _, k := range kids {
		if strings.Contains(k.Expression, "<anonymous") {
			e.logErr(e.FetchAndShowChildren(k.Name))
		}
	}
}

// HandleChangelist merges a -var-update changelist into the forest.
func (e *Engine) HandleChangelist(changes []mi.VarChange) {
	for _, c := range changes {
		v := e.Resolve(c.Name)
		if v == nil {
			continue
		}
		if c.InScope == "invalid" {
			e.logErr(e.Delete(v.Name))
			continue
		}
		if c.HasMore == "1" && v.childrenFetched {
			e.enqueueChildren(v.Name, v.Kind)
		}
		v.HasMore = c.HasMore == "1"
		if c.Dynamic != "" {
			v.Dynamic = c.Dynamic == "1"
		}
		if c.DisplayHint != "" {
			v.DisplayHint = c.DisplayHint
		}
		for _, nc := range c.NewChildren {
			v.Children = append(v.Children, newChild(v, nc))
		}
		if c.Value != nil {
			v.Value = *c.Value
		}
		v.InScope = c.InScope == "true"
		if v.InScope && c.Value != nil {
			v.appendHistory(*c.Value, e.historyLimit)
		}
		if c.TypeChanged == "true" {
			v.Children = nil
			v.childrenFetched = false
		}
		if c.NewType != "" {
			v.Type = c.NewType
		}
		if c.NewNumChildren != "" {
			v.NumChild, _ = strconv.Atoi(c.NewNumChildren)
		}
	}
	e.publish()
}

// Delete removes name and its subtree and deletes the gdb variable
// object.
func (e *Engine) Delete(name string) error {
	v := e.Resolve(name)
	if v == nil {
		return debugerrors.VarNotFound(name)
	}
	e.remove(v)
	e.publish()
	return e.run.RunCommands(mi.VarDelete(v.Name))
}

// remove detaches v from the forest and forgets queued work under it.
// gdb deletes a variable object's children along with it.
func (e *Engine) remove(v *Var) {
	if v.Parent == nil {
		e.roots = without(e.roots, v)
	} else {
		v.Parent.Children = without(v.Parent.Children, v)
		v.Parent.NumChild = len(v.Parent.Children)
	}
	prefix := v.Name + "."
	e.children.drop(func(r request) bool {
		return r.text == v.Name || strings.HasPrefix(r.text, prefix)
	})
	if v.Name == store.Value[string](e.store, state.KeyRootVar) {
		e.store.Set(state.KeyRootVar, "")
	}
}

// ClearLocals deletes the variable objects created for locals. Called
// when the selected frame changes.
func (e *Engine) ClearLocals() {
	for _, v := range e.rootsOfKind(KindLocal) {
		e.logErr(e.Delete(v.Name))
	}
	e.create.drop(func(r request) bool { return r.kind == KindLocal })
}

// Reset forgets every variable object without talking to gdb, for use
// after gdb exits or the session reconnects.
func (e *Engine) Reset() {
	e.roots = nil
	e.create = fifo{}
	e.children = fifo{}
	e.inFlight = make(map[mi.Token]*fifo)
	e.publish()
}

// UpdateCommand refreshes every variable object.
func (e *Engine) UpdateCommand() string {
	return mi.CmdVarUpdateAll
}

// UpdateCommands refreshes name and each of its fetched descendants.
func (e *Engine) UpdateCommands(name string) []string {
	v := e.Resolve(name)
	if v == nil {
		return nil
	}
	var cmds []string
	var walk func(*Var)
	walk = func(n *Var) {
		cmds = append(cmds, "-var-update --all-values "+n.Name)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(v)
	return cmds
}

// Resolve finds the variable object named name. Child names extend
// their parent's name with ".field", so the path is walked one segment
// at a time.
func (e *Engine) Resolve(name string) *Var {
	parts := strings.Split(name, ".")
	var cur *Var
	for _, r := range e.roots {
		if r.Name == parts[0] {
			if cur != nil {
				glog.Warningf("[expr]root %s is not unique", parts[0])
				return nil
			}
			cur = r
		}
	}
	if cur == nil {
		glog.V(1).Infof("[expr]no variable %s", name)
		return nil
	}
	path := parts[0]
	for _, p := range parts[1:] {
		path += "." + p
		var next *Var
		for _, c := range cur.Children {
			if c.Name == path {
				next = c
				break
			}
		}
		if next == nil {
			glog.V(1).Infof("[expr]no variable %s", name)
			return nil
		}
		cur = next
	}
	return cur
}

// SaveLocals stores the frame's locals, marking the ones that can be
// expanded into variable objects.
func (e *Engine) SaveLocals(locals []types.Local) {
	out := make([]types.Local, len(locals))
	for i, l := range locals {
		l.CanBeExpanded = l.Value == nil || strings.Contains(l.Type, "*")
		out[i] = l
	}
	e.store.Set(state.KeyLocals, out)
}

func (e *Engine) rootsOfKind(k Kind) []*Var {
	var out []*Var
	for _, v := range e.roots {
		if v.Kind == k {
			out = append(out, v)
		}
	}
	return out
}

func (e *Engine) publish() {
	e.store.Set(state.KeyExpressions, e.Roots())
}

func (e *Engine) logErr(err error) {
	if err != nil {
		glog.Warningf("[expr]%v", err)
	}
}

func without(list []*Var, v *Var) []*Var {
	out := list[:0:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
