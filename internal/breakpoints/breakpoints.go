// Package breakpoints keeps the breakpoint list reported by gdb.
//
// gdb reports a breakpoint on an ambiguous location (inline function,
// template) as a parent with addr "<MULTIPLE>" and one child per
// resolved location, numbered "N.M". Children are deleted through their
// parent's number. Newer gdb versions nest the children under the
// parent's locations field; both forms are flattened into one list.
package breakpoints

import (
	"math"
	"strconv"
	"strings"

	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// Breakpoint is a gdb breakpoint with its display location resolved.
type Breakpoint struct {
	types.BreakpointRecord

	LineNumber        int    `json:"lineNumber"`
	TimesHit          int    `json:"timesHit"`
	IsParent          bool   `json:"isParent"`
	IsChild           bool   `json:"isChild"`
	ParentNumber      string `json:"parentNumber,omitempty"`
	FullNameToDisplay string `json:"fullNameToDisplay,omitempty"`
}

// IsEnabled reports whether gdb has the breakpoint enabled.
func (b Breakpoint) IsEnabled() bool {
	return b.Enabled == "y"
}

// DeleteNumber is the number to pass to -break-delete.
func (b Breakpoint) DeleteNumber() string {
	if b.IsChild {
		return b.ParentNumber
	}
	return b.Number
}

// FromRecord derives the display fields of rec.
func FromRecord(rec types.BreakpointRecord) Breakpoint {
	b := Breakpoint{BreakpointRecord: rec}
	b.BreakpointRecord.Locations = nil
	b.IsParent = rec.Addr == "<MULTIPLE>" || rec.Addr == "(MULTIPLE)"
	if n, err := strconv.ParseFloat(rec.Number, 64); err == nil && n != math.Trunc(n) {
		b.IsChild = true
		b.ParentNumber = strconv.Itoa(int(n))
	}
	b.LineNumber, _ = strconv.Atoi(rec.Line)
	b.TimesHit, _ = strconv.Atoi(rec.Times)

	switch {
	case rec.Fullname != "":
		b.FullNameToDisplay = rec.Fullname
	case rec.OriginalLocation != "":
		if file, line, ok := ParseLocation(rec.OriginalLocation); ok {
			b.FullNameToDisplay = file
			if line > 0 {
				b.LineNumber = line
			}
		}
	}
	return b
}

// ParseLocation splits a location of the form "file:line" or
// "-source file -line N". Locations naming a function only report ok
// false.
func ParseLocation(loc string) (file string, line int, ok bool) {
	if strings.HasPrefix(loc, "-") {
		fields := strings.Fields(loc)
		for i := 0; i+1 < len(fields); i++ {
			switch fields[i] {
			case "-source":
				file = fields[i+1]
			case "-line":
				line, _ = strconv.Atoi(fields[i+1])
			}
		}
		return file, line, file != ""
	}
	i := strings.LastIndex(loc, ":")
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(loc[i+1:])
	if err != nil {
		return "", 0, false
	}
	return loc[:i], n, true
}

// Flatten expands nested locations into sibling records.
func Flatten(records []types.BreakpointRecord) []types.BreakpointRecord {
	out := make([]types.BreakpointRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
		for _, loc := range rec.Locations {
			if loc.Fullname == "" && loc.File == "" && loc.OriginalLocation == "" {
				loc.OriginalLocation = rec.OriginalLocation
			}
			out = append(out, loc)
		}
	}
	return out
}

// Manager reads and writes the breakpoint list in the store.
type Manager struct {
	store *store.Store
}

func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// List returns the current breakpoints.
func (m *Manager) List() []Breakpoint {
	return store.Value[[]Breakpoint](m.store, state.KeyBreakpoints)
}

// Save adds rec and any nested locations, replacing breakpoints with
// the same numbers.
func (m *Manager) Save(rec types.BreakpointRecord) Breakpoint {
	incoming := Flatten([]types.BreakpointRecord{rec})
	numbers := make(map[string]bool, len(incoming))
	for _, r := range incoming {
		numbers[r.Number] = true
	}
	current := m.List()
	next := make([]Breakpoint, 0, len(current)+len(incoming))
	for _, b := range current {
		if !numbers[b.Number] {
			next = append(next, b)
		}
	}
	for _, r := range incoming {
		next = append(next, FromRecord(r))
	}
	m.store.Set(state.KeyBreakpoints, next)
	return FromRecord(rec)
}

// SaveAll replaces the list with the body of a breakpoint table.
func (m *Manager) SaveAll(body []types.BreakpointRecord) {
	flat := Flatten(body)
	next := make([]Breakpoint, 0, len(flat))
	for _, r := range flat {
		next = append(next, FromRecord(r))
	}
	m.store.Set(state.KeyBreakpoints, next)
}

// Duplicates returns stored breakpoints at the same fullname, function
// and line as rec, other than rec itself.
func (m *Manager) Duplicates(rec types.BreakpointRecord) []Breakpoint {
	var dups []Breakpoint
	for _, b := range m.List() {
		if b.Number == rec.Number {
			continue
		}
		if b.Fullname == rec.Fullname && b.Func == rec.Func && b.Line == rec.Line {
			dups = append(dups, b)
		}
	}
	return dups
}

// Find returns the breakpoint at fullname:line.
func (m *Manager) Find(fullname string, line int) (Breakpoint, bool) {
	for _, b := range m.List() {
		if b.FullNameToDisplay == fullname && b.LineNumber == line {
			return b, true
		}
	}
	return Breakpoint{}, false
}

// LinesForFile reports the breakpoint lines of fullname.
func (m *Manager) LinesForFile(fullname string) (enabled, disabled, conditional []int) {
	for _, b := range m.List() {
		if b.FullNameToDisplay != fullname {
			continue
		}
		if b.IsEnabled() {
			enabled = append(enabled, b.LineNumber)
		} else {
			disabled = append(disabled, b.LineNumber)
		}
		if b.Cond != "" {
			conditional = append(conditional, b.LineNumber)
		}
	}
	return enabled, disabled, conditional
}

// ToggleCommands removes the breakpoint at fullname:line if there is
// one, and adds it otherwise.
func (m *Manager) ToggleCommands(fullname string, line int) []string {
	if b, ok := m.Find(fullname, line); ok {
		return DeleteCommands(b.DeleteNumber())
	}
	return []string{mi.BreakInsert(fullname, line)}
}

// DeleteCommands deletes number and refreshes the list.
func DeleteCommands(number string) []string {
	return []string{mi.BreakDelete(number), mi.CmdBreakList}
}

// EnableCommands enables or disables number and refreshes the list.
func EnableCommands(number string, enabled bool) []string {
	cmd := mi.BreakDisable(number)
	if enabled {
		cmd = mi.BreakEnable(number)
	}
	return []string{cmd, mi.CmdBreakList}
}

// ConditionCommands sets the condition of number and refreshes the list.
func ConditionCommands(number, condition string) []string {
	return []string{mi.BreakCondition(number, condition), mi.CmdBreakList}
}
