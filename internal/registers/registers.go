// Package registers caches register names and tracks the previous and
// current register values so changed registers can be highlighted.
package registers

import (
	"strconv"
	"strings"

	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// MaxNameFetches bounds how many refreshes request register names while
// none are known.
const MaxNameFetches = 5

// Register is one row of the register view
type Register struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Decimal  string `json:"decimal,omitempty"`
	Previous string `json:"previous,omitempty"`
	Changed  bool   `json:"changed"`
}

// Manager owns the register keys of the store
type Manager struct {
	store       *store.Store
	raw         []string
	nameFetches int
}

func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// UpdateCommands returns the commands that refresh register state, or
// nothing when no program is paused or running.
func (m *Manager) UpdateCommands() []string {
	switch state.ProgramState(m.store) {
	case types.ProgramStatePaused, types.ProgramStateRunning:
	default:
		return nil
	}
	if !store.Value[bool](m.store, state.KeyCanFetchRegisters) {
		m.ClearValues()
		return nil
	}
	var cmds []string
	if len(m.raw) == 0 && m.nameFetches < MaxNameFetches {
		m.nameFetches++
		cmds = append(cmds, mi.CmdRegisterNames)
	}
	return append(cmds, mi.CmdRegisterValues)
}

// SaveNames caches the names reported by gdb. Values are indexed by
// position in this list, so empty names are kept internally and only
// filtered from the published list.
func (m *Manager) SaveNames(names []string) {
	m.raw = append([]string(nil), names...)
	m.nameFetches = 0
	published := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			published = append(published, n)
		}
	}
	m.store.Set(state.KeyRegisterNames, published)
}

// SaveValues moves the current values to previous and stores values.
func (m *Manager) SaveValues(values []types.RegisterValue) {
	current := store.Value[map[string]string](m.store, state.KeyCurrentRegisters)
	next := make(map[string]string, len(values))
	for _, v := range values {
		next[v.Number] = v.Value
	}
	m.store.Set(state.KeyPreviousRegisters, current)
	m.store.Set(state.KeyCurrentRegisters, next)
}

// ClearValues forgets both value sets.
func (m *Manager) ClearValues() {
	m.store.Set(state.KeyPreviousRegisters, map[string]string{})
	m.store.Set(state.KeyCurrentRegisters, map[string]string{})
}

// ClearNames forgets the cached names so the next refresh fetches them.
func (m *Manager) ClearNames() {
	m.raw = nil
	m.store.Set(state.KeyRegisterNames, []string(nil))
}

// Rows joins names and values. ok is false when the cached names and
// values disagree; the caller should clear both and refresh.
func (m *Manager) Rows() (rows []Register, ok bool) {
	current := store.Value[map[string]string](m.store, state.KeyCurrentRegisters)
	previous := store.Value[map[string]string](m.store, state.KeyPreviousRegisters)
	names := store.Value[[]string](m.store, state.KeyRegisterNames)
	if len(names) > 0 && len(current) > 0 && len(names) != len(current) {
		return nil, false
	}
	for i, name := range m.raw {
		if name == "" {
			continue
		}
		num := strconv.Itoa(i)
		r := Register{Number: i, Name: name, Value: current[num]}
		if prev, seen := previous[num]; seen {
			r.Previous = prev
			r.Changed = r.Value != "" && prev != r.Value
		}
		if hex, found := strings.CutPrefix(r.Value, "0x"); found {
			if n, err := strconv.ParseUint(hex, 16, 64); err == nil {
				r.Decimal = strconv.FormatUint(n, 10)
			}
		}
		rows = append(rows, r)
	}
	return rows, true
}
