// Package console keeps the session transcript: commands sent, gdb
// stream output, errors and engine messages, in arrival order.
package console

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// DefaultLimit bounds the transcript; the oldest entries are dropped.
const DefaultLimit = 5000

// Entry is one transcript line
type Entry struct {
	ID      string                 `json:"id"`
	Type    types.ConsoleEntryType `json:"type"`
	Value   string                 `json:"value"`
	BatchID string                 `json:"batchId,omitempty"`
}

// ignored lists output produced by refresh commands sent before a
// program is running.
var ignored = map[string]struct{}{
	"No registers.": {},
}

// Console appends entries to the store's transcript key.
type Console struct {
	store *store.Store
	limit int
}

// New returns a Console writing to s.
func New(s *store.Store) *Console {
	return &Console{store: s, limit: DefaultLimit}
}

// SetLimit changes the transcript bound. Non-positive values are ignored.
func (c *Console) SetLimit(n int) {
	if n > 0 {
		c.limit = n
	}
}

// Add appends one entry per line.
func (c *Console) Add(typ types.ConsoleEntryType, lines ...string) {
	c.add("", typ, lines)
}

// AddSentCommands records a command batch tagged with its batch id.
func (c *Console) AddSentCommands(batchID string, cmds []string) {
	c.add(batchID, types.ConsoleSentCommand, cmds)
}

// AddStream records a console, output, target or log record.
func (c *Console) AddStream(r mi.Record) {
	typ := types.ConsoleStdOut
	if r.Stream == "stderr" || r.Type == mi.TypeLog {
		typ = types.ConsoleStdErr
	}
	text := strings.TrimSuffix(r.Payload.Text(), "\n")
	if text == "" {
		return
	}
	c.Add(typ, text)
}

// AddRecord summarises a result or notify record: its message, the
// interesting payload fields and the reported frame location. Error
// records are written as STD_ERR.
func (c *Console) AddRecord(r mi.Record) {
	var lines []string
	typ := types.ConsoleStdOut
	if r.IsError() {
		typ = types.ConsoleStdErr
	} else if r.Message != "" {
		lines = append(lines, r.Message)
	}
	for _, k := range []string{"msg", "reason", "signal-name", "signal-meaning"} {
		if v := r.Payload.String(k); v != "" {
			lines = append(lines, v)
		}
	}
	if frame := r.Payload.Get("frame"); frame.IsObject() {
		for _, k := range []string{"file", "func", "line", "addr"} {
			if v := frame.Get(k); v.Exists() {
				lines = append(lines, k+": "+v.String())
			}
		}
	}
	c.Add(typ, lines...)
}

// Entries returns the transcript.
func (c *Console) Entries() []Entry {
	return store.Value[[]Entry](c.store, state.KeyConsoleEntries)
}

// Clear empties the transcript.
func (c *Console) Clear() {
	c.store.Set(state.KeyConsoleEntries, []Entry{})
}

func (c *Console) add(batchID string, typ types.ConsoleEntryType, lines []string) {
	if len(lines) == 0 {
		return
	}
	entries := c.Entries()
	next := make([]Entry, 0, len(entries)+len(lines))
	next = append(next, entries...)
	for _, line := range lines {
		if _, skip := ignored[line]; skip {
			continue
		}
		next = append(next, Entry{
			ID:      ulid.Make().String(),
			Type:    typ,
			Value:   line,
			BatchID: batchID,
		})
	}
	if over := len(next) - c.limit; over > 0 {
		next = next[over:]
	}
	c.store.Set(state.KeyConsoleEntries, next)
}
