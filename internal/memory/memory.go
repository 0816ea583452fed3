// Package memory caches bytes read from the inferior with
// -data-read-memory-bytes, one byte per command, keyed by normalized
// address.
package memory

import (
	"fmt"
	"sort"
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

const (
	// MaxRangeBytes caps end - start of one read.
	MaxRangeBytes = 1000

	// DefaultRangeBytes is added to start when no end is given.
	DefaultRangeBytes = 31

	// EdgeRows is how many rows ReadPreceding and ReadMore add.
	EdgeRows = 3

	DefaultBytesPerLine = 8
)

// Entry is one cached byte
type Entry struct {
	Address string `json:"address"`
	Value   string `json:"value"`

	addr uint64
}

// Row is one line of a memory dump
type Row struct {
	Address string   `json:"address"`
	Hex     []string `json:"hex"`
	Chars   string   `json:"chars"`
}

// Runner sends command batches to gdb.
type Runner interface {
	RunCommands(cmds ...string) error
}

// Cache is sorted by address with at most one entry per address.
type Cache struct {
	store   *store.Store
	console *console.Console
	run     Runner
	entries []Entry
}

func New(st *store.Store, con *console.Console, run Runner) *Cache {
	c := &Cache{store: st, console: con, run: run}
	c.publish()
	return c
}

// Normalize parses a hex address and strips leading zeros, so that
// "0x000123" and "0x123" name the same byte.
func Normalize(addr string) (string, error) {
	n, err := parse(addr)
	if err != nil {
		return "", err
	}
	return format(n), nil
}

func parse(addr string) (uint64, error) {
	s := strings.TrimSpace(addr)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

func format(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

// ReadCommands validates a range and returns one read command per byte
// from start through end. An empty or unparsable end reads
// DefaultRangeBytes past start; a range wider than MaxRangeBytes is
// shortened with a transcript note. The normalized range is stored.
func (c *Cache) ReadCommands(start, end string) ([]string, error) {
	s, err := parse(start)
	if err != nil {
		return nil, debugerrors.InvalidParameter("start", start, "a hex address such as 0x7ffe0000")
	}
	e, err := parse(end)
	switch {
	case err != nil || e < s:
		e = s + DefaultRangeBytes
	case e-s > MaxRangeBytes:
		c.console.Add(types.ConsoleStdErr, fmt.Sprintf(
			"Cannot fetch %d bytes. Changed end address to %s since maximum bytes allowed is %d.",
			e-s, format(s+MaxRangeBytes), MaxRangeBytes))
		e = s + MaxRangeBytes
	}
	c.store.Set(state.KeyMemoryStart, format(s))
	c.store.Set(state.KeyMemoryEnd, format(e))
	return rangeCommands(s, e), nil
}

func rangeCommands(s, e uint64) []string {
	cmds := make([]string, 0, e-s+1)
	for a := s; a <= e; a++ {
		cmds = append(cmds, mi.ReadMemoryByte(a))
		if a == ^uint64(0) {
			break
		}
	}
	return cmds
}

// Fetch clears the cache and reads start through end.
func (c *Cache) Fetch(start, end string) error {
	cmds, err := c.ReadCommands(start, end)
	if err != nil {
		return err
	}
	c.Clear()
	return c.run.RunCommands(cmds...)
}

// ReadPreceding extends the range EdgeRows rows towards lower addresses
// and reads only the new bytes.
func (c *Cache) ReadPreceding() error {
	s, e, err := c.bounds()
	if err != nil {
		return err
	}
	off := uint64(c.BytesPerLine() * EdgeRows)
	if s == 0 {
		return nil
	}
	newStart := s - min(off, s)
	c.store.Set(state.KeyMemoryStart, format(newStart))
	c.store.Set(state.KeyMemoryEnd, format(e))
	return c.run.RunCommands(rangeCommands(newStart, s-1)...)
}

// ReadMore extends the range EdgeRows rows towards higher addresses and
// reads only the new bytes.
func (c *Cache) ReadMore() error {
	_, e, err := c.bounds()
	if err != nil {
		return err
	}
	off := uint64(c.BytesPerLine() * EdgeRows)
	c.store.Set(state.KeyMemoryEnd, format(e+off))
	return c.run.RunCommands(rangeCommands(e+1, e+off)...)
}

func (c *Cache) bounds() (uint64, uint64, error) {
	start := store.Value[string](c.store, state.KeyMemoryStart)
	s, err := parse(start)
	if err != nil {
		return 0, 0, debugerrors.InvalidParameter("start", start, "read a memory range first")
	}
	e, err := parse(store.Value[string](c.store, state.KeyMemoryEnd))
	if err != nil || e < s {
		e = s + DefaultRangeBytes
	}
	return s, e, nil
}

// RefreshCommands re-reads the current range after the program stops.
// It is empty when no range was requested.
func (c *Cache) RefreshCommands() []string {
	s, e, err := c.bounds()
	if err != nil {
		return nil
	}
	return rangeCommands(s, min(e, s+MaxRangeBytes))
}

// BytesPerLine returns the dump width preference, at least 1.
func (c *Cache) BytesPerLine() int {
	n, err := strconv.Atoi(store.Value[string](c.store, state.KeyBytesPerLine))
	if err != nil {
		return DefaultBytesPerLine
	}
	return max(n, 1)
}

// Add splits the contents of each range into bytes and merges them.
// A byte already cached at the same address is replaced.
func (c *Cache) Add(ranges []types.MemoryRange) {
	for _, r := range ranges {
		begin, err := parse(r.Begin)
		if err != nil {
			glog.Warningf("[mem]bad range begin %q", r.Begin)
			continue
		}
		if r.Offset != "" {
			if off, err := parse(r.Offset); err == nil {
				begin += off
			}
		}
		for i := 0; i+1 < len(r.Contents); i += 2 {
			c.put(begin+uint64(i/2), r.Contents[i:i+2])
		}
	}
	c.publish()
}

func (c *Cache) put(addr uint64, value string) {
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].addr >= addr })
	if i < len(c.entries) && c.entries[i].addr == addr {
		c.entries[i].Value = value
		return
	}
	c.entries = append(c.entries, Entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = Entry{Address: format(addr), Value: value, addr: addr}
}

// Entries returns the cached bytes in address order.
func (c *Cache) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.entries = nil
	c.publish()
}

// Rows groups the cached bytes into rows of bytesPerLine.
func (c *Cache) Rows(bytesPerLine int) []Row {
	bytesPerLine = max(bytesPerLine, 1)
	var rows []Row
	for i := 0; i < len(c.entries); i += bytesPerLine {
		chunk := c.entries[i:min(i+bytesPerLine, len(c.entries))]
		row := Row{Address: chunk[0].Address}
		var chars strings.Builder
		for _, e := range chunk {
			row.Hex = append(row.Hex, e.Value)
			chars.WriteByte(printable(e.Value))
		}
		row.Chars = chars.String()
		rows = append(rows, row)
	}
	return rows
}

func printable(hex string) byte {
	b, err := strconv.ParseUint(hex, 16, 8)
	if err != nil {
		return '.'
	}
	switch c := byte(b); {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return c
	}
	return '.'
}

func (c *Cache) publish() {
	c.store.Set(state.KeyMemoryCache, c.Entries())
}
