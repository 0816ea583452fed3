package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/ctagard/gdbmi-mcp/internal/clock"
	"github.com/ctagard/gdbmi-mcp/internal/console"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

type fakeReader struct {
	total    int
	modified float64
	err      error
	reads    atomic.Int32
}

func (r *fakeReader) ReadFile(_ context.Context, path string, start, end int) (types.FileChunk, error) {
	r.reads.Add(1)
	if r.err != nil {
		return types.FileChunk{}, r.err
	}
	end = min(end, r.total)
	var lines []string
	for l := start; l <= end; l++ {
		lines = append(lines, fmt.Sprintf("line %d", l))
	}
	return types.FileChunk{Path: path, StartLine: start, EndLine: end, Lines: lines, NumLinesInFile: r.total, LastModifiedUnixSec: r.modified}, nil
}

type negatives struct {
	files map[string]bool
	addrs map[string]bool
}

func newNegatives() *negatives {
	return &negatives{files: map[string]bool{}, addrs: map[string]bool{}}
}

func (n *negatives) IsMissingFile(f string) bool     { return n.files[f] }
func (n *negatives) AddMissingFile(f string)          { n.files[f] = true }
func (n *negatives) IsUnfetchableAddr(a string) bool { return n.addrs[a] }
func (n *negatives) AddUnfetchableAddr(a string)      { n.addrs[a] = true }

type recorder struct{ cmds []string }

func (r *recorder) RunCommands(cmds ...string) error {
	r.cmds = append(r.cmds, cmds...)
	return nil
}

// loop stands in for the session goroutine: posted merges run when the
// test calls step.
type loop chan func()

func (l loop) post(f func()) { l <- f }

func (l loop) step(t *testing.T) {
	t.Helper()
	select {
	case f := <-l:
		f()
	case <-time.After(2 * time.Second):
		t.Fatal("no read completed")
	}
}

type fixture struct {
	m      *Manager
	st     *store.Store
	con    *console.Console
	reader *fakeReader
	neg    *negatives
	run    *recorder
	loop   loop
}

func newFixture(t *testing.T) *fixture {
	st := store.New(clock.Fake(time.Unix(0, 0)), state.Initial())
	f := &fixture{
		st:     st,
		con:    console.New(st),
		reader: &fakeReader{total: 600},
		neg:    newNegatives(),
		run:    &recorder{},
		loop:   make(loop, 8),
	}
	f.m = New(st, f.con, f.reader, f.neg, f.run, WithExecutor(f.loop.post))
	t.Cleanup(f.m.Close)
	return f
}

func TestWindow(t *testing.T) {
	tests := []struct {
		line, size, total    int
		start, end, required int
	}{
		{10, 500, UnknownLines, 1, 501, 10},
		{1000, 500, UnknownLines, 750, 1250, 1000},
		{1000, 500, 900, 750, 900, 900},
		{5, 10, 3, 1, 3, 3},
		{0, 10, UnknownLines, 1, 11, 1},
		{7, 5, UnknownLines, 4, 9, 7},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%d", tt.line, tt.size, tt.total), func(t *testing.T) {
			start, end, req := Window(tt.line, tt.size, tt.total)
			assert.Equal(t, start, tt.start)
			assert.Equal(t, end, tt.end)
			assert.Equal(t, req, tt.required)
		})
	}
}

// TestViewCachedWindowReadsNothing verifies a second view of a cached
// window is answered without another read.
func TestViewCachedWindowReadsNothing(t *testing.T) {
	f := newFixture(t)
	done := f.m.View("/src/a.c", 10)
	f.loop.step(t)
	assert.Equal(t, <-done, nil)
	assert.Equal(t, f.reader.reads.Load(), int32(1))

	assert.Equal(t, <-f.m.View("/src/a.c", 10), nil)
	assert.Equal(t, <-f.m.View("/src/a.c", 200), nil)
	assert.Equal(t, f.reader.reads.Load(), int32(1))

	file := f.m.File("/src/a.c")
	assert.Equal(t, file.NumLines, 600)
	assert.Equal(t, file.Lines[501], "line 501")

	infos := store.Value[[]Info](f.st, state.KeyCachedSourceFiles)
	assert.Equal(t, len(infos), 1)
	assert.Equal(t, infos[0].CachedLines, 501)
}

func TestConcurrentViewsShareOneRead(t *testing.T) {
	f := newFixture(t)
	a := f.m.View("/src/a.c", 10)
	b := f.m.View("/src/a.c", 10)
	f.loop.step(t)
	assert.Equal(t, <-a, nil)
	assert.Equal(t, <-b, nil)
	assert.Equal(t, f.reader.reads.Load(), int32(1))
}

func TestMergeKeepsKnownLines(t *testing.T) {
	file := newFile("/a.c")
	file.merge(types.FileChunk{StartLine: 1, Lines: []string{"one", "two"}, NumLinesInFile: 3})
	file.merge(types.FileChunk{StartLine: 2, Lines: []string{"TWO", "three"}, NumLinesInFile: 3})
	assert.Equal(t, file.Lines, map[int]string{1: "one", 2: "two", 3: "three"})
	assert.Equal(t, file.HasLines(1, 50), true)
}

func TestShortReadEndsFile(t *testing.T) {
	file := newFile("/a.c")
	file.merge(types.FileChunk{StartLine: 1, EndLine: 10, Lines: []string{"a", "b"}})
	assert.Equal(t, file.NumLines, 2)
	assert.Equal(t, file.HasLines(1, 10), true)
}

func TestMissingFileIsNotReadTwice(t *testing.T) {
	f := newFixture(t)
	f.reader.err = debugerrors.FileMissing("/gone.c", fmt.Errorf("File not found: /gone.c"))

	done := f.m.View("/gone.c", 1)
	f.loop.step(t)
	assert.NotEqual(t, <-done, nil)
	assert.Equal(t, f.neg.IsMissingFile("/gone.c"), true)

	entries := f.con.Entries()
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Value, "File not found: /gone.c")
	assert.Equal(t, entries[0].Type, types.ConsoleStdErr)

	assert.NotEqual(t, <-f.m.View("/gone.c", 1), nil)
	assert.Equal(t, f.reader.reads.Load(), int32(1))
}

func TestSyncFetchesSelectedFile(t *testing.T) {
	f := newFixture(t)
	state.ViewFile(f.st, "/src/a.c", 30)
	f.m.Sync()
	assert.Equal(t, store.Value[types.SourceCodeState](f.st, state.KeySourceCodeState), types.SourceFetching)

	f.loop.step(t)
	assert.Equal(t, store.Value[types.SourceCodeState](f.st, state.KeySourceCodeState), types.SourceCached)
}

func TestSaveAssemblyExtendsLines(t *testing.T) {
	f := newFixture(t)
	f.reader.total = 3
	state.ViewFile(f.st, "/src/a.c", 1)
	f.m.Sync()
	f.loop.step(t)

	assert.Equal(t, f.m.FetchAssembly("/src/a.c", 1), nil)
	assert.Equal(t, f.run.cmds, []string{"4-data-disassemble -f /src/a.c -l 1 -n 1000 -- 4"})

	f.m.SaveAssembly(mi.AssemblyResult{Lines: []types.AsmSourceLine{
		{Line: "2", Fullname: "/src/a.c", Instructions: []types.AsmInstruction{{Address: "0x10", Inst: "nop"}}},
		{Line: "5", Fullname: "/src/a.c", Instructions: []types.AsmInstruction{{Address: "0x14", Inst: "ret"}}},
	}}, mi.TokenInlineDisassembly)

	file := f.m.File("/src/a.c")
	assert.Equal(t, file.Lines[2], "line 2")
	assert.Equal(t, file.Lines[4], "")
	assert.Equal(t, file.Lines[5], "")
	assert.Equal(t, file.NumLines, 5)
	assert.Equal(t, len(file.Render(1, 5)), 5)
	assert.Equal(t, file.Render(5, 5)[0].Assembly[0].Inst, "ret")
	assert.Equal(t, store.Value[types.SourceCodeState](f.st, state.KeySourceCodeState), types.SourceAssemblyAndSourceCached)
}

func TestMissingFileAssembly(t *testing.T) {
	f := newFixture(t)
	f.neg.AddMissingFile("/gone.c")
	state.Paused(f.st, &types.Frame{Fullname: "/gone.c", Addr: "0x400500", Line: "3"})

	f.m.Sync()
	assert.Equal(t, store.Value[types.SourceCodeState](f.st, state.KeySourceCodeState), types.SourceFetchingAssembly)
	f.m.Sync()
	assert.Equal(t, f.run.cmds, []string{"2-data-disassemble -s 0x400500 -e 0x400564 -- 0"})

	asm, err := f.m.MissingFileAssembly("0x400500")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(asm), 0)

	f.m.SaveAssembly(mi.AssemblyResult{Instructions: []types.AsmInstruction{{Address: "0x0000000000400500", Inst: "push %rbp"}}}, mi.TokenDisassemblyMissingFile)
	assert.Equal(t, store.Value[types.SourceCodeState](f.st, state.KeySourceCodeState), types.SourceAssemblyCached)
	asm, err = f.m.MissingFileAssembly("0x400500")
	assert.Equal(t, err, nil)
	assert.Equal(t, asm[0].Inst, "push %rbp")
}

func TestMissingFileAssemblyFailure(t *testing.T) {
	f := newFixture(t)
	f.neg.AddMissingFile("/gone.c")
	state.Paused(f.st, &types.Frame{Fullname: "/gone.c", Addr: "0x400500"})
	f.m.Sync()

	f.m.MissingFileAssemblyFailed()
	assert.Equal(t, f.neg.IsUnfetchableAddr("0x400500"), true)
	assert.Equal(t, store.Value[types.SourceCodeState](f.st, state.KeySourceCodeState), types.SourceAssemblyUnavailable)
	assert.Equal(t, len(f.run.cmds), 1)

	_, err := f.m.MissingFileAssembly("0x400500")
	assert.Equal(t, debugerrors.FromError(err).Code, debugerrors.CodeAddressUnreadable)
}

func TestWarnsOnceWhenSourceIsNewerThanBinary(t *testing.T) {
	f := newFixture(t)
	f.st.Set(state.KeyInferiorBinary, "/bin/app")
	f.st.Set(state.KeyBinaryLastModified, int64(100))
	f.reader.modified = 200

	f.m.View("/src/a.c", 1)
	f.loop.step(t)
	assert.Equal(t, f.m.File("/src/a.c").ModifiedAfterBinary, true)

	f.m.Invalidate("/src/a.c")
	f.m.View("/src/a.c", 1)
	f.loop.step(t)

	var warnings int
	for _, e := range f.con.Entries() {
		if e.Type == types.ConsoleOutput {
			warnings++
		}
	}
	assert.Equal(t, warnings, 1)
	assert.Equal(t, f.reader.reads.Load(), int32(2))
}

func TestLocalReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.c")
	if err := os.WriteFile(path, []byte("int main() {\n  return 0;\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 64)
	r, err := NewLocalReader(func(p string) { changed <- p })
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	chunk, err := r.ReadFile(context.Background(), path, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, chunk.StartLine, 2)
	assert.Equal(t, chunk.Lines, []string{"  return 0;", "}", ""})
	assert.Equal(t, chunk.NumLinesInFile, 4)

	_, err = r.ReadFile(context.Background(), filepath.Join(dir, "nope.c"), 1, 1)
	de := debugerrors.FromError(err)
	assert.Equal(t, de.Code, debugerrors.CodeFileMissing)

	if err := os.WriteFile(path, []byte("changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-changed:
		assert.Equal(t, p, path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}
