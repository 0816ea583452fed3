// Package source caches windows of source files and their disassembly,
// and derives what the source view can show for the current selection.
//
// File reads go through a FIFO with one read in flight. The read itself
// runs on a worker goroutine; its result is merged back on the session
// goroutine through the executor passed to New. Every other method must
// be called on the session goroutine.
package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/ctagard/gdbmi-mcp/internal/console"
	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/internal/mi"
	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// FileReader reads a window of a source file.
type FileReader interface {
	ReadFile(ctx context.Context, path string, start, end int) (types.FileChunk, error)
}

// Runner sends command batches to gdb.
type Runner interface {
	RunCommands(cmds ...string) error
}

// Negatives remembers files and addresses that could not be fetched, so
// they are not requested again during a session.
type Negatives interface {
	IsMissingFile(fullname string) bool
	AddMissingFile(fullname string)
	IsUnfetchableAddr(addr string) bool
	AddUnfetchableAddr(addr string)
}

// DefaultDisassemblyMode is used until the gdb version is known.
const DefaultDisassemblyMode = 4

type fetch struct {
	fullname   string
	start, end int
	done       []chan error
}

func (f *fetch) complete(err error) {
	for _, ch := range f.done {
		ch <- err
		close(ch)
	}
	f.done = nil
}

// Manager owns the source cache.
type Manager struct {
	store   *store.Store
	console *console.Console
	reader  FileReader
	neg     Negatives
	run     Runner
	post    func(func())

	ctx    context.Context
	cancel context.CancelFunc

	files        map[string]*File
	queue        []*fetch
	fetching     *fetch
	asmMode      int
	fetchingAddr string
	readTimeout  time.Duration
	warned       map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor makes read results merge through post, which must run
// its argument on the session goroutine.
func WithExecutor(post func(func())) Option {
	return func(m *Manager) { m.post = post }
}

// WithReadTimeout bounds a single file read.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readTimeout = d }
}

func New(st *store.Store, con *console.Console, reader FileReader, neg Negatives, run Runner, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:       st,
		console:     con,
		reader:      reader,
		neg:         neg,
		run:         run,
		post:        func(f func()) { f() },
		ctx:         ctx,
		cancel:      cancel,
		files:       make(map[string]*File),
		warned:      make(map[string]bool),
		asmMode:     DefaultDisassemblyMode,
		readTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.publish()
	return m
}

// Close cancels outstanding reads. Waiters receive context.Canceled.
func (m *Manager) Close() {
	m.cancel()
}

// SetDisassemblyMode sets the -data-disassemble mode used for inline
// assembly.
func (m *Manager) SetDisassemblyMode(mode int) {
	m.asmMode = mode
}

// File returns the cache of fullname, or nil.
func (m *Manager) File(fullname string) *File {
	return m.files[fullname]
}

// LinesCached reports whether fullname is cached from start through end.
func (m *Manager) LinesCached(fullname string, start, end int) bool {
	f := m.files[fullname]
	return f != nil && f.HasLines(start, end)
}

// WindowFor computes the fetch window around line using the max lines
// preference and the known length of fullname.
func (m *Manager) WindowFor(fullname string, line int) (start, end, require int) {
	total := UnknownLines
	if f := m.files[fullname]; f != nil {
		total = f.NumLines
	}
	return Window(line, state.MaxLinesOfCode(m.store), total)
}

// View makes sure the window around line is cached. The returned
// channel receives the outcome once; a window already cached reports
// immediately without reading anything.
func (m *Manager) View(fullname string, line int) <-chan error {
	done := make(chan error, 1)
	if fullname == "" {
		done <- debugerrors.MissingParameter("fullname", "absolute path of the source file")
		close(done)
		return done
	}
	if m.neg.IsMissingFile(fullname) {
		done <- debugerrors.FileMissing(fullname, nil)
		close(done)
		return done
	}
	start, end, _ := m.WindowFor(fullname, line)
	if m.LinesCached(fullname, start, end) {
		glog.V(2).Infof("[src]%s:%d-%d cached", fullname, start, end)
		done <- nil
		close(done)
		return done
	}
	for _, f := range m.queue {
		if f.fullname == fullname && f.start == start && f.end == end {
			f.done = append(f.done, done)
			return done
		}
	}
	if f := m.fetching; f != nil && f.fullname == fullname && f.start == start && f.end == end {
		f.done = append(f.done, done)
		return done
	}
	m.queue = append(m.queue, &fetch{fullname: fullname, start: start, end: end, done: []chan error{done}})
	m.fetchNext()
	return done
}

func (m *Manager) fetchNext() {
	if m.fetching != nil {
		return
	}
	for len(m.queue) > 0 {
		f := m.queue[0]
		m.queue = m.queue[1:]
		if m.neg.IsMissingFile(f.fullname) {
			glog.Warningf("[src]not reading %s, known to be missing", f.fullname)
			f.complete(debugerrors.FileMissing(f.fullname, nil))
			continue
		}
		m.fetching = f
		go m.read(f)
		return
	}
}

func (m *Manager) read(f *fetch) {
	ctx, cancel := context.WithTimeout(m.ctx, m.readTimeout)
	defer cancel()
	glog.V(1).Infof("[src]reading %s:%d-%d", f.fullname, f.start, f.end)
	chunk, err := m.reader.ReadFile(ctx, f.fullname, f.start, f.end)
	if m.ctx.Err() != nil {
		f.complete(m.ctx.Err())
		return
	}
	m.post(func() { m.fetched(f, chunk, err) })
}

func (m *Manager) fetched(f *fetch, chunk types.FileChunk, err error) {
	m.fetching = nil
	if err != nil {
		m.neg.AddMissingFile(f.fullname)
		m.console.Add(types.ConsoleStdErr, causeMessage(err))
	} else {
		m.save(f.fullname, chunk)
	}

	// queued windows of the same file may be satisfied now
	finished := []*fetch{f}
	kept := m.queue[:0]
	for _, q := range m.queue {
		if q.fullname == f.fullname && (err != nil || m.LinesCached(q.fullname, q.start, q.end)) {
			finished = append(finished, q)
			continue
		}
		kept = append(kept, q)
	}
	m.queue = kept
	m.Sync()
	m.fetchNext()
	for _, q := range finished {
		q.complete(err)
	}
}

func (m *Manager) save(fullname string, chunk types.FileChunk) {
	file, cached := m.files[fullname]
	if !cached {
		file = newFile(fullname)
		m.files[fullname] = file
	}
	file.merge(chunk)
	if !cached {
		m.warnIfNewerThanBinary(file)
	}
	m.publish()
}

// warnIfNewerThanBinary writes a transcript warning the first time a
// file modified after the loaded binary is cached.
func (m *Manager) warnIfNewerThanBinary(f *File) {
	binary := store.Value[string](m.store, state.KeyInferiorBinary)
	if binary == "" {
		return
	}
	built := store.Value[int64](m.store, state.KeyBinaryLastModified)
	if int64(f.LastModifiedUnixSec) <= built {
		return
	}
	f.ModifiedAfterBinary = true
	if m.warned[f.Fullname] {
		return
	}
	m.warned[f.Fullname] = true
	m.console.Add(types.ConsoleOutput, fmt.Sprintf(
		"Warning: %s was modified after the binary %s was compiled. Recompile the binary, otherwise the source code may not match it.",
		f.Fullname, binary))
}

// Invalidate forgets the cached contents of fullname, e.g. after it
// changed on disk.
func (m *Manager) Invalidate(fullname string) {
	if _, ok := m.files[fullname]; !ok {
		return
	}
	glog.V(1).Infof("[src]invalidating %s", fullname)
	delete(m.files, fullname)
	m.publish()
	m.Sync()
}

// Clear drops every cached file.
func (m *Manager) Clear() {
	m.files = make(map[string]*File)
	m.publish()
}

// ClearAssembly drops cached assembly, e.g. after the disassembly
// flavor changed.
func (m *Manager) ClearAssembly() {
	for _, f := range m.files {
		f.Assembly = make(map[int][]types.AsmInstruction)
	}
	m.store.Set(state.KeyMissingFileAssembly, []types.AsmInstruction(nil))
	m.publish()
}

// FetchAssembly requests source-interleaved disassembly starting at
// line of fullname.
func (m *Manager) FetchAssembly(fullname string, line int) error {
	if fullname == "" {
		return debugerrors.MissingParameter("fullname", "absolute path of the source file")
	}
	if line <= 0 {
		line = 1
	}
	return m.run.RunCommands(mi.InlineDisassembly(fullname, line, m.asmMode))
}

func (m *Manager) fetchMissingFileAssembly(addr string) {
	n, err := parseAddr(addr)
	if err != nil || m.fetchingAddr == addr {
		return
	}
	m.console.Add(types.ConsoleOutput, "Fetching assembly since file is missing")
	m.fetchingAddr = addr
	if err := m.run.RunCommands(mi.MissingFileDisassembly(n)); err != nil {
		glog.Warningf("[src]%v", err)
		m.fetchingAddr = ""
	}
}

// MissingFileAssemblyFailed records that the address being
// disassembled for a missing file cannot be read.
func (m *Manager) MissingFileAssemblyFailed() {
	if m.fetchingAddr != "" {
		m.neg.AddUnfetchableAddr(m.fetchingAddr)
	}
	m.fetchingAddr = ""
	m.console.Add(types.ConsoleOutput, "Failed to retrieve assembly for missing file")
	m.Sync()
}

// SaveAssembly stores a disassembly result. Results tagged for a
// missing file replace the address-keyed listing; everything else is
// merged into the cached file by line.
func (m *Manager) SaveAssembly(res mi.AssemblyResult, token mi.Token) {
	m.fetchingAddr = ""
	if token == mi.TokenDisassemblyMissingFile {
		insns := res.Instructions
		for _, l := range res.Lines {
			insns = append(insns, l.Instructions...)
		}
		m.store.Set(state.KeyMissingFileAssembly, insns)
		m.Sync()
		return
	}
	if len(res.Lines) == 0 {
		glog.Warningf("[src]ignoring disassembly without source lines")
		return
	}
	fullname := res.Lines[0].Fullname
	if fullname == "" {
		fullname = store.Value[string](m.store, state.KeyFullnameToRender)
	}
	f := m.files[fullname]
	if f == nil {
		glog.Warningf("[src]disassembly for %s which is not cached", fullname)
		return
	}
	f.mergeAssembly(res.Lines)
	m.publish()
	m.Sync()
}

// Sync derives the source code state from the current selection and
// starts whatever fetch the view is waiting for.
func (m *Manager) Sync() {
	if state.ProgramState(m.store) == types.ProgramStateRunning {
		return
	}
	var (
		fullname   string
		paused     bool
		pausedAddr string
	)
	line := store.Value[int](m.store, state.KeyLineToFlash)
	switch store.Value[types.SelectionState](m.store, state.KeySourceSelectionState) {
	case types.SelectionUserSelection:
		fullname = store.Value[string](m.store, state.KeyFullnameToRender)
	case types.SelectionPausedFrame:
		paused = state.ProgramState(m.store) == types.ProgramStatePaused
		pausedAddr = store.Value[string](m.store, state.KeyCurrentAssemblyAddr)
		if frame := store.Value[*types.Frame](m.store, state.KeyPausedOnFrame); frame != nil {
			fullname = frame.Fullname
		}
	}
	m.store.Set(state.KeySourceCodeState, m.deriveState(fullname, line, paused, pausedAddr))
}

func (m *Manager) deriveState(fullname string, line int, paused bool, pausedAddr string) types.SourceCodeState {
	missing := fullname != "" && m.neg.IsMissingFile(fullname)
	_, _, require := m.WindowFor(fullname, line)
	f := m.files[fullname]

	switch {
	case fullname != "" && f != nil && f.HasLines(require, require):
		if len(f.Assembly) > 0 {
			return types.SourceAssemblyAndSourceCached
		}
		return types.SourceCached
	case fullname != "" && !missing:
		m.View(fullname, line)
		return types.SourceFetching
	case paused && pausedAddr != "" && m.missingFileAssemblyHas(pausedAddr):
		return types.SourceAssemblyCached
	case paused && pausedAddr != "":
		if m.neg.IsUnfetchableAddr(pausedAddr) {
			return types.SourceAssemblyUnavailable
		}
		m.fetchMissingFileAssembly(pausedAddr)
		return types.SourceFetchingAssembly
	case missing:
		return types.SourceFileMissing
	}
	return types.SourceNoneAvailable
}

// MissingFileAssembly returns the listing fetched around addr for a
// paused frame whose source file is missing. It is nil while the fetch is
// outstanding.
func (m *Manager) MissingFileAssembly(addr string) ([]types.AsmInstruction, error) {
	if m.neg.IsUnfetchableAddr(addr) {
		return nil, debugerrors.AddressUnreadable(addr)
	}
	if !m.missingFileAssemblyHas(addr) {
		return nil, nil
	}
	return store.Value[[]types.AsmInstruction](m.store, state.KeyMissingFileAssembly), nil
}

func (m *Manager) missingFileAssemblyHas(addr string) bool {
	want, err := parseAddr(addr)
	if err != nil {
		return false
	}
	for _, insn := range store.Value[[]types.AsmInstruction](m.store, state.KeyMissingFileAssembly) {
		if got, err := parseAddr(insn.Address); err == nil && got == want {
			return true
		}
	}
	return false
}

func (m *Manager) publish() {
	m.store.Set(state.KeyCachedSourceFiles, summarize(m.files))
}

func parseAddr(addr string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), 16, 64)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// causeMessage returns the backend's message rather than the wrapped
// error with its hint.
func causeMessage(err error) string {
	var de *debugerrors.DebugError
	if stderrors.As(err, &de) && de.Cause != nil {
		return de.Cause.Error()
	}
	return err.Error()
}
