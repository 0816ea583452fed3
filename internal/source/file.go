package source

import (
	"math"
	"sort"

	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// UnknownLines is the line count of a file whose length was never
// reported.
const UnknownLines = -1

// Window returns the range of lines to fetch so that line sits in the
// middle of a window of size lines, clipped to total when it is known.
// require is the line that must be cached for the view to render.
func Window(line, size, total int) (start, end, require int) {
	if line <= 0 {
		line = 1
	}
	start = int(math.Max(math.Floor(float64(line)-float64(size)/2), 1))
	end = int(math.Ceil(float64(start + size)))
	if total >= 0 && end > total {
		end = total
	}
	if start > end {
		start = int(math.Max(1, float64(end-size)))
	}
	return start, end, min(line, end)
}

// File is the sparse cache of one source file.
type File struct {
	Fullname            string
	Lines               map[int]string
	Assembly            map[int][]types.AsmInstruction
	NumLines            int
	LastModifiedUnixSec float64
	ModifiedAfterBinary bool
}

func newFile(fullname string) *File {
	return &File{
		Fullname: fullname,
		Lines:    make(map[int]string),
		Assembly: make(map[int][]types.AsmInstruction),
		NumLines: UnknownLines,
	}
}

// HasLine reports whether line is cached.
func (f *File) HasLine(line int) bool {
	_, ok := f.Lines[line]
	return ok
}

// HasLines reports whether every line from start through end that
// exists in the file is cached.
func (f *File) HasLines(start, end int) bool {
	if f.NumLines >= 0 {
		end = min(end, f.NumLines)
	}
	for l := start; l <= end; l++ {
		if !f.HasLine(l) {
			return false
		}
	}
	return true
}

// merge adds the lines of chunk that are not cached yet.
func (f *File) merge(chunk types.FileChunk) {
	for i, text := range chunk.Lines {
		l := chunk.StartLine + i
		if !f.HasLine(l) {
			f.Lines[l] = text
		}
	}
	switch {
	case chunk.NumLinesInFile > 0:
		f.NumLines = chunk.NumLinesInFile
	case chunk.EndLine >= chunk.StartLine && len(chunk.Lines) < chunk.EndLine-chunk.StartLine+1:
		// a short read without a line count ends at the end of the file
		f.NumLines = chunk.StartLine + len(chunk.Lines) - 1
	}
	f.LastModifiedUnixSec = chunk.LastModifiedUnixSec
}

// mergeAssembly stores instructions per source line. When assembly
// refers to lines past the cached source, the gap is filled with blank
// lines so the lines can be shown.
func (f *File) mergeAssembly(lines []types.AsmSourceLine) {
	maxAsm := 0
	for _, l := range lines {
		n := atoi(l.Line)
		if n <= 0 {
			continue
		}
		f.Assembly[n] = l.Instructions
		maxAsm = max(maxAsm, n)
	}
	if maxAsm <= f.maxLine() {
		return
	}
	for l := 1; l <= maxAsm; l++ {
		if !f.HasLine(l) {
			f.Lines[l] = ""
		}
	}
	if f.NumLines >= 0 && f.NumLines < maxAsm {
		f.NumLines = maxAsm
	}
}

func (f *File) maxLine() int {
	n := 0
	for l := range f.Lines {
		n = max(n, l)
	}
	return n
}

// Line is one rendered row of a source view
type Line struct {
	Number   int                    `json:"line"`
	Text     string                 `json:"text"`
	Assembly []types.AsmInstruction `json:"assembly,omitempty"`
}

// Render returns the cached lines from start through end.
func (f *File) Render(start, end int) []Line {
	var out []Line
	for l := start; l <= end; l++ {
		text, ok := f.Lines[l]
		if !ok {
			continue
		}
		out = append(out, Line{Number: l, Text: text, Assembly: f.Assembly[l]})
	}
	return out
}

// Info summarises a cached file
type Info struct {
	Fullname            string  `json:"fullname"`
	NumLines            int     `json:"numLines"`
	CachedLines         int     `json:"cachedLines"`
	AssemblyLines       int     `json:"assemblyLines"`
	LastModifiedUnixSec float64 `json:"lastModifiedUnixSec,omitempty"`
	ModifiedAfterBinary bool    `json:"modifiedAfterBinary,omitempty"`
}

func summarize(files map[string]*File) []Info {
	out := make([]Info, 0, len(files))
	for _, f := range files {
		out = append(out, Info{
			Fullname:            f.Fullname,
			NumLines:            f.NumLines,
			CachedLines:         len(f.Lines),
			AssemblyLines:       len(f.Assembly),
			LastModifiedUnixSec: f.LastModifiedUnixSec,
			ModifiedAfterBinary: f.ModifiedAfterBinary,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fullname < out[j].Fullname })
	return out
}
