package source

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"

	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// LocalReader reads source files from the local disk. Every file read is
// watched; when it is written, removed or renamed, onChange is called
// with its path so the cached copy can be dropped.
type LocalReader struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	watched  map[string]bool
	onChange func(path string)
	done     chan struct{}
}

// NewLocalReader starts the watcher. onChange runs on the watcher
// goroutine.
func NewLocalReader(onChange func(path string)) (*LocalReader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	r := &LocalReader{
		watcher:  w,
		watched:  make(map[string]bool),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *LocalReader) loop() {
	defer close(r.done)
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			glog.V(1).Infof("[src]%s changed on disk (%s)", ev.Name, ev.Op)
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				r.mu.Lock()
				delete(r.watched, ev.Name)
				r.mu.Unlock()
			}
			if r.onChange != nil {
				r.onChange(ev.Name)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			glog.Warningf("[src]watch error: %v", err)
		}
	}
}

// ReadFile reads lines start through end of path.
func (r *LocalReader) ReadFile(ctx context.Context, path string, start, end int) (types.FileChunk, error) {
	if err := ctx.Err(); err != nil {
		return types.FileChunk{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return types.FileChunk{}, debugerrors.FileMissing(path, err)
	}
	if info.IsDir() {
		return types.FileChunk{}, debugerrors.FileMissing(path, os.ErrInvalid)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.FileChunk{}, debugerrors.FileMissing(path, err)
	}
	r.watch(path)

	all := strings.Split(string(data), "\n")
	start = max(start, 1)
	end = min(end, len(all))
	var lines []string
	if start <= end {
		lines = all[start-1 : end]
	}
	return types.FileChunk{
		Path:                path,
		StartLine:           start,
		EndLine:             end,
		Lines:               lines,
		NumLinesInFile:      len(all),
		LastModifiedUnixSec: float64(info.ModTime().Unix()),
	}, nil
}

func (r *LocalReader) watch(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watched[path] {
		return
	}
	if err := r.watcher.Add(path); err != nil {
		glog.V(1).Infof("[src]cannot watch %s: %v", path, err)
		return
	}
	r.watched[path] = true
}

// Close stops watching.
func (r *LocalReader) Close() error {
	err := r.watcher.Close()
	<-r.done
	return err
}
