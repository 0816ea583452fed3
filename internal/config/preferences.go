package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/golang/glog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/ctagard/gdbmi-mcp/internal/state"
	"github.com/ctagard/gdbmi-mcp/internal/store"
)

// Preferences are client settings that outlive a session: theme,
// auto-break on main, source window size, pretty printing, console
// options, command history and recently loaded binaries.
//
// They are stored as one JSON object keyed by store key. A stored value
// whose type differs from the default is discarded in favour of the
// default.
type Preferences struct {
	mu     sync.Mutex
	path   string
	values map[string]any
}

// LoadPreferences reads path. A missing file yields the defaults; an
// empty path keeps preferences in memory.
func LoadPreferences(path string) (*Preferences, error) {
	p := &Preferences{path: path, values: defaults()}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(jsonc.ToJSON(data))
	if !doc.IsObject() {
		glog.Warningf("[config]%s is not a JSON object, using default preferences", path)
		return p, nil
	}
	for key, def := range p.values {
		raw := doc.Get(key)
		if !raw.Exists() {
			continue
		}
		v, err := decodeLike(def, raw)
		if err != nil {
			glog.Warningf("[config]preference %s: %v, using default", key, err)
			continue
		}
		p.values[key] = v
	}
	return p, nil
}

func defaults() map[string]any {
	initial := state.Initial()
	out := make(map[string]any, len(state.PreferenceKeys))
	for _, k := range state.PreferenceKeys {
		out[k] = initial[k]
	}
	return out
}

// decodeLike decodes raw into a value of the same type as def.
func decodeLike(def any, raw gjson.Result) (any, error) {
	if !sameJSONType(def, raw) {
		return nil, fmt.Errorf("stored %s does not match %T", raw.Type, def)
	}
	ptr := reflect.New(reflect.TypeOf(def))
	if err := json.Unmarshal([]byte(raw.Raw), ptr.Interface()); err != nil {
		return nil, err
	}
	v := ptr.Elem().Interface()
	if n, ok := v.(int); ok && n <= 0 {
		return nil, fmt.Errorf("must be a positive integer, got %d", n)
	}
	return v, nil
}

func sameJSONType(def any, raw gjson.Result) bool {
	switch def.(type) {
	case bool:
		return raw.Type == gjson.True || raw.Type == gjson.False
	case int:
		return raw.Type == gjson.Number && raw.Num == float64(int(raw.Num))
	case string:
		return raw.Type == gjson.String
	case []string:
		if !raw.IsArray() {
			return false
		}
		for _, e := range raw.Array() {
			if e.Type != gjson.String {
				return false
			}
		}
		return true
	}
	return false
}

// Get returns the value of a preference key.
func (p *Preferences) Get(key string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[key]
}

// Apply writes every preference into st.
func (p *Preferences) Apply(st *store.Store) {
	p.mu.Lock()
	values := make(map[string]any, len(p.values))
	for k, v := range p.values {
		values[k] = v
	}
	p.mu.Unlock()
	for k, v := range values {
		st.Set(k, v)
	}
}

// Middleware validates writes to preference keys and persists the ones
// it accepts. Other keys pass through.
func (p *Preferences) Middleware() store.Middleware {
	return func(key string, _, newValue any) bool {
		p.mu.Lock()
		def, ok := p.values[key]
		p.mu.Unlock()
		if !ok {
			return true
		}
		if reflect.TypeOf(def) != reflect.TypeOf(newValue) {
			glog.Warningf("[config]rejecting %T for preference %s", newValue, key)
			return false
		}
		if n, ok := newValue.(int); ok && n <= 0 {
			glog.Warningf("[config]rejecting %d for preference %s", n, key)
			return false
		}
		if err := p.set(key, newValue); err != nil {
			glog.Errorf("[config]saving preferences: %v", err)
		}
		return true
	}
}

func (p *Preferences) set(key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = v
	if p.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
