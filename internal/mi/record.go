// Package mi models gdb machine-interface records as delivered by the
// backend, and the commands sent back to it.
//
// A delivery is a JSON array of records {type, message, token, payload,
// stream}. The payload is polymorphic: for console and output records it
// is a string, for result and notify records an object whose keys, not
// the originating command, decide how it is handled. Payloads are kept as
// raw JSON and probed with gjson; Classify turns a result payload into
// the typed shapes it contains.
package mi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
)

// RecordType is the MI record category
type RecordType string

const (
	TypeResult  RecordType = "result"
	TypeConsole RecordType = "console"
	TypeNotify  RecordType = "notify"
	TypeOutput  RecordType = "output"
	TypeTarget  RecordType = "target"
	TypeLog     RecordType = "log"
)

// Result record messages
const (
	MessageDone      = "done"
	MessageError     = "error"
	MessageRunning   = "running"
	MessageConnected = "connected"
	MessageStopped   = "stopped"

	MessageThreadGroupStarted = "thread-group-started"
)

// Record is one parsed MI output record
type Record struct {
	Type    RecordType `json:"type"`
	Message string     `json:"message,omitempty"`
	Token   Token      `json:"token"`
	Payload Payload    `json:"payload"`
	Stream  string     `json:"stream,omitempty"`
}

// IsError reports whether r is an error result
func (r Record) IsError() bool {
	return r.Type == TypeResult && r.Message == MessageError
}

// IsDone reports whether r is a done result carrying a payload
func (r Record) IsDone() bool {
	return r.Type == TypeResult && r.Message == MessageDone && r.Payload.Exists()
}

// ParseBatch decodes one delivery.
func ParseBatch(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, debugerrors.ProtocolError("MI batch", err)
	}
	return records, nil
}

// Token is the numeric prefix gdb echoes back on a result. Zero means the
// record carried no token.
type Token int

// NoToken is the zero Token
const NoToken Token = 0

func (t *Token) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch r.Type {
	case gjson.Null:
		*t = NoToken
	case gjson.Number:
		*t = Token(r.Int())
	case gjson.String:
		if r.Str == "" {
			*t = NoToken
			return nil
		}
		n, err := strconv.Atoi(r.Str)
		if err != nil {
			return fmt.Errorf("invalid MI token %q: %w", r.Str, err)
		}
		*t = Token(n)
	default:
		return fmt.Errorf("invalid MI token %s", r.Raw)
	}
	return nil
}

func (t Token) MarshalJSON() ([]byte, error) {
	if t == NoToken {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(t))), nil
}

// Prefix returns the token as a command prefix, or "" for NoToken.
func (t Token) Prefix() string {
	if t == NoToken {
		return ""
	}
	return strconv.Itoa(int(t))
}

// Payload is a record payload held as raw JSON
type Payload struct {
	raw []byte
	res gjson.Result
}

// NewPayload wraps a JSON document. It is mostly useful in tests.
func NewPayload(raw string) Payload {
	return Payload{raw: []byte(raw), res: gjson.Parse(raw)}
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	p.raw = append([]byte(nil), data...)
	p.res = gjson.ParseBytes(p.raw)
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

// Exists reports whether the payload is present and not null
func (p Payload) Exists() bool {
	return p.res.Exists() && p.res.Type != gjson.Null
}

// IsObject reports whether the payload is a JSON object
func (p Payload) IsObject() bool {
	return p.res.IsObject()
}

// Has reports whether the object payload contains key
func (p Payload) Has(key string) bool {
	return p.res.IsObject() && p.res.Get(key).Exists()
}

// Get returns the value of key
func (p Payload) Get(key string) gjson.Result {
	return p.res.Get(key)
}

// String returns the string value of key, or "".
func (p Payload) String(key string) string {
	return p.res.Get(key).String()
}

// Text returns the payload itself as text, as console and output
// records carry a bare string.
func (p Payload) Text() string {
	if p.res.Type == gjson.String {
		return p.res.Str
	}
	return p.res.Raw
}

// Decode unmarshals the value of key into v
func (p Payload) Decode(key string, v any) error {
	r := p.res.Get(key)
	if !r.Exists() {
		return fmt.Errorf("payload has no %q", key)
	}
	if err := json.Unmarshal([]byte(r.Raw), v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return nil
}

// DecodeAll unmarshals the whole payload into v
func (p Payload) DecodeAll(v any) error {
	if len(p.raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(p.raw, v)
}
