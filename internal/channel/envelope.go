package channel

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Event names exchanged with the backend
const (
	EventRunCommand       = "run_gdb_command"
	EventResponse         = "gdb_response"
	EventGdbPID           = "gdb_pid"
	EventConnection       = "debug_session_connection_event"
	EventErrorRunning     = "error_running_gdb_command"
	EventServerError      = "server_error"
	EventFatalServerError = "fatal_server_error"
	EventDisconnect       = "disconnect"
)

// Envelope is one message on the transport
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

type commandBatch struct {
	Cmd []string `json:"cmd"`
}

// CommandBatch returns the commands of a run_gdb_command envelope.
func (e Envelope) CommandBatch() ([]string, error) {
	var body commandBatch
	if err := json.Unmarshal(e.Data, &body); err != nil {
		return nil, fmt.Errorf("invalid %s envelope: %w", EventRunCommand, err)
	}
	return body.Cmd, nil
}

// Message returns data.message, carried by the server error events.
func (e Envelope) Message() string {
	return gjson.GetBytes(e.Data, "message").String()
}
