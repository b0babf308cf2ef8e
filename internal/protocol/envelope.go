package protocol

import (
	"encoding/json"
	"fmt"
)

// Command names handled by the bridge.
const (
	CmdPing             = "ping"
	CmdLoadNotebook     = "load-notebook"
	CmdGetNotebookState = "get-notebook-state"
	CmdGetCurrentCell   = "get-current-cell"
	CmdGetErrorOutput   = "get-error-output"
)

// Notification names emitted by the bridge.
const (
	NotifyReady         = "ready"
	NotifyDirty         = "notebook-dirty"
	NotifySaveRequested = "notebook-save-requested"
)

// Envelope is one protocol message. On the wire it is a flat JSON object:
// {"command": ..., "request_id": ..., "error": ..., <payload fields>}.
// RequestID is empty on fire-and-forget notifications.
type Envelope struct {
	Command   string
	RequestID string
	Error     string
	Payload   map[string]json.RawMessage
}

// reserved field names that never belong to the payload.
const (
	fieldCommand   = "command"
	fieldRequestID = "request_id"
	fieldError     = "error"
)

// NewEnvelope builds an envelope whose payload is the JSON object form of v.
// A nil v produces an empty payload.
func NewEnvelope(command, requestID string, v any) (Envelope, error) {
	env := Envelope{Command: command, RequestID: requestID}
	if v == nil {
		return env, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload for %q: %w", command, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("payload for %q is not a JSON object: %w", command, err)
	}
	env.Payload = fields
	return env, nil
}

// MarshalJSON flattens the payload fields next to the protocol fields.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Payload)+3)
	for k, v := range e.Payload {
		if k == fieldCommand || k == fieldRequestID {
			continue
		}
		// The payload may legitimately carry an "error" field (get-error-output);
		// an envelope-level error wins.
		if k == fieldError && e.Error != "" {
			continue
		}
		out[k] = v
	}
	cmd, err := json.Marshal(e.Command)
	if err != nil {
		return nil, err
	}
	out[fieldCommand] = cmd
	if e.RequestID != "" {
		rid, err := json.Marshal(e.RequestID)
		if err != nil {
			return nil, err
		}
		out[fieldRequestID] = rid
	}
	if e.Error != "" {
		msg, err := json.Marshal(e.Error)
		if err != nil {
			return nil, err
		}
		out[fieldError] = msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the protocol fields from the payload fields.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*e = Envelope{Payload: fields}
	if raw, ok := fields[fieldCommand]; ok {
		if err := json.Unmarshal(raw, &e.Command); err != nil {
			return fmt.Errorf("invalid command field: %w", err)
		}
		delete(fields, fieldCommand)
	}
	if raw, ok := fields[fieldRequestID]; ok {
		if err := json.Unmarshal(raw, &e.RequestID); err != nil {
			return fmt.Errorf("invalid request_id field: %w", err)
		}
		delete(fields, fieldRequestID)
	}
	if raw, ok := fields[fieldError]; ok {
		// Tolerate a null or non-string error: it is then payload data, not a
		// protocol-level failure. The field stays in the payload either way so
		// DecodePayload still sees it.
		_ = json.Unmarshal(raw, &e.Error)
	}
	if e.Command == "" {
		return fmt.Errorf("envelope missing command")
	}
	return nil
}

// DecodePayload unmarshals the payload fields into v.
func (e Envelope) DecodePayload(v any) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Field returns the raw payload field by name, if present.
func (e Envelope) Field(name string) (json.RawMessage, bool) {
	raw, ok := e.Payload[name]
	return raw, ok
}

// Reply builds a reply envelope echoing this envelope's command and request_id.
func (e Envelope) Reply(v any) (Envelope, error) {
	return NewEnvelope(e.Command, e.RequestID, v)
}

// ReplyError builds an error reply echoing this envelope's correlation fields.
func (e Envelope) ReplyError(msg string) Envelope {
	return Envelope{Command: e.Command, RequestID: e.RequestID, Error: msg}
}
