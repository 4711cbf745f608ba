package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/user/agentwatch/internal/types"
)

// ParseCandidate validates a submitted event body and returns an event
// ready to be stamped and stored. It never has side effects.
//
// Required fields are checked in order: source_app, session_id,
// hook_event_type, payload. A payload that is not a JSON object is wrapped
// as {"value": payload}. Optional fields are kept only when truthy.
func ParseCandidate(body []byte) (*types.Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, ErrInvalidBody
	}

	event := &types.Event{}
	var err error
	if event.SourceApp, err = requiredString(fields, "source_app"); err != nil {
		return nil, err
	}
	if event.SessionID, err = requiredString(fields, "session_id"); err != nil {
		return nil, err
	}
	if event.HookEventType, err = requiredString(fields, "hook_event_type"); err != nil {
		return nil, err
	}

	payload, ok := fields["payload"]
	if !ok || isNull(payload) {
		return nil, &ValidationError{Field: "payload", Message: "missing payload"}
	}
	if event.Payload, err = normalizePayload(payload); err != nil {
		return nil, err
	}

	if raw, ok := fields["chat"]; ok && truthy(raw) {
		if err := json.Unmarshal(raw, &event.Chat); err != nil {
			return nil, &ValidationError{Field: "chat", Message: "invalid chat"}
		}
	}
	if event.Summary, err = optionalString(fields, "summary"); err != nil {
		return nil, err
	}
	if event.ModelName, err = optionalString(fields, "model_name"); err != nil {
		return nil, err
	}

	return event, nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", missingOrInvalid(name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", missingOrInvalid(name)
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || !truthy(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{Field: name, Message: "invalid " + name}
	}
	return s, nil
}

func normalizePayload(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, ErrInvalidBody
	}
	compact := buf.Bytes()
	if len(compact) > 0 && compact[0] == '{' {
		return json.RawMessage(compact), nil
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"value": compact})
	if err != nil {
		return nil, ErrInvalidBody
	}
	return wrapped, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// truthy mirrors loose truthiness: null, false, 0 and "" are falsy.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
