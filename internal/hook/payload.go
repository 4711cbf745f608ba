// Package hook turns coding-agent hook input into event candidates for the
// collection server.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Event is the candidate posted to the server. Optional fields are omitted
// when empty.
type Event struct {
	SourceApp     string            `json:"source_app"`
	SessionID     string            `json:"session_id"`
	HookEventType string            `json:"hook_event_type"`
	Payload       map[string]any    `json:"payload"`
	Chat          []json.RawMessage `json:"chat,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	ModelName     string            `json:"model_name,omitempty"`
}

// ReadInput decodes the hook JSON from r. Blank input yields a nil map.
func ReadInput(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hook input: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse hook input: %w", err)
	}
	return m, nil
}

// BuildPayload picks the fields worth keeping for each hook event type.
// Unknown event types keep the whole hook input.
func BuildPayload(eventType string, data map[string]any) map[string]any {
	switch eventType {
	case "PreToolUse", "PostToolUse":
		payload := map[string]any{
			"tool_name":  stringOr(data, "tool_name", "unknown"),
			"tool_input": valueOr(data, "tool_input", map[string]any{}),
		}
		if v, ok := data["tool_result"]; ok {
			payload["tool_result"] = v
		}
		return payload
	case "UserPromptSubmit":
		return map[string]any{"user_prompt": valueOr(data, "user_prompt", "")}
	case "Stop", "SubagentStop":
		return map[string]any{
			"reason":    valueOr(data, "reason", ""),
			"stop_type": valueOr(data, "stop_type", ""),
		}
	case "Notification":
		return map[string]any{
			"message":           valueOr(data, "message", ""),
			"notification_type": valueOr(data, "type", ""),
		}
	case "SessionStart":
		cwd, _ := os.Getwd()
		return map[string]any{
			"cwd":             valueOr(data, "cwd", cwd),
			"permission_mode": valueOr(data, "permission_mode", "unknown"),
		}
	}
	if data == nil {
		return map[string]any{}
	}
	return data
}

// Options controls how Build assembles an Event.
type Options struct {
	// SourceApp overrides source detection when non-empty.
	SourceApp string
	// AddChat attaches the transcript named by the input's transcript_path.
	AddChat bool
}

// Build assembles the event candidate for eventType from hook input data.
func Build(eventType string, data map[string]any, opts Options) *Event {
	sourceApp := opts.SourceApp
	if sourceApp == "" {
		sourceApp = DetectSourceApp()
	}
	event := &Event{
		SourceApp:     sourceApp,
		SessionID:     stringOr(data, "session_id", "unknown"),
		HookEventType: eventType,
		Payload:       BuildPayload(eventType, data),
	}
	if opts.AddChat {
		if path, ok := data["transcript_path"].(string); ok && path != "" {
			event.Chat = ReadTranscript(path)
		}
	}
	return event
}

func valueOr(data map[string]any, key string, def any) any {
	if v, ok := data[key]; ok {
		return v
	}
	return def
}

func stringOr(data map[string]any, key, def string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return def
}
