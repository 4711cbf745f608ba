// internal/types/models_test.go
package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventOmitsEmptyOptionalFields(t *testing.T) {
	event := Event{
		ID:            7,
		SourceApp:     "demo",
		SessionID:     "abc",
		HookEventType: "PreToolUse",
		Payload:       json.RawMessage(`{"tool_name":"Bash"}`),
		Timestamp:     1700000000000,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, key := range []string{"chat", "summary", "model_name"} {
		if strings.Contains(s, `"`+key+`"`) {
			t.Errorf("expected %s to be omitted, got %s", key, s)
		}
	}
	if !strings.Contains(s, `"payload":{"tool_name":"Bash"}`) {
		t.Errorf("expected raw payload to be embedded, got %s", s)
	}
}

func TestEventKeepsEmptyChat(t *testing.T) {
	event := Event{SourceApp: "demo", Payload: json.RawMessage(`{}`), Chat: []json.RawMessage{}}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"chat":[]`) {
		t.Errorf("expected empty chat list to be kept, got %s", data)
	}
}

func TestEventTime(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	event := Event{Timestamp: Millis(now)}
	if !event.Time().Equal(now) {
		t.Errorf("expected %v, got %v", now, event.Time())
	}
}

func TestFilterOptionsEmptyArrays(t *testing.T) {
	opts := FilterOptions{SourceApps: []string{}, SessionIDs: []string{}, HookEventTypes: []string{}}
	data, err := json.Marshal(opts)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"source_apps":[],"session_ids":[],"hook_event_types":[]}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}
