// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Event is a single lifecycle event emitted by an agent hook.
type Event struct {
	ID            int64             `json:"id"`
	SourceApp     string            `json:"source_app"`
	SessionID     string            `json:"session_id"`
	HookEventType string            `json:"hook_event_type"`
	Payload       json.RawMessage   `json:"payload"`
	Chat          []json.RawMessage `json:"chat,omitzero"`
	Summary       string            `json:"summary,omitempty"`
	ModelName     string            `json:"model_name,omitempty"`
	Timestamp     int64             `json:"timestamp"`
}

// Time returns the event timestamp as a time.Time.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// ChatTurn is the common shape of a chat entry. Stored chat entries are kept
// verbatim, so producers may send richer objects than this.
type ChatTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// FilterOptions holds the distinct values of the indexed event columns.
type FilterOptions struct {
	SourceApps     []string `json:"source_apps"`
	SessionIDs     []string `json:"session_ids"`
	HookEventTypes []string `json:"hook_event_types"`
}

// Stream message types sent to live subscribers.
const (
	MessageInitial = "initial"
	MessageEvent   = "event"
)

// StreamMessage is the envelope written to every live subscriber.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Millis converts t to milliseconds since the Unix epoch.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
