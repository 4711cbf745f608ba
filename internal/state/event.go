// internal/state/event.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/user/agentwatch/internal/types"
)

// Insert persists the event and sets its ID. The event's Timestamp must
// already be stamped by the caller.
func (s *EventStore) Insert(ctx context.Context, event *types.Event) (*types.Event, error) {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	// An empty but present chat list is stored as [] rather than NULL.
	var chat sql.NullString
	if event.Chat != nil {
		data, err := json.Marshal(event.Chat)
		if err != nil {
			return nil, fmt.Errorf("marshal chat: %w", err)
		}
		chat = sql.NullString{String: string(data), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(source_app, session_id, hook_event_type, payload, chat, summary, model_name, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.SourceApp,
		event.SessionID,
		event.HookEventType,
		string(payload),
		chat,
		nullString(event.Summary),
		nullString(event.ModelName),
		event.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read event id: %w", err)
	}

	stored := *event
	stored.ID = id
	stored.Payload = payload
	return &stored, nil
}

// Recent returns up to limit of the newest events by timestamp, in
// ascending timestamp order. Events sharing a timestamp are ordered by id.
func (s *EventStore) Recent(ctx context.Context, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_app, session_id, hook_event_type, payload, chat, summary, model_name, timestamp
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	events := []*types.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent events: %w", err)
	}

	slices.Reverse(events)
	return events, nil
}

// FilterOptions returns the distinct source apps, session ids and hook event
// types in the store, each sorted ascending.
func (s *EventStore) FilterOptions(ctx context.Context) (*types.FilterOptions, error) {
	sourceApps, err := s.distinct(ctx, "source_app")
	if err != nil {
		return nil, err
	}
	sessionIDs, err := s.distinct(ctx, "session_id")
	if err != nil {
		return nil, err
	}
	hookEventTypes, err := s.distinct(ctx, "hook_event_type")
	if err != nil {
		return nil, err
	}
	return &types.FilterOptions{
		SourceApps:     sourceApps,
		SessionIDs:     sessionIDs,
		HookEventTypes: hookEventTypes,
	}, nil
}

// distinct scans one indexed column. column is always a constant from
// FilterOptions, never user input.
func (s *EventStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT DISTINCT %s FROM events ORDER BY %s ASC", column, column))
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct %s: %w", column, err)
	}
	return values, nil
}

// Count returns the total number of stored events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// Clear deletes every event. The id sequence is not reset.
func (s *EventStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	return nil
}

func scanEvent(rows *sql.Rows) (*types.Event, error) {
	var (
		event     types.Event
		payload   string
		chat      sql.NullString
		summary   sql.NullString
		modelName sql.NullString
	)
	if err := rows.Scan(
		&event.ID,
		&event.SourceApp,
		&event.SessionID,
		&event.HookEventType,
		&payload,
		&chat,
		&summary,
		&modelName,
		&event.Timestamp,
	); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	event.Payload = json.RawMessage(payload)
	if chat.Valid && chat.String != "" {
		if err := json.Unmarshal([]byte(chat.String), &event.Chat); err != nil {
			return nil, fmt.Errorf("unmarshal chat for event %d: %w", event.ID, err)
		}
	}
	event.Summary = summary.String
	event.ModelName = modelName.String
	return &event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
