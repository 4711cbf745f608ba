package state

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/agentwatch/internal/types"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestEvent(t *testing.T, s *EventStore, app, session, hookType string, ts int64) *types.Event {
	t.Helper()
	stored, err := s.Insert(context.Background(), &types.Event{
		SourceApp:     app,
		SessionID:     session,
		HookEventType: hookType,
		Payload:       json.RawMessage(`{}`),
		Timestamp:     ts,
	})
	require.NoError(t, err)
	return stored
}
