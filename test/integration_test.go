//go:build integration

package test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentwatch/internal/client"
	"github.com/user/agentwatch/internal/delivery"
	"github.com/user/agentwatch/internal/hook"
	"github.com/user/agentwatch/internal/ingest"
	"github.com/user/agentwatch/internal/server"
	"github.com/user/agentwatch/internal/state"
	"github.com/user/agentwatch/internal/types"
)

// TestEndToEnd drives hook input through the client into a real server and
// checks that two watchers see the same ordered stream, then that history
// survives a store restart.
func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")

	store, err := state.Open(dbPath)
	require.NoError(t, err)

	svc := ingest.NewService(store, delivery.NewRegistry())
	ts := httptest.NewServer(server.NewServer(svc, server.Options{PingInterval: time.Second}))
	defer ts.Close()

	c := client.New(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const sent = 20
	var wg sync.WaitGroup
	seen := make([][]int64, 2)
	for i := range seen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchCtx, stop := context.WithCancel(ctx)
			defer stop()
			_ = c.Watch(watchCtx, func(kind string, events []*types.Event) error {
				if kind != types.MessageEvent {
					return nil
				}
				seen[i] = append(seen[i], events[0].ID)
				if len(seen[i]) == sent {
					stop()
				}
				return nil
			})
		}()
	}
	require.Eventually(t, func() bool { return svc.Subscribers() == 2 }, 5*time.Second, 10*time.Millisecond)

	transcript := filepath.Join(dir, "transcript.jsonl")
	require.NoError(t, os.WriteFile(transcript, []byte(`{"role":"user","content":"hello"}`+"\n"), 0o644))

	var ids []int64
	for i := 0; i < sent; i++ {
		input := map[string]any{
			"session_id":      "sess-e2e",
			"tool_name":       "Bash",
			"tool_input":      map[string]any{"command": fmt.Sprintf("echo %d", i)},
			"transcript_path": transcript,
		}
		event := hook.Build("PreToolUse", input, hook.Options{SourceApp: "e2e", AddChat: i == 0})
		stored, err := c.Submit(ctx, event)
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}

	wg.Wait()
	assert.Equal(t, ids, seen[0])
	assert.Equal(t, ids, seen[1])

	ts.Close()
	require.NoError(t, store.Close())

	reopened, err := state.Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, sent)
	assert.Equal(t, ids[0], events[0].ID)
	assert.Len(t, events[0].Chat, 1)
	assert.Equal(t, "e2e", events[0].SourceApp)
}
