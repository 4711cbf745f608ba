package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentwatch/internal/delivery"
	"github.com/user/agentwatch/internal/ingest"
	"github.com/user/agentwatch/internal/server"
	"github.com/user/agentwatch/internal/state"
	"github.com/user/agentwatch/internal/types"
)

// startServer runs a real agentwatch server backed by a temp store.
func startServer(t *testing.T) (*httptest.Server, *ingest.Service) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := ingest.NewService(store, delivery.NewRegistry())
	ts := httptest.NewServer(server.NewServer(svc, server.Options{}))
	t.Cleanup(ts.Close)
	return ts, svc
}

func candidate(eventType string) map[string]any {
	return map[string]any{
		"source_app":      "demo",
		"session_id":      "sess-1",
		"hook_event_type": eventType,
		"payload":         map[string]any{"tool_name": "Bash"},
	}
}

func TestClientRoundTrip(t *testing.T) {
	ts, _ := startServer(t)
	c := New(ts.URL + "/")
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	first, err := c.Submit(ctx, candidate("PreToolUse"))
	require.NoError(t, err)
	second, err := c.Submit(ctx, candidate("PostToolUse"))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	events, err := c.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)

	events, err = c.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, second.ID, events[0].ID)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	opts, err := c.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PostToolUse", "PreToolUse"}, opts.HookEventTypes)

	require.NoError(t, c.Clear(ctx))
	count, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClientValidationErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"missing or invalid source_app"}`))
	}))
	defer ts.Close()

	c := New(ts.URL, WithRetryPolicy(fastPolicy(3)))
	_, err := c.Submit(context.Background(), map[string]any{})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "missing or invalid source_app", statusErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":9}`))
	}))
	defer ts.Close()

	c := New(ts.URL, WithRetryPolicy(fastPolicy(3)))
	count, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), count)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientSubmitTimeoutNotResent(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()
	defer close(release)

	c := New(ts.URL, WithTimeout(100*time.Millisecond), WithRetryPolicy(fastPolicy(3)))
	_, err := c.Submit(context.Background(), candidate("Stop"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientHealthUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, WithTimeout(time.Second))
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, isTransient(err), "connection failure should be transient: %v", err)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:4000/stream", New("http://localhost:4000").StreamURL())
	assert.Equal(t, "wss://example.com/stream", New("https://example.com/").StreamURL())
}

func TestWatchReceivesSnapshotThenEvents(t *testing.T) {
	ts, svc := startServer(t)
	c := New(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seeded, err := c.Submit(ctx, candidate("PreToolUse"))
	require.NoError(t, err)

	type received struct {
		kind   string
		events []*types.Event
	}
	got := make(chan received, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(kind string, events []*types.Event) error {
			got <- received{kind, events}
			return nil
		})
	}()

	first := <-got
	assert.Equal(t, types.MessageInitial, first.kind)
	require.Len(t, first.events, 1)
	assert.Equal(t, seeded.ID, first.events[0].ID)

	require.Eventually(t, func() bool { return svc.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	live, err := c.Submit(ctx, candidate("Stop"))
	require.NoError(t, err)

	second := <-got
	assert.Equal(t, types.MessageEvent, second.kind)
	require.Len(t, second.events, 1)
	assert.Equal(t, live.ID, second.events[0].ID)

	cancel()
	assert.NoError(t, <-done)
}
