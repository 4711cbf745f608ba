package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/user/agentwatch/internal/types"
)

// StreamHandler receives stream messages. For an initial message events is
// the snapshot; for a live event it holds exactly one event. Returning an
// error stops the stream.
type StreamHandler func(kind string, events []*types.Event) error

type streamFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StreamURL converts the client's base URL to the /stream websocket URL.
func (c *Client) StreamURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/stream"
}

// Watch subscribes to the live stream and calls fn for each message until ctx
// is cancelled, the server goes away or fn returns an error. Cancellation
// returns nil.
func (c *Client) Watch(ctx context.Context, fn StreamHandler) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.http.Timeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}

		var events []*types.Event
		switch frame.Type {
		case types.MessageInitial:
			if err := json.Unmarshal(frame.Data, &events); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
		case types.MessageEvent:
			var event types.Event
			if err := json.Unmarshal(frame.Data, &event); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = []*types.Event{&event}
		default:
			continue
		}
		if err := fn(frame.Type, events); err != nil {
			return err
		}
	}
}
