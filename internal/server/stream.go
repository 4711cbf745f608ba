package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/agentwatch/internal/types"
)

var (
	errSubscriberClosed = errors.New("subscriber connection closed")
	errSubscriberSlow   = errors.New("subscriber send queue full")
)

const (
	writeWait       = 10 * time.Second
	maxInboundBytes = 64 << 10
)

// wsSubscriber adapts a websocket connection to delivery.Subscriber. Send
// only queues; a single writer goroutine owns all writes to the connection.
type wsSubscriber struct {
	id   types.SubscriberID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSSubscriber(conn *websocket.Conn, buffer int) *wsSubscriber {
	return &wsSubscriber{
		id:   types.NewSubscriberID(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsSubscriber) ID() types.SubscriberID {
	return c.id
}

// Send queues message for the writer. It fails if the connection is closed
// or the queue is full. A full queue also closes the connection so the peer
// reconnects and gets a fresh snapshot.
func (c *wsSubscriber) Send(message []byte) error {
	select {
	case <-c.done:
		return errSubscriberClosed
	default:
	}
	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return errSubscriberClosed
	default:
		c.close()
		return errSubscriberSlow
	}
}

func (c *wsSubscriber) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (c *wsSubscriber) writeLoop(pingInterval time.Duration) {
	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("stream write failed", "subscriber", string(c.id), "error", err)
				c.close()
				return
			}
		case <-tick:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards inbound messages and returns when the peer goes away.
func (c *wsSubscriber) readLoop(pingInterval time.Duration) {
	c.conn.SetReadLimit(maxInboundBytes)
	if pingInterval > 0 {
		pongWait := 2 * pingInterval
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.slots != nil {
		if !s.slots.TryAcquire(1) {
			writeError(w, http.StatusServiceUnavailable, "too many subscribers")
			return
		}
		defer s.slots.Release(1)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := newWSSubscriber(conn, s.opts.SendBuffer)
	s.track(sub)
	defer s.untrack(sub)
	defer sub.close()
	go sub.writeLoop(s.opts.PingInterval)

	if err := s.svc.Subscribe(r.Context(), sub); err != nil {
		slog.Error("subscribe failed", "subscriber", string(sub.id), "error", err)
		return
	}
	slog.Info("subscriber connected", "subscriber", string(sub.id), "remote", r.RemoteAddr, "subscribers", s.svc.Subscribers())

	sub.readLoop(s.opts.PingInterval)

	s.svc.Unsubscribe(sub.id)
	slog.Info("subscriber disconnected", "subscriber", string(sub.id), "subscribers", s.svc.Subscribers())
}

func (s *Server) track(sub *wsSubscriber) {
	s.streamsMu.Lock()
	s.streams[sub] = struct{}{}
	s.streamsMu.Unlock()
}

func (s *Server) untrack(sub *wsSubscriber) {
	s.streamsMu.Lock()
	delete(s.streams, sub)
	s.streamsMu.Unlock()
}

// CloseStreams closes every open stream connection. http.Server.Shutdown
// does not track hijacked connections, so serve registers this with
// RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.streamsMu.Lock()
	subs := make([]*wsSubscriber, 0, len(s.streams))
	for sub := range s.streams {
		subs = append(subs, sub)
	}
	s.streamsMu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
