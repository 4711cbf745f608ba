// Package ingest mediates between the transport, the event store and the
// live subscriber registry. It holds no state of its own beyond a mutex that
// sequences writes against subscriber registration.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/agentwatch/internal/delivery"
	"github.com/user/agentwatch/internal/types"
)

// DefaultSnapshotLimit is the number of events sent to a new subscriber.
const DefaultSnapshotLimit = 300

// Service implements event submission, queries and live subscription.
type Service struct {
	store    types.EventStore
	registry *delivery.Registry

	now           func() time.Time
	snapshotLimit int

	// seq orders insert+broadcast against snapshot+register so every
	// subscriber sees its snapshot first and then each later event once,
	// in insertion order.
	seq sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSnapshotLimit sets how many recent events a new subscriber receives.
func WithSnapshotLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.snapshotLimit = n
		}
	}
}

// NewService creates a Service over the given store and registry.
func NewService(store types.EventStore, registry *delivery.Registry, opts ...Option) *Service {
	s := &Service{
		store:         store,
		registry:      registry,
		now:           time.Now,
		snapshotLimit: DefaultSnapshotLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates body, stores the event with a server timestamp and
// broadcasts it to live subscribers. Producer-supplied timestamps are ignored.
func (s *Service) Submit(ctx context.Context, body []byte) (*types.Event, error) {
	candidate, err := ParseCandidate(body)
	if err != nil {
		return nil, err
	}

	s.seq.Lock()
	defer s.seq.Unlock()

	candidate.Timestamp = types.Millis(s.now())
	stored, err := s.store.Insert(ctx, candidate)
	if err != nil {
		return nil, &StorageError{Op: "insert", Err: err}
	}

	s.broadcast(stored)
	return stored, nil
}

func (s *Service) broadcast(event *types.Event) {
	message, err := json.Marshal(types.StreamMessage{Type: types.MessageEvent, Data: event})
	if err != nil {
		slog.Error("encode stream event failed", "event_id", event.ID, "error", err)
		return
	}
	result := s.registry.Broadcast(message)
	if len(result.Failed) > 0 {
		slog.Info("dropped unreachable subscribers",
			"event_id", event.ID,
			"dropped", len(result.Failed),
			"delivered", len(result.Delivered),
		)
	}
}

// Subscribe sends sub a snapshot of recent events and then registers it for
// live events. If the snapshot cannot be sent the subscriber is not registered.
func (s *Service) Subscribe(ctx context.Context, sub delivery.Subscriber) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	events, err := s.store.Recent(ctx, s.snapshotLimit)
	if err != nil {
		return &StorageError{Op: "snapshot", Err: err}
	}
	message, err := json.Marshal(types.StreamMessage{Type: types.MessageInitial, Data: events})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := sub.Send(message); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}

	s.registry.Register(sub)
	return nil
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (s *Service) Unsubscribe(id types.SubscriberID) {
	s.registry.Unregister(id)
}

// Subscribers returns the number of live subscribers.
func (s *Service) Subscribers() int {
	return s.registry.Len()
}

// Recent returns up to limit recent events in chronological order.
func (s *Service) Recent(ctx context.Context, limit int) ([]*types.Event, error) {
	events, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, &StorageError{Op: "recent", Err: err}
	}
	return events, nil
}

// FilterOptions returns the distinct filter values present in the store.
func (s *Service) FilterOptions(ctx context.Context) (*types.FilterOptions, error) {
	opts, err := s.store.FilterOptions(ctx)
	if err != nil {
		return nil, &StorageError{Op: "filter options", Err: err}
	}
	return opts, nil
}

// Count returns the number of stored events.
func (s *Service) Count(ctx context.Context) (int64, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return count, nil
}

// Clear deletes every stored event. Live subscribers are not notified.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}
