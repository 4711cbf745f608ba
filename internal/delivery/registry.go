// internal/delivery/registry.go
package delivery

import (
	"log/slog"
	"sync"

	"github.com/user/agentwatch/internal/types"
)

// Subscriber is a live observer that receives encoded stream messages.
// Send must not block for long; implementations queue and return.
type Subscriber interface {
	ID() types.SubscriberID
	Send(message []byte) error
}

// BroadcastResult records which subscribers a broadcast reached.
type BroadcastResult struct {
	Delivered []types.SubscriberID
	Failed    []types.SubscriberID
}

// Registry holds the set of currently connected subscribers.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[types.SubscriberID]Subscriber
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[types.SubscriberID]Subscriber),
	}
}

// Register adds a subscriber. A subscriber registered twice replaces itself.
func (r *Registry) Register(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[sub.ID()] = sub
}

// Unregister removes a subscriber. Removing an unknown id is a no-op.
func (r *Registry) Unregister(id types.SubscriberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, id)
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Broadcast sends message to every registered subscriber. Subscribers whose
// Send fails are removed; the rest still receive the message.
func (r *Registry) Broadcast(message []byte) BroadcastResult {
	r.mu.RLock()
	targets := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	var result BroadcastResult
	for _, sub := range targets {
		if err := sub.Send(message); err != nil {
			slog.Debug("dropping subscriber", "subscriber", string(sub.ID()), "error", err)
			result.Failed = append(result.Failed, sub.ID())
			continue
		}
		result.Delivered = append(result.Delivered, sub.ID())
	}

	if len(result.Failed) > 0 {
		r.mu.Lock()
		for _, id := range result.Failed {
			delete(r.subscribers, id)
		}
		r.mu.Unlock()
	}
	return result
}
