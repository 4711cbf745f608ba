// internal/types/interfaces.go
package types

import "context"

// EventStore persists events and answers the queries the monitoring UI needs.
type EventStore interface {
	Insert(ctx context.Context, event *Event) (*Event, error)
	Recent(ctx context.Context, limit int) ([]*Event, error)
	FilterOptions(ctx context.Context) (*FilterOptions, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}
