package scheduler

import (
	"context"
	"log/slog"
)

// Checkpointer flushes the store's write-ahead log.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// StatsSource reports what the stats job logs.
type StatsSource interface {
	Count(ctx context.Context) (int64, error)
	Subscribers() int
}

// CheckpointJob truncates the store's WAL on schedule.
func CheckpointJob(schedule string, store Checkpointer) Job {
	return Job{
		Name:     "wal-checkpoint",
		Schedule: schedule,
		Run:      store.Checkpoint,
	}
}

// StatsJob logs the stored event count and live subscriber count.
func StatsJob(schedule string, src StatsSource) Job {
	return Job{
		Name:     "stats",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			count, err := src.Count(ctx)
			if err != nil {
				return err
			}
			slog.Info("event store stats", "events", count, "subscribers", src.Subscribers())
			return nil
		},
	}
}
