// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/agentwatch/internal/state"
)

func waitFires(t *testing.T, fires *atomic.Int32) {
	t.Helper()
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("job did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerFiresJob(t *testing.T) {
	var fires atomic.Int32
	sched := New(Job{
		Name:     "every-second",
		Schedule: "* * * * * *",
		Run: func(ctx context.Context) error {
			fires.Add(1)
			return nil
		},
	})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	waitFires(t, &fires)
}

func TestSchedulerKeepsRunningAfterJobError(t *testing.T) {
	var fires atomic.Int32
	sched := New(Job{
		Name:     "failing",
		Schedule: "* * * * * *",
		Run: func(ctx context.Context) error {
			fires.Add(1)
			return errors.New("boom")
		},
	})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	waitFires(t, &fires)
}

func TestSchedulerSkipsEmptySchedule(t *testing.T) {
	var fires atomic.Int32
	sched := New(Job{
		Name: "disabled",
		Run: func(ctx context.Context) error {
			fires.Add(1)
			return nil
		},
	})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	time.Sleep(1500 * time.Millisecond)

	if n := fires.Load(); n != 0 {
		t.Errorf("expected 0 fires for disabled job, got %d", n)
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	sched := New(Job{
		Name:     "broken",
		Schedule: "not a schedule",
		Run:      func(ctx context.Context) error { return nil },
	})
	if err := sched.Start(context.Background()); err == nil {
		sched.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}

type fakeStats struct {
	count atomic.Int32
}

func (f *fakeStats) Count(ctx context.Context) (int64, error) {
	f.count.Add(1)
	return 7, nil
}

func (f *fakeStats) Subscribers() int { return 2 }

func TestMaintenanceJobs(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	checkpoint := CheckpointJob("@every 10m", store)
	if checkpoint.Schedule != "@every 10m" {
		t.Errorf("unexpected schedule %q", checkpoint.Schedule)
	}
	if err := checkpoint.Run(ctx); err != nil {
		t.Errorf("checkpoint job failed: %v", err)
	}

	stats := &fakeStats{}
	if err := StatsJob("@hourly", stats).Run(ctx); err != nil {
		t.Errorf("stats job failed: %v", err)
	}
	if stats.count.Load() != 1 {
		t.Errorf("expected stats job to read the count once, got %d", stats.count.Load())
	}
}
