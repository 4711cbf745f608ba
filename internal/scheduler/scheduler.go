// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named housekeeping function run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs maintenance jobs on their cron schedules.
type Scheduler struct {
	jobs []Job
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler for jobs. Jobs with an empty schedule are disabled.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		cron: newCron(),
	}
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

// Start registers every enabled job and starts the cron ticker. Jobs run with
// ctx. An invalid schedule fails Start before anything runs.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Schedule == "" {
			slog.Debug("maintenance job disabled", "name", job.Name)
			continue
		}

		_, err := s.cron.AddFunc(job.Schedule, func() {
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				slog.Error("maintenance job failed", "name", job.Name, "error", err)
				return
			}
			slog.Debug("maintenance job done", "name", job.Name, "elapsed", time.Since(start))
		})
		if err != nil {
			return fmt.Errorf("schedule %s %q: %w", job.Name, job.Schedule, err)
		}
		slog.Info("scheduled maintenance job", "name", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return nil
}

// Stop stops the ticker and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
