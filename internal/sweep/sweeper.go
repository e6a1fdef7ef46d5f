// Package sweep schedules the recurring status sweeps: system-internal
// batches that reconcile sale, bundle, and reservation statuses against
// their configured time windows.
package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/oroshi/backoffice/internal/task"
)

// BatchPublisher is the slice of the publisher the sweeper needs.
type BatchPublisher interface {
	Publish(ctx context.Context, req task.PublishRequest) ([]task.DispatchHandle, error)
}

// Job is one recurring sweep: a cron expression and the batch it enqueues.
type Job struct {
	Name string
	Spec string
	Kind string
}

// DefaultJobs are the stock sweeps of the scheduled worker. Expressions
// use the standard five-field cron format.
func DefaultJobs() []Job {
	return []Job{
		{Name: "sale-status-sweep", Spec: "*/10 * * * *", Kind: task.KindSaleStatusSweep},
		{Name: "bundle-status-sweep", Spec: "*/10 * * * *", Kind: task.KindBundleStatusSweep},
		{Name: "reservation-status-sweep", Spec: "*/5 * * * *", Kind: task.KindReservationStatusSweep},
	}
}

// Sweeper owns the cron runner and enqueues each sweep as a
// system-internal single-item batch, so sweeps never clutter the ledger.
type Sweeper struct {
	publisher BatchPublisher
	runner    *cron.Cron
	jobs      []Job
	logger    *slog.Logger
}

// New creates a Sweeper for the given jobs.
func New(publisher BatchPublisher, jobs []Job, log *slog.Logger) *Sweeper {
	return &Sweeper{
		publisher: publisher,
		runner:    cron.New(),
		jobs:      jobs,
		logger:    log.With("component", "sweeper"),
	}
}

// Run registers all jobs and blocks until ctx is cancelled. It returns
// an error only when a job cannot be registered.
func (s *Sweeper) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		job := job
		_, err := s.runner.AddFunc(job.Spec, func() {
			s.enqueue(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to register sweep %q: %w", job.Name, err)
		}
	}

	s.runner.Start()
	s.logger.Info("sweeper started", "jobs", len(s.jobs))

	<-ctx.Done()

	stopCtx := s.runner.Stop()
	<-stopCtx.Done()
	s.logger.Info("sweeper stopped")
	return nil
}

// enqueue publishes one sweep batch. The payload is an empty trigger
// record; the handler derives everything from the current clock.
func (s *Sweeper) enqueue(ctx context.Context, job Job) {
	_, err := s.publisher.Publish(ctx, task.PublishRequest{
		Worker:         task.WorkerScheduled,
		Kind:           job.Kind,
		Payloads:       []any{struct{}{}},
		SystemInternal: true,
	})
	if err != nil {
		s.logger.Error("failed to enqueue sweep", "job", job.Name, "error", err)
		return
	}
	s.logger.Info("sweep enqueued", "job", job.Name, "kind", job.Kind)
}
