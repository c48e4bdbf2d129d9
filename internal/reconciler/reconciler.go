// Package reconciler repairs drift between job status in storage and the
// job queue.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/jobstate"
	"github.com/solarperformanceinsight/spi/internal/metrics"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// Recorder observes reconciler passes and the corrections they make.
type Recorder interface {
	RecordReconcilePass(err error)
	RecordReconcileAction(action string)
}

// Reconciler periodically aligns the queue with storage.
type Reconciler struct {
	store    store.Queries
	queue    queue.Queue
	period   time.Duration
	recorder Recorder
	log      *slog.Logger
}

// New creates a reconciler. recorder may be nil.
func New(s store.Queries, q queue.Queue, period time.Duration, recorder Recorder) *Reconciler {
	return &Reconciler{
		store:    s,
		queue:    q,
		period:   period,
		recorder: recorder,
		log:      slog.Default().With("component", "reconciler"),
	}
}

// Run performs a pass every period until ctx is cancelled. Failed passes are
// logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("reconciler started", "period", r.period)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		if err := r.Pass(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Pass runs one reconciliation sweep. A correction that fails does not stop
// the sweep; all such errors are joined and returned at the end.
func (r *Reconciler) Pass(ctx context.Context) (err error) {
	defer func() {
		if r.recorder != nil {
			r.recorder.RecordReconcilePass(err)
		}
	}()

	statuses, err := r.store.ListStatusOfJobs(ctx)
	if err != nil {
		return fmt.Errorf("list job statuses: %w", err)
	}
	queued, err := r.store.ListQueuedJobs(ctx)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	pending, err := r.queue.JobIDs(ctx)
	if err != nil {
		return fmt.Errorf("list queue entries: %w", err)
	}

	var errs []error

	onQueue := make(map[uuid.UUID]bool, len(pending))
	for _, id := range pending {
		onQueue[id] = true
		if status, ok := statuses[id]; ok && status == models.JobStatusQueued {
			continue
		}
		if err := r.queue.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
			continue
		}
		r.action(metrics.ActionRemoved, "removed obsolete queue entry", "job_id", id)
	}

	for id, user := range queued {
		if onQueue[id] {
			continue
		}
		entry, err := r.queue.Status(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("status %s: %w", id, err))
			continue
		}
		if entry != nil && entry.State != queue.StateQueued {
			// started or failed entries are handled by the worker or below
			continue
		}
		if err := r.queue.Enqueue(ctx, id, user); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", id, err))
			continue
		}
		if entry != nil {
			r.action(metrics.ActionEnqueued, "requeued stranded entry", "job_id", id, "user", user)
			continue
		}
		r.action(metrics.ActionEnqueued, "enqueued missing job", "job_id", id, "user", user)
	}

	failed, err := r.queue.FailedJobIDs(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list failed entries: %w", err))
		return errors.Join(errs...)
	}
	for _, id := range failed {
		status, ok := statuses[id]
		if ok && !jobstate.Terminal(status) {
			err := r.store.ReportJobFailure(ctx, id, store.UncaughtErrorMessage)
			switch {
			case err == nil:
				r.action(metrics.ActionFailed, "marked job failed", "job_id", id)
			case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrJobTerminal):
				// finished or deleted since the snapshot
			default:
				errs = append(errs, fmt.Errorf("report failure %s: %w", id, err))
				continue
			}
		}
		if err := r.queue.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("drop failed entry %s: %w", id, err))
			continue
		}
		if !ok || jobstate.Terminal(status) {
			r.action(metrics.ActionDropped, "dropped failed entry", "job_id", id)
		}
	}

	return errors.Join(errs...)
}

func (r *Reconciler) action(action, msg string, args ...any) {
	r.log.Info(msg, args...)
	if r.recorder != nil {
		r.recorder.RecordReconcileAction(action)
	}
}
