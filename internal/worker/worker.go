// Package worker runs queued jobs: it fetches the job, runs its compute
// function and records the outcome in storage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/compute"
	"github.com/solarperformanceinsight/spi/internal/metrics"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// ErrPanic wraps a panic raised while running a job.
var ErrPanic = errors.New("worker panicked")

// Registry selects the compute function of a job.
type Registry interface {
	Lookup(p models.JobParameters) (compute.Func, error)
}

// Recorder observes job outcomes.
type Recorder interface {
	WorkerStarted() func(outcome string)
}

// Worker runs single jobs.
type Worker struct {
	store    store.Store
	registry Registry
	recorder Recorder
	log      *slog.Logger
}

// New creates a worker. recorder may be nil.
func New(s store.Store, registry Registry, recorder Recorder) *Worker {
	return &Worker{
		store:    s,
		registry: registry,
		recorder: recorder,
		log:      slog.Default().With("component", "worker"),
	}
}

// Run computes job jobID on behalf of user.
//
// A job that no longer exists, or that another worker already finished, is
// skipped without error. A compute failure is recorded as an "error message"
// result and the job is set to error; Run then returns nil. Run only returns
// an error when the outcome could not be recorded, when ctx ends first, or
// when the compute function panics.
func (w *Worker) Run(ctx context.Context, jobID uuid.UUID, user string) (err error) {
	outcome := metrics.OutcomeSkipped
	if w.recorder != nil {
		done := w.recorder.WorkerStarted()
		defer func() { done(outcome) }()
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomePanic
			w.log.Error("job panicked", "job_id", jobID, "user", user, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	log := w.log.With("job_id", jobID, "user", user)

	var job *models.Job
	err = w.store.WithTx(ctx, func(q store.Queries) error {
		j, err := q.GetJob(ctx, user, jobID)
		job = j
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		log.Info("job no longer exists, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	log.Info("job started", "job_type", job.Definition.Parameters.JobType)
	fn, err := w.registry.Lookup(job.Definition.Parameters)
	if err == nil {
		err = w.store.WithTx(ctx, func(q store.Queries) error {
			if err := fn(ctx, job, q, user); err != nil {
				return err
			}
			return q.SetJobCompletion(ctx, user, jobID, models.JobStatusComplete)
		})
	}

	switch {
	case err == nil:
		outcome = metrics.OutcomeComplete
		log.Info("job complete")
		return nil
	case errors.Is(err, store.ErrAlreadyComplete), errors.Is(err, store.ErrJobTerminal):
		log.Info("job already finished by another worker")
		return nil
	case errors.Is(err, store.ErrNotFound):
		log.Info("job deleted while running")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}

	log.Error("job failed", "error", err)
	if werr := w.recordFailure(ctx, jobID, user, err.Error()); werr != nil {
		return werr
	}
	outcome = metrics.OutcomeError
	return nil
}

// recordFailure stores the error message result and sets the job to error
// in a fresh transaction.
func (w *Worker) recordFailure(ctx context.Context, jobID uuid.UUID, user, details string) error {
	err := w.store.WithTx(ctx, func(q store.Queries) error {
		if _, err := q.AddJobResult(ctx, user, jobID, "/", models.ResultErrorMessage, models.FormatJSON, models.NewErrorMessage(details)); err != nil {
			return err
		}
		return q.SetJobCompletion(ctx, user, jobID, models.JobStatusError)
	})
	switch {
	case err == nil,
		errors.Is(err, store.ErrAlreadyComplete),
		errors.Is(err, store.ErrJobTerminal),
		errors.Is(err, store.ErrNotFound):
		return nil
	}
	return fmt.Errorf("record job failure: %w", err)
}
