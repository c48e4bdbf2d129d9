package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"golang.org/x/sync/errgroup"
)

const (
	finalizeTimeout = 10 * time.Second
	dequeueBackoff  = time.Second
)

// Runner runs one job. *Worker implements it.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID, user string) error
}

// Pool pulls jobs off the queue and runs them on a fixed number of
// goroutines, one job at a time each.
type Pool struct {
	queue       queue.Queue
	runner      Runner
	concurrency int
	pollTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

// NewPool creates a pool with concurrency workers.
func NewPool(q queue.Queue, runner Runner, concurrency int, pollTimeout time.Duration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:       q,
		runner:      runner,
		concurrency: concurrency,
		pollTimeout: pollTimeout,
		log:         slog.Default().With("component", "worker_pool"),
		running:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// Run processes jobs until ctx is cancelled. Jobs in flight are cancelled
// with ctx and their entries dropped so the reconciler re-enqueues them.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.queue.WatchStops(ctx, p.stop); err != nil {
		return err
	}
	p.log.Info("worker pool started", "concurrency", p.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		slot := i
		g.Go(func() error {
			p.loop(ctx, slot)
			return nil
		})
	}
	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, slot int) {
	log := p.log.With("slot", slot)
	for ctx.Err() == nil {
		entry, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		if entry == nil {
			continue
		}
		p.handle(ctx, entry)
	}
}

func (p *Pool) handle(parent context.Context, e *queue.Entry) {
	ctx, cancel := context.WithCancel(parent)
	if e.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, e.Timeout)
	}
	p.track(e.JobID, cancel)
	defer p.untrack(e.JobID)
	defer cancel()

	err := p.runner.Run(ctx, e.JobID, e.User)

	fctx, fcancel := context.WithTimeout(context.WithoutCancel(parent), finalizeTimeout)
	defer fcancel()
	log := p.log.With("job_id", e.JobID, "user", e.User)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		// Cancelled jobs were either removed or interrupted by shutdown; in
		// both cases the storage status decides what happens next.
		err = p.queue.Finish(fctx, e.JobID)
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("job timed out", "timeout", e.Timeout)
		err = p.queue.Fail(fctx, e.JobID, queue.TimeoutMessage)
	default:
		log.Error("job failed outside compute", "error", err)
		err = p.queue.Fail(fctx, e.JobID, err.Error())
	}
	if err != nil {
		log.Error("update queue entry", "error", err)
	}
}

// stop cancels a running job after its queue entry was removed.
func (p *Pool) stop(jobID uuid.UUID) {
	p.mu.Lock()
	cancel, ok := p.running[jobID]
	p.mu.Unlock()
	if ok {
		p.log.Info("stop signal received", "job_id", jobID)
		cancel()
	}
}

func (p *Pool) track(jobID uuid.UUID, cancel context.CancelFunc) {
	p.mu.Lock()
	p.running[jobID] = cancel
	p.mu.Unlock()
}

func (p *Pool) untrack(jobID uuid.UUID) {
	p.mu.Lock()
	delete(p.running, jobID)
	p.mu.Unlock()
}
