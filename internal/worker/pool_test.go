package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"github.com/solarperformanceinsight/spi/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcRunner adapts a function to worker.Runner.
type funcRunner func(ctx context.Context, jobID uuid.UUID, user string) error

func (f funcRunner) Run(ctx context.Context, jobID uuid.UUID, user string) error {
	return f(ctx, jobID, user)
}

var _ worker.Runner = funcRunner(nil)

func startPool(t *testing.T, q queue.Queue, r worker.Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p := worker.NewPool(q, r, 2, 20*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("pool did not stop")
		}
	})
}

func newQueue(timeout time.Duration) *queue.MemoryQueue {
	return queue.NewMemoryQueue(queue.Options{Name: "test", JobTimeout: timeout, FailureTTL: time.Hour})
}

func waitForEntry(t *testing.T, q queue.Queue, id uuid.UUID, want func(*queue.Entry) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		e, err := q.Status(context.Background(), id)
		return err == nil && want(e)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPool_FinishesSuccessfulJobs(t *testing.T) {
	q := newQueue(time.Minute)
	ran := make(chan uuid.UUID, 2)
	startPool(t, q, funcRunner(func(_ context.Context, id uuid.UUID, user string) error {
		assert.Equal(t, "alice", user)
		ran <- id
		return nil
	}))

	a, b := uuid.New(), uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), a, "alice"))
	require.NoError(t, q.Enqueue(context.Background(), b, "alice"))

	got := map[uuid.UUID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-ran:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
	}
	assert.Equal(t, map[uuid.UUID]bool{a: true, b: true}, got)
	waitForEntry(t, q, a, func(e *queue.Entry) bool { return e == nil })
	waitForEntry(t, q, b, func(e *queue.Entry) bool { return e == nil })
}

func TestPool_FailsTimedOutJob(t *testing.T) {
	q := newQueue(50 * time.Millisecond)
	startPool(t, q, funcRunner(func(ctx context.Context, _ uuid.UUID, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), id, "alice"))
	waitForEntry(t, q, id, func(e *queue.Entry) bool {
		return e != nil && e.State == queue.StateFailed && e.Error == queue.TimeoutMessage
	})
}

func TestPool_FailsEntryOnRunnerError(t *testing.T) {
	q := newQueue(time.Minute)
	startPool(t, q, funcRunner(func(context.Context, uuid.UUID, string) error {
		return errors.New("connection refused")
	}))

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), id, "alice"))
	waitForEntry(t, q, id, func(e *queue.Entry) bool {
		return e != nil && e.State == queue.StateFailed && e.Error == "connection refused"
	})
}

func TestPool_StopSignalCancelsRunningJob(t *testing.T) {
	q := newQueue(time.Minute)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	startPool(t, q, funcRunner(func(ctx context.Context, _ uuid.UUID, _ string) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), id, "alice"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
	require.NoError(t, q.Remove(context.Background(), id))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not cancelled")
	}
	waitForEntry(t, q, id, func(e *queue.Entry) bool { return e == nil })
}
