package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue with the same semantics as RedisQueue.
// It backs tests and single-process development runs.
type MemoryQueue struct {
	mu         sync.Mutex
	pending    []uuid.UUID
	entries    map[uuid.UUID]*Entry
	failedAt   map[uuid.UUID]time.Time
	wake       chan struct{}
	watchers   map[int]func(uuid.UUID)
	nextWatch  int
	jobTimeout time.Duration
	failureTTL time.Duration
	now        func() time.Time
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		entries:    make(map[uuid.UUID]*Entry),
		failedAt:   make(map[uuid.UUID]time.Time),
		wake:       make(chan struct{}),
		watchers:   make(map[int]func(uuid.UUID)),
		jobTimeout: opts.JobTimeout,
		failureTTL: opts.FailureTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the queue's time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

func (q *MemoryQueue) Ping(ctx context.Context) error { return ctx.Err() }

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID uuid.UUID, user string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[jobID]; ok {
		if e.State == StateQueued && !q.isPending(jobID) {
			q.push(jobID)
		}
		return nil
	}
	q.entries[jobID] = &Entry{
		JobID:      jobID,
		User:       user,
		State:      StateQueued,
		Timeout:    q.jobTimeout,
		EnqueuedAt: q.now().Truncate(time.Second),
	}
	q.push(jobID)
	return nil
}

func (q *MemoryQueue) push(jobID uuid.UUID) {
	q.pending = append(q.pending, jobID)
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *MemoryQueue) isPending(jobID uuid.UUID) bool {
	for _, id := range q.pending {
		if id == jobID {
			return true
		}
	}
	return false
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Entry, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending = q.pending[1:]
			e, ok := q.entries[id]
			if !ok || e.State != StateQueued {
				q.mu.Unlock()
				continue
			}
			e.State = StateStarted
			e.StartedAt = q.now().Truncate(time.Second)
			out := *e
			q.mu.Unlock()
			return &out, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wake:
		}
	}
}

func (q *MemoryQueue) Finish(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[jobID]; ok && e.State == StateStarted {
		delete(q.entries, jobID)
	}
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, jobID uuid.UUID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail(jobID, reason)
	return nil
}

func (q *MemoryQueue) fail(jobID uuid.UUID, reason string) {
	e, ok := q.entries[jobID]
	if !ok {
		return
	}
	q.dropPending(jobID)
	e.State = StateFailed
	e.Error = reason
	q.failedAt[jobID] = q.now()
}

func (q *MemoryQueue) Status(ctx context.Context, jobID uuid.UUID) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[jobID]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	q.dropPending(jobID)
	delete(q.entries, jobID)
	delete(q.failedAt, jobID)
	watchers := make([]func(uuid.UUID), 0, len(q.watchers))
	for _, w := range q.watchers {
		watchers = append(watchers, w)
	}
	q.mu.Unlock()

	for _, w := range watchers {
		w(jobID)
	}
	return nil
}

func (q *MemoryQueue) dropPending(jobID uuid.UUID) {
	for i, id := range q.pending {
		if id == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *MemoryQueue) JobIDs(ctx context.Context) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uuid.UUID{}, q.pending...), nil
}

func (q *MemoryQueue) FailedJobIDs(ctx context.Context) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for id, e := range q.entries {
		if e.State == StateStarted && !now.Before(e.StartedAt.Add(e.Timeout)) {
			q.fail(id, TimeoutMessage)
		}
	}
	ids := []uuid.UUID{}
	for id, at := range q.failedAt {
		if !now.Before(at.Add(q.failureTTL)) {
			delete(q.failedAt, id)
			delete(q.entries, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *MemoryQueue) WatchStops(ctx context.Context, onStop func(jobID uuid.UUID)) error {
	q.mu.Lock()
	key := q.nextWatch
	q.nextWatch++
	q.watchers[key] = onStop
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.mu.Lock()
		delete(q.watchers, key)
		q.mu.Unlock()
	}()
	return nil
}
