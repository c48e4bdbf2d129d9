// Package queue is the job queue shared by the API, the workers and the
// reconciler. Entries are keyed by job id and carry the owning user.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	StateQueued  = "queued"
	StateStarted = "started"
	StateFailed  = "failed"
)

// Entry is the queue's view of one job.
type Entry struct {
	JobID      uuid.UUID
	User       string
	State      string
	Timeout    time.Duration
	EnqueuedAt time.Time
	StartedAt  time.Time
	Error      string
}

// Queue is the job queue interface. Implementations must be safe for
// concurrent use.
type Queue interface {
	Ping(ctx context.Context) error

	// Enqueue adds a job unless an entry for it already exists. A queued
	// entry that is no longer pending is pushed again.
	Enqueue(ctx context.Context, jobID uuid.UUID, user string) error
	// Dequeue blocks up to timeout for the next pending job and marks it
	// started. It returns nil, nil when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Entry, error)
	// Finish drops a started entry after the worker handled it.
	Finish(ctx context.Context, jobID uuid.UUID) error
	// Fail moves an entry to the failed registry.
	Fail(ctx context.Context, jobID uuid.UUID, reason string) error
	// Status returns the entry for a job or nil when there is none.
	Status(ctx context.Context, jobID uuid.UUID) (*Entry, error)
	// Remove deletes every trace of a job and signals any worker running it
	// to stop. Missing entries are ignored.
	Remove(ctx context.Context, jobID uuid.UUID) error

	// JobIDs lists pending jobs in queue order.
	JobIDs(ctx context.Context) ([]uuid.UUID, error)
	// FailedJobIDs lists the failed registry after moving timed-out started
	// entries into it and purging expired ones.
	FailedJobIDs(ctx context.Context) ([]uuid.UUID, error)

	// WatchStops calls onStop for every stop signal until ctx is done.
	WatchStops(ctx context.Context, onStop func(jobID uuid.UUID)) error
}
