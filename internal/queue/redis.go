package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TimeoutMessage is recorded on entries whose worker exceeded the timeout.
const TimeoutMessage = "job exceeded its timeout"

// enqueueScript creates the entry hash if absent and pushes the id. A queued
// entry whose id is no longer pending (popped by a worker that never started
// it) is pushed again.
// KEYS: job hash, pending list. ARGV: id, user, timeout seconds, now.
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  if redis.call('HGET', KEYS[1], 'state') ~= 'queued' then
    return 0
  end
  if redis.call('LPOS', KEYS[2], ARGV[1]) then
    return 0
  end
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 2
end
redis.call('HSET', KEYS[1], 'user', ARGV[2], 'state', 'queued', 'timeout', ARGV[3], 'enqueued_at', ARGV[4])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

// startScript marks a popped entry started. Entries removed while pending
// have no hash and entries already started by another pop are not queued;
// both are skipped.
// KEYS: job hash, started zset. ARGV: id, now.
var startScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') ~= 'queued' then
  return 0
end
local timeout = tonumber(redis.call('HGET', KEYS[1], 'timeout'))
redis.call('HSET', KEYS[1], 'state', 'started', 'started_at', ARGV[2])
redis.call('ZADD', KEYS[2], tonumber(ARGV[2]) + timeout, ARGV[1])
return 1
`)

// RedisQueue implements Queue with a pending list, a hash per entry, sorted
// sets for the started and failed registries and a pub/sub stop channel.
type RedisQueue struct {
	client     *redis.Client
	keys       keys
	jobTimeout time.Duration
	failureTTL time.Duration
	now        func() time.Time
	log        *slog.Logger
}

type Options struct {
	Name       string
	JobTimeout time.Duration
	FailureTTL time.Duration
}

// NewRedisQueue creates a queue on an existing client.
func NewRedisQueue(client *redis.Client, opts Options) *RedisQueue {
	return &RedisQueue{
		client:     client,
		keys:       keys{name: opts.Name},
		jobTimeout: opts.JobTimeout,
		failureTTL: opts.FailureTTL,
		now:        time.Now,
		log:        slog.Default().With("component", "queue"),
	}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID uuid.UUID, user string) error {
	id := jobID.String()
	res, err := enqueueScript.Run(ctx, q.client,
		[]string{q.keys.job(id), q.keys.pending()},
		id, user, int64(q.jobTimeout/time.Second), q.now().Unix()).Int()
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	if res == 2 {
		q.log.Warn("requeued stranded entry", "job_id", jobID)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Entry, error) {
	deadline := q.now().Add(timeout)
	for {
		remaining := deadline.Sub(q.now())
		if remaining < time.Second {
			remaining = time.Second
		}
		res, err := q.client.BLPop(ctx, remaining, q.keys.pending()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue job: %w", err)
		}
		id := res[1]
		started, err := startScript.Run(ctx, q.client,
			[]string{q.keys.job(id), q.keys.started()}, id, q.now().Unix()).Int()
		if err != nil {
			return nil, fmt.Errorf("start job: %w", err)
		}
		if started == 1 {
			jobID, err := uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("parse job id %q: %w", id, err)
			}
			return q.Status(ctx, jobID)
		}
		if !q.now().Before(deadline) {
			return nil, nil
		}
	}
}

func (q *RedisQueue) Finish(ctx context.Context, jobID uuid.UUID) error {
	id := jobID.String()
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.keys.started(), id)
	pipe.Del(ctx, q.keys.job(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, jobID uuid.UUID, reason string) error {
	id := jobID.String()
	exists, err := q.client.Exists(ctx, q.keys.job(id)).Result()
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if exists == 0 {
		return nil
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.keys.started(), id)
	pipe.HSet(ctx, q.keys.job(id), "state", StateFailed, "error", reason)
	pipe.ZAdd(ctx, q.keys.failed(), redis.Z{Score: float64(q.now().Add(q.failureTTL).Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Status(ctx context.Context, jobID uuid.UUID) (*Entry, error) {
	vals, err := q.client.HGetAll(ctx, q.keys.job(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get job entry: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	e := &Entry{
		JobID:      jobID,
		User:       vals["user"],
		State:      vals["state"],
		Timeout:    time.Duration(atoi(vals["timeout"])) * time.Second,
		EnqueuedAt: unixTime(vals["enqueued_at"]),
		StartedAt:  unixTime(vals["started_at"]),
		Error:      vals["error"],
	}
	return e, nil
}

func (q *RedisQueue) Remove(ctx context.Context, jobID uuid.UUID) error {
	id := jobID.String()
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keys.pending(), 0, id)
	pipe.ZRem(ctx, q.keys.started(), id)
	pipe.ZRem(ctx, q.keys.failed(), id)
	pipe.Del(ctx, q.keys.job(id))
	pipe.Publish(ctx, q.keys.stop(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

func (q *RedisQueue) JobIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := q.client.LRange(ctx, q.keys.pending(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return q.parseIDs(ids), nil
}

func (q *RedisQueue) FailedJobIDs(ctx context.Context) ([]uuid.UUID, error) {
	now := strconv.FormatInt(q.now().Unix(), 10)

	overdue, err := q.client.ZRangeByScore(ctx, q.keys.started(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return nil, fmt.Errorf("list overdue jobs: %w", err)
	}
	for _, jobID := range q.parseIDs(overdue) {
		if err := q.Fail(ctx, jobID, TimeoutMessage); err != nil {
			return nil, err
		}
	}

	expired, err := q.client.ZRangeByScore(ctx, q.keys.failed(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired failures: %w", err)
	}
	if len(expired) > 0 {
		pipe := q.client.TxPipeline()
		for _, id := range expired {
			pipe.ZRem(ctx, q.keys.failed(), id)
			pipe.Del(ctx, q.keys.job(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("purge expired failures: %w", err)
		}
	}

	ids, err := q.client.ZRange(ctx, q.keys.failed(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	return q.parseIDs(ids), nil
}

func (q *RedisQueue) WatchStops(ctx context.Context, onStop func(jobID uuid.UUID)) error {
	sub := q.client.Subscribe(ctx, q.keys.stop())

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				jobID, err := uuid.Parse(m.Payload)
				if err != nil {
					q.log.Warn("bad stop signal payload", "payload", m.Payload)
					continue
				}
				onStop(jobID)
			}
		}
	}()
	return nil
}

func (q *RedisQueue) parseIDs(ids []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			q.log.Warn("skipping malformed queue entry", "entry", s)
			continue
		}
		out = append(out, id)
	}
	return out
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func unixTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	return time.Unix(atoi(s), 0).UTC()
}
