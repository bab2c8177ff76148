package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/sentinel"
)

const reservePoll = time.Second

// RedisQueue keeps jobs in Redis so they survive restarts of both the
// producer and the worker. Layout under prefix:
//
//	<prefix>:job:<id>  hash with the payload and bookkeeping fields
//	<prefix>:wait      list, producers LPUSH and workers BLMOVE from the right
//	<prefix>:active    list of jobs being processed
//	<prefix>:delayed   zset scored by the time a retry becomes due
//	<prefix>:completed zset scored by completion time
//	<prefix>:failed    zset scored by the time attempts ran out
type RedisQueue struct {
	client redis.Cmdable
	prefix string
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

type RedisOption func(*RedisQueue)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(q *RedisQueue) { q.logger = logger }
}

func WithClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) { q.now = now }
}

// NewRedis creates a queue named name, e.g. "activity-log".
func NewRedis(client redis.Cmdable, name string, policy Policy, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client: client,
		prefix: "catalog:queue:" + name,
		policy: policy,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) key(part string) string { return q.prefix + ":" + part }
func (q *RedisQueue) jobKey(id string) string { return q.prefix + ":job:" + id }

func (q *RedisQueue) Enqueue(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	id := uuid.NewString()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id),
			"event", payload,
			"state", string(StateWaiting),
			"attempts", 0,
			"enqueued_at", q.now().UnixMilli(),
		)
		pipe.LPush(ctx, q.key("wait"), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue audit job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Reserve(ctx context.Context) (*Job, error) {
	for {
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}

		id, err := q.client.BLMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT", reservePoll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("reserve audit job: %w", err)
		}

		job, err := q.activate(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Payload was trimmed or never written; nothing to process.
			q.client.LRem(ctx, q.key("active"), 1, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
}

func (q *RedisQueue) activate(ctx context.Context, id string) (*Job, error) {
	var attempts *redis.IntCmd
	var fields *redis.MapStringStringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		attempts = pipe.HIncrBy(ctx, q.jobKey(id), "attempts", 1)
		pipe.HSet(ctx, q.jobKey(id), "state", string(StateActive))
		fields = pipe.HGetAll(ctx, q.jobKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activate audit job %s: %w", id, err)
	}
	// HINCRBY on a missing hash creates it with attempts=1 and nothing else.
	if _, ok := fields.Val()["event"]; !ok || attempts.Val() < 1 {
		q.client.Del(ctx, q.jobKey(id))
		return nil, sentinel.ErrNotFound
	}
	return decodeJob(id, fields.Val())
}

// promoteDue moves delayed jobs whose backoff has elapsed back to waiting.
// Only the caller whose ZREM succeeds pushes the job, so concurrent workers
// never duplicate a promotion.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("scan delayed audit jobs: %w", err)
	}
	for _, id := range due {
		removed, err := q.client.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return fmt.Errorf("promote audit job %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, q.jobKey(id), "state", string(StateWaiting))
			pipe.RPush(ctx, q.key("wait"), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("promote audit job %s: %w", id, err)
		}
	}
	return nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	now := q.now()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID),
			"state", string(StateCompleted),
			"finished_at", now.UnixMilli(),
		)
		pipe.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete audit job %s: %w", job.ID, err)
	}
	return q.trim(ctx, "completed", q.policy.CompletedMaxAge, q.policy.CompletedMaxCount)
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	now := q.now()
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	if q.policy.exhausted(job.Attempts) {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.key("active"), 1, job.ID)
			pipe.HSet(ctx, q.jobKey(job.ID),
				"state", string(StateFailed),
				"last_error", lastError,
				"finished_at", now.UnixMilli(),
			)
			pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("fail audit job %s: %w", job.ID, err)
		}
		return false, q.trim(ctx, "failed", q.policy.FailedMaxAge, 0)
	}

	due := now.Add(q.policy.BackoffFor(job.Attempts))
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID),
			"state", string(StateDelayed),
			"last_error", lastError,
		)
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("retry audit job %s: %w", job.ID, err)
	}
	return true, nil
}

func (q *RedisQueue) Failed(ctx context.Context) ([]Job, error) {
	if err := q.trim(ctx, "failed", q.policy.FailedMaxAge, 0); err != nil {
		return nil, err
	}
	return q.list(ctx, "failed")
}

func (q *RedisQueue) Completed(ctx context.Context) ([]Job, error) {
	if err := q.trim(ctx, "completed", q.policy.CompletedMaxAge, q.policy.CompletedMaxCount); err != nil {
		return nil, err
	}
	return q.list(ctx, "completed")
}

// RequeueStalled returns jobs left active by a worker that stopped mid-job
// to the head of the wait list. Jobs may then run twice; delivery is
// at-least-once. Call it before starting workers.
func (q *RedisQueue) RequeueStalled(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, q.key("active"), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list active audit jobs: %w", err)
	}
	requeued := 0
	for _, id := range ids {
		removed, err := q.client.LRem(ctx, q.key("active"), 1, id).Result()
		if err != nil {
			return requeued, fmt.Errorf("requeue audit job %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.key("wait"), id).Err(); err != nil {
			return requeued, fmt.Errorf("requeue audit job %s: %w", id, err)
		}
		requeued++
	}
	if requeued > 0 {
		q.logger.WarnContext(ctx, "requeued stalled audit jobs", "count", requeued)
	}
	return requeued, nil
}

// trim drops jobs older than maxAge and, when maxCount > 0, all but the
// newest maxCount, deleting their payloads with them.
func (q *RedisQueue) trim(ctx context.Context, bucket string, maxAge time.Duration, maxCount int) error {
	set := q.key(bucket)
	cutoff := q.now().Add(-maxAge).UnixMilli()

	expired, err := q.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("trim %s audit jobs: %w", bucket, err)
	}

	if maxCount > 0 {
		total, err := q.client.ZCard(ctx, set).Result()
		if err != nil {
			return fmt.Errorf("trim %s audit jobs: %w", bucket, err)
		}
		if over := total - int64(len(expired)) - int64(maxCount); over > 0 {
			oldest, err := q.client.ZRange(ctx, set, int64(len(expired)), int64(len(expired))+over-1).Result()
			if err != nil {
				return fmt.Errorf("trim %s audit jobs: %w", bucket, err)
			}
			expired = append(expired, oldest...)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	members := make([]any, len(expired))
	keys := make([]string, len(expired))
	for i, id := range expired {
		members[i] = id
		keys[i] = q.jobKey(id)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, set, members...)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("trim %s audit jobs: %w", bucket, err)
	}
	return nil
}

func (q *RedisQueue) list(ctx context.Context, bucket string) ([]Job, error) {
	ids, err := q.client.ZRevRange(ctx, q.key(bucket), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s audit jobs: %w", bucket, err)
	}
	if len(ids) == 0 {
		return []Job{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, q.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s audit jobs: %w", bucket, err)
	}

	jobs := make([]Job, 0, len(ids))
	for i, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		job, err := decodeJob(ids[i], cmd.Val())
		if err != nil {
			q.logger.WarnContext(ctx, "skipping undecodable audit job", "job_id", ids[i], "error", err)
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func decodeJob(id string, fields map[string]string) (*Job, error) {
	job := &Job{
		ID:        id,
		State:     State(fields["state"]),
		LastError: fields["last_error"],
	}
	if err := json.Unmarshal([]byte(fields["event"]), &job.Event); err != nil {
		return nil, fmt.Errorf("decode audit job %s: %w", id, err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("decode audit job %s attempts: %w", id, err)
	}
	job.Attempts = attempts
	job.EnqueuedAt = fromMillis(fields["enqueued_at"])
	job.FinishedAt = fromMillis(fields["finished_at"])
	return job, nil
}

func fromMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
