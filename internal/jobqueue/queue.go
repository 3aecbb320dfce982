package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/metrics"
)

// jobTTL is how long a job record is retained after its most recent write
// before Redis expires the key; every persist, whatever the job's status,
// resets it.
const jobTTL = 24 * time.Hour

// scheduledPageSize bounds how many due jobs are promoted from the
// scheduled set to the ready list per dequeue call.
const scheduledPageSize = 100

// Queue is a named FIFO-with-delayed-scheduling job queue backed by Redis,
// the structure spec §4.G describes: a ready list, a scheduled sorted set
// keyed by epoch seconds, and a dead-letter list.
type Queue struct {
	client  *redis.Client
	name    string
	metrics *metrics.Metrics
}

// New wraps an existing Redis client for the named queue. Queues are
// namespaced by name within the same Redis database.
func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// WithMetrics attaches a Metrics sink that Enqueue/Complete/Fail/Stats
// report against. Passing nil (the default) disables reporting.
func (q *Queue) WithMetrics(m *metrics.Metrics) *Queue {
	q.metrics = m
	return q
}

func (q *Queue) readyKey() string      { return "queue:" + q.name }
func (q *Queue) scheduledKey() string  { return "queue:" + q.name + ":scheduled" }
func (q *Queue) deadLetterKey() string { return "queue:" + q.name + ":dead_letter" }
func (q *Queue) jobKey(id uuid.UUID) string { return "job:" + id.String() }

// Enqueue creates a pending job and pushes it onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload json.RawMessage, maxRetries int) (uuid.UUID, error) {
	job := Job{
		ID: uuid.New(), Queue: q.name, Kind: kind, Payload: payload,
		MaxRetries: maxRetries, Status: StatusPending, CreatedAt: time.Now().UTC(),
	}
	if err := q.persist(ctx, job); err != nil {
		return uuid.Nil, err
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, err
	}
	if err := q.client.RPush(ctx, q.readyKey(), encoded).Err(); err != nil {
		return uuid.Nil, err
	}
	q.metrics.ObserveEnqueue(q.name, kind)
	return job.ID, nil
}

// Schedule creates a pending job for future execution, inserted into the
// scheduled set with scheduledAt as its score.
func (q *Queue) Schedule(ctx context.Context, kind string, payload json.RawMessage, scheduledAt time.Time, maxRetries int) (uuid.UUID, error) {
	job := Job{
		ID: uuid.New(), Queue: q.name, Kind: kind, Payload: payload,
		MaxRetries: maxRetries, Status: StatusPending, CreatedAt: time.Now().UTC(),
		ScheduledAt: &scheduledAt,
	}
	if err := q.persist(ctx, job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, q.scheduleEncoded(ctx, job, scheduledAt)
}

func (q *Queue) scheduleEncoded(ctx context.Context, job Job, at time.Time) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.scheduledKey(), &redis.Z{Score: float64(at.Unix()), Member: encoded}).Err()
}

// Dequeue promotes any due scheduled jobs to the ready list, then
// blocking-pops the next ready job with the given timeout. It returns
// nil, nil on timeout with nothing available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if err := q.promoteScheduled(ctx); err != nil {
		return nil, err
	}

	result, err := q.client.BLPop(ctx, timeout, q.readyKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPop returns [key, value]; only the value is the job payload.
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, err
	}

	job.Status = StatusRunning
	startedAt := time.Now().UTC()
	job.StartedAt = &startedAt
	if err := q.persist(ctx, job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) promoteScheduled(ctx context.Context) error {
	now := time.Now().UTC().Unix()
	due, err := q.client.ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min: "0", Max: strconv.FormatInt(now, 10), Offset: 0, Count: scheduledPageSize,
	}).Result()
	if err != nil {
		return err
	}
	for _, encoded := range due {
		if err := q.client.RPush(ctx, q.readyKey(), encoded).Err(); err != nil {
			return err
		}
		if err := q.client.ZRem(ctx, q.scheduledKey(), encoded).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Complete marks a job completed.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	job, ok, err := q.load(ctx, id)
	if err != nil || !ok {
		return err
	}
	job.Status = StatusCompleted
	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	if err := q.persist(ctx, job); err != nil {
		return err
	}
	q.metrics.ObserveComplete(q.name, job.Kind)
	return nil
}

// Fail records a failed attempt. If the job has retries remaining it is
// rescheduled with exponential backoff and returns retrying=true;
// otherwise it is moved to the dead-letter list and retrying=false.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, cause string) (retrying bool, err error) {
	job, ok, err := q.load(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	job.RetryCount++
	job.Error = cause

	if job.RetryCount < job.MaxRetries {
		job.Status = StatusRetrying
		retryAt := time.Now().UTC().Add(Backoff(job.RetryCount))
		job.ScheduledAt = &retryAt
		if err := q.persist(ctx, job); err != nil {
			return false, err
		}
		q.metrics.ObserveFail(q.name, job.Kind, false)
		return true, q.scheduleEncoded(ctx, job, retryAt)
	}

	job.Status = StatusFailed
	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	if err := q.persist(ctx, job); err != nil {
		return false, err
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if err := q.client.RPush(ctx, q.deadLetterKey(), encoded).Err(); err != nil {
		return false, err
	}
	q.metrics.ObserveFail(q.name, job.Kind, true)
	return false, nil
}

// DeadLetterJobs returns every job that exhausted its retries, for
// operator inspection (spec §12 supplemented feature).
func (q *Queue) DeadLetterJobs(ctx context.Context) ([]Job, error) {
	encoded, err := q.client.LRange(ctx, q.deadLetterKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(encoded))
	for _, e := range encoded {
		var job Job
		if err := json.Unmarshal([]byte(e), &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Stats reports queue depth across its three structures.
type Stats struct {
	Ready      int64
	Scheduled  int64
	DeadLetter int64
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	ready, err := q.client.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return Stats{}, err
	}
	scheduled, err := q.client.ZCard(ctx, q.scheduledKey()).Result()
	if err != nil {
		return Stats{}, err
	}
	dead, err := q.client.LLen(ctx, q.deadLetterKey()).Result()
	if err != nil {
		return Stats{}, err
	}
	q.metrics.SetQueueDepth(q.name, int(ready))
	return Stats{Ready: ready, Scheduled: scheduled, DeadLetter: dead}, nil
}

func (q *Queue) persist(ctx context.Context, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.jobKey(job.ID), encoded, jobTTL).Err()
}

func (q *Queue) load(ctx context.Context, id uuid.UUID) (Job, bool, error) {
	encoded, err := q.client.Get(ctx, q.jobKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	var job Job
	if err := json.Unmarshal([]byte(encoded), &job); err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}
