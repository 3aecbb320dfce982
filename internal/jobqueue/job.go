// Package jobqueue implements the background job queue (spec §4.G):
// per-queue FIFO ready list plus a delay-ordered scheduled set, exponential
// backoff retry, and a dead-letter list for permanently failed jobs.
// Grounded on
// _examples/original_source/crates/backend-api/src/jobs/queue.rs, adapted
// from Redis list/zset commands to go-redis/redis/v8 — a dependency the
// teacher module carried in go.mod but never exercised.
package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Job is one unit of queued work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	MaxRetries  int             `json:"max_retries"`
	RetryCount  int             `json:"retry_count"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Backoff computes the exponential retry delay for a given retry count:
// 2^retry_count seconds (spec §4.G).
func Backoff(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Second
}
