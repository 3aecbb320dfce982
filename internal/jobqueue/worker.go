package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jirsi-platform/core/infrastructure/logging"
)

// Handler executes one job's kind-specific payload. Returning an error
// triggers the queue's retry/backoff policy.
type Handler func(ctx context.Context, job Job) error

// unknownKindError marks an unregistered job kind; Worker treats this as a
// permanent failure regardless of remaining retries, matching spec §4.G's
// "unknown kinds fail permanently and go to DLQ".
type unknownKindError struct{ kind string }

func (e *unknownKindError) Error() string { return fmt.Sprintf("no handler registered for kind %q", e.kind) }

// idleSleep is how long a worker waits between empty dequeues before
// polling again.
const idleSleep = 500 * time.Millisecond

// dequeueTimeout bounds each blocking dequeue call so Stop can observe
// context cancellation promptly.
const dequeueTimeout = 2 * time.Second

// Worker pulls jobs from a Queue and dispatches them by kind to a
// registered Handler.
type Worker struct {
	queue    *Queue
	log      *logging.Logger
	handlers map[string]Handler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker builds a worker pulling from queue.
func NewWorker(queue *Queue, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.New("jobqueue-worker", "info", "json")
	}
	return &Worker{queue: queue, log: log, handlers: make(map[string]Handler)}
}

// Register associates a job kind with the handler that executes it.
func (w *Worker) Register(kind string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = handler
}

// Start launches concurrency background workers, each looping dequeue ->
// dispatch -> complete/fail until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop(runCtx)
	}
}

// Stop cancels the worker loops and waits for in-flight iterations to
// return. The cancellation also reaches the context handed to any
// in-flight handler, so a handler that honours its context is cut short
// rather than left to finish; per spec §4.G, implementations without lease
// reclamation accept duplicate execution on crash and require idempotent
// handlers.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Warn("dequeue failed")
			time.Sleep(idleSleep)
			continue
		}
		if job == nil {
			time.Sleep(idleSleep)
			continue
		}
		w.dispatch(ctx, *job)
	}
}

func (w *Worker) dispatch(ctx context.Context, job Job) {
	w.mu.Lock()
	handler, ok := w.handlers[job.Kind]
	w.mu.Unlock()

	if !ok {
		w.failPermanently(ctx, job, &unknownKindError{kind: job.Kind})
		return
	}

	if err := handler(ctx, job); err != nil {
		retrying, failErr := w.queue.Fail(ctx, job.ID, err.Error())
		if failErr != nil {
			w.log.WithError(failErr).WithField("job_id", job.ID).Warn("failed to record job failure")
			return
		}
		if retrying {
			w.log.WithField("job_id", job.ID).WithField("kind", job.Kind).Warn("job failed, scheduled for retry")
		} else {
			w.log.WithField("job_id", job.ID).WithField("kind", job.Kind).Error("job failed permanently")
		}
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("failed to mark job complete")
	}
}

// failPermanently exhausts retries immediately for a job with no
// registered handler: retrying would never succeed. Setting RetryCount to
// MaxRetries before recording the failure guarantees Queue.Fail's
// retry_count < max_retries check is false on this single call.
func (w *Worker) failPermanently(ctx context.Context, job Job, cause error) {
	job.RetryCount = job.MaxRetries
	if err := w.queue.persist(ctx, job); err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("failed to pin retry state for unknown-kind job")
		return
	}
	if _, err := w.queue.Fail(ctx, job.ID, cause.Error()); err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("failed to dead-letter unknown-kind job")
	}
}
