package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestWorker_DispatchesRegisteredHandler(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []string

	w := NewWorker(q, nil)
	w.Register("greet", func(ctx context.Context, job Job) error {
		mu.Lock()
		handled = append(handled, job.Kind)
		mu.Unlock()
		return nil
	})
	w.Start(ctx, 1)
	defer w.Stop()

	if _, err := q.Enqueue(context.Background(), "greet", json.RawMessage(`{}`), 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(handled)
		mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected handler to run within deadline")
}

func TestWorker_UnknownKindDeadLetters(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(q, nil)
	w.Start(ctx, 1)

	if _, err := q.Enqueue(context.Background(), "mystery", json.RawMessage(`{}`), 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		dead, err := q.DeadLetterJobs(context.Background())
		if err != nil {
			t.Fatalf("dead letter jobs: %v", err)
		}
		if len(dead) == 1 {
			w.Stop()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	w.Stop()
	t.Fatal("expected unknown-kind job to be dead-lettered within deadline")
}
