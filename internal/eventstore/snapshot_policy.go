package eventstore

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// DefaultSnapshotThreshold is the number of events applied since the last
// snapshot that triggers a new one (spec §4.C).
const DefaultSnapshotThreshold = 100

// DefaultRetainCount is the number of most-recent snapshots kept per aggregate.
const DefaultRetainCount = 3

// DefaultMaxAge is the age beyond which a snapshot is pruned regardless of
// DefaultRetainCount.
const DefaultMaxAge = 30 * 24 * time.Hour

// ShouldSnapshot reports whether a snapshot should be taken given how many
// events have been applied since the last one. Snapshot creation is an
// external decision, not something the Store enforces on every append.
func ShouldSnapshot(eventsSinceLastSnapshot, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultSnapshotThreshold
	}
	return eventsSinceLastSnapshot >= threshold
}

// RetentionScheduler runs PruneSnapshots once daily via robfig/cron, matching
// the Node Engine's own use of cron for Scheduled triggers (spec §4.H).
type RetentionScheduler struct {
	store       Store
	retainCount int
	maxAge      time.Duration
	cron        *cron.Cron
}

// NewRetentionScheduler builds a scheduler that has not yet started.
func NewRetentionScheduler(store Store, retainCount int, maxAge time.Duration) *RetentionScheduler {
	if retainCount <= 0 {
		retainCount = DefaultRetainCount
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &RetentionScheduler{store: store, retainCount: retainCount, maxAge: maxAge, cron: cron.New()}
}

// Start schedules the daily retention run ("once daily", spec §4.C) and
// returns any scheduling error. Run errors are reported via onError.
func (r *RetentionScheduler) Start(onError func(error)) error {
	_, err := r.cron.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := r.store.PruneSnapshots(ctx, r.retainCount, int64(r.maxAge.Seconds())); err != nil {
			if onError != nil {
				onError(apperrors.Wrap(apperrors.CodeStorage, "snapshot retention failed", 500, err))
			}
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (r *RetentionScheduler) Stop() {
	<-r.cron.Stop().Done()
}
