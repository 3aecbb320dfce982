package nodeengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/jirsi-platform/core/infrastructure/logging"
)

// Scheduler drives the `Scheduled` trigger kind (spec §4.H), which is not
// event-driven: graphs whose trigger node carries a cron expression are
// registered with an underlying robfig/cron scheduler and launched on
// their own schedule rather than in response to a domain event.
type Scheduler struct {
	cron     *cron.Cron
	executor *Executor
	logs     ExecutionLogStore
	log      *logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // graph id -> cron entry, for re-registration
}

// NewScheduler builds a Scheduler driving executor and persisting runs via
// logs.
func NewScheduler(executor *Executor, logs ExecutionLogStore, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.New("nodeengine-scheduler", "info", "json")
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		executor: executor,
		logs:     logs,
		log:      log,
		entries:  make(map[string]cron.EntryID),
	}
}

// Register schedules graph to run on its trigger node's cron expression
// (Config["cron"]). Registering the same graph id again replaces its prior
// schedule.
func (s *Scheduler) Register(graph Graph) error {
	trigger, ok := findTrigger(graph)
	if !ok || trigger.Type != NodeTriggerScheduled {
		return fmt.Errorf("graph %s has no scheduled trigger", graph.ID)
	}
	cronExpr, _ := trigger.Config["cron"].(string)
	if cronExpr == "" {
		return fmt.Errorf("graph %s scheduled trigger missing cron expression", graph.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.entries[graph.ID.String()]; ok {
		s.cron.Remove(prior)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		ctx := context.Background()
		log, err := s.executor.Execute(ctx, graph, "scheduled", nil)
		if err != nil {
			s.log.WithError(err).WithField("graph_id", graph.ID).Warn("scheduled graph run failed")
		}
		if log != nil && s.logs != nil {
			if err := s.logs.SaveExecutionLog(ctx, *log); err != nil {
				s.log.WithError(err).WithField("graph_id", graph.ID).Warn("failed to persist scheduled execution log")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("register cron schedule for graph %s: %w", graph.ID, err)
	}
	s.entries[graph.ID.String()] = id
	return nil
}

// Start begins running scheduled graphs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
