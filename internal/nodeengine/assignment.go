package nodeengine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// AssignmentStrategy selects how the AssignAgent built-in action node picks
// a user, grounded on
// _examples/original_source/crates/core-node-engine/src/strategies.rs.
type AssignmentStrategy string

const (
	// StrategyRoundRobin assigns to the agent least recently assigned.
	StrategyRoundRobin AssignmentStrategy = "round_robin"
	// StrategyLoadBalanced assigns to the agent with the fewest active deals.
	StrategyLoadBalanced AssignmentStrategy = "load_balanced"
	// StrategyManual performs no automatic assignment.
	StrategyManual AssignmentStrategy = "manual"
)

// AssignmentService finds and books the next agent for a lead/deal,
// grounded on the original's AssignmentService.
type AssignmentService struct {
	db *sqlx.DB
}

// NewAssignmentService wraps an existing *sql.DB.
func NewAssignmentService(db *sql.DB) *AssignmentService {
	return &AssignmentService{db: sqlx.NewDb(db, "postgres")}
}

// FindAgent dispatches to the strategy's implementation. StrategyManual
// always returns (uuid.Nil, false, nil): no auto-assignment occurs.
func (a *AssignmentService) FindAgent(ctx context.Context, tenantID uuid.UUID, strategy AssignmentStrategy) (uuid.UUID, bool, error) {
	switch strategy {
	case StrategyRoundRobin:
		return a.findRoundRobin(ctx, tenantID)
	case StrategyLoadBalanced:
		return a.findLoadBalanced(ctx, tenantID)
	case StrategyManual, "":
		return uuid.Nil, false, nil
	default:
		return uuid.Nil, false, apperrors.InvalidInput("strategy", string(strategy))
	}
}

// findRoundRobin picks the agent with the oldest last_assigned_at (never
// assigned sorts first), locking the candidate row with FOR UPDATE SKIP
// LOCKED so concurrent assigners never hand the same agent to two leads
// (spec §5's pessimistic-locking exception to the optimistic default).
func (a *AssignmentService) findRoundRobin(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, bool, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, false, apperrors.Storage(err)
	}
	defer tx.Rollback()

	var agentID uuid.UUID
	err = tx.GetContext(ctx, &agentID, `
		WITH next_agent AS (
			SELECT u.id
			FROM users u
			LEFT JOIN agent_round_robin_state ars
				ON u.id = ars.user_id AND ars.tenant_id = $1
			WHERE u.tenant_id = $1
			  AND u.role = 'agent'
			  AND u.is_active = true
			ORDER BY COALESCE(ars.last_assigned_at, 'epoch'::timestamptz) ASC,
			         u.created_at ASC
			LIMIT 1
			FOR UPDATE OF u SKIP LOCKED
		)
		SELECT id FROM next_agent`, tenantID)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, apperrors.Storage(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_round_robin_state (tenant_id, user_id, last_assigned_at, assignment_count)
		VALUES ($1, $2, now(), 1)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			last_assigned_at = now(),
			assignment_count = agent_round_robin_state.assignment_count + 1`,
		tenantID, agentID); err != nil {
		return uuid.Nil, false, apperrors.Storage(err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, false, apperrors.Storage(err)
	}
	return agentID, true, nil
}

// findLoadBalanced picks the agent with the fewest open (non-terminal)
// deals, breaking ties by seniority. No row lock is needed: this strategy
// tolerates a momentary race producing a slightly uneven distribution,
// unlike round robin whose entire point is exclusivity.
func (a *AssignmentService) findLoadBalanced(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, bool, error) {
	var agentID uuid.UUID
	err := a.db.GetContext(ctx, &agentID, `
		SELECT u.id
		FROM users u
		LEFT JOIN read_records d ON d.tenant_id = $1
			AND d.entity_type = 'deal'
			AND d.deleted_at IS NULL
			AND d.fields->>'owner_id' = u.id::text
			AND d.fields->>'stage' NOT IN ('closed_won', 'closed_lost', 'lost')
		WHERE u.tenant_id = $1
		  AND u.role = 'agent'
		  AND u.is_active = true
		GROUP BY u.id, u.created_at
		ORDER BY count(d.id) ASC, u.created_at ASC
		LIMIT 1`, tenantID)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, apperrors.Storage(err)
	}
	return agentID, true, nil
}
