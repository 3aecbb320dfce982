package nodeengine

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// definition is the JSON shape persisted in graphs.definition, mirroring
// Graph without its tenant/enabled columns (those are stored separately so
// they can be filtered/toggled without rewriting the JSONB blob).
type definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type graphRow struct {
	ID         uuid.UUID `db:"id"`
	TenantID   uuid.UUID `db:"tenant_id"`
	Name       string    `db:"name"`
	Enabled    bool      `db:"enabled"`
	Definition []byte    `db:"definition"`
}

func (r graphRow) toGraph() (Graph, error) {
	var def definition
	if err := json.Unmarshal(r.Definition, &def); err != nil {
		return Graph{}, apperrors.Wrap(apperrors.CodeInvalidInput, "decode graph definition", 500, err)
	}
	return Graph{
		ID:       r.ID,
		TenantID: r.TenantID,
		Name:     r.Name,
		Enabled:  r.Enabled,
		Nodes:    def.Nodes,
		Edges:    def.Edges,
	}, nil
}

// PostgresGraphStore is the GraphStore/SubGraphStore implementation
// backing production deployments, reading the graphs table populated by
// migration 0005.
type PostgresGraphStore struct {
	db *sqlx.DB
}

// NewPostgresGraphStore wraps an existing *sql.DB.
func NewPostgresGraphStore(db *sql.DB) *PostgresGraphStore {
	return &PostgresGraphStore{db: sqlx.NewDb(db, "postgres")}
}

// EnabledGraphs loads every enabled graph for tenantID, for the Dispatcher
// to match incoming events against.
func (s *PostgresGraphStore) EnabledGraphs(ctx context.Context, tenantID uuid.UUID) ([]Graph, error) {
	var rows []graphRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, name, enabled, definition
		FROM graphs
		WHERE tenant_id = $1 AND enabled = true`, tenantID); err != nil {
		return nil, apperrors.Storage(err)
	}
	graphs := make([]Graph, 0, len(rows))
	for _, r := range rows {
		g, err := r.toGraph()
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// Graph loads a single graph by id, for SubGraphHandler's delegated runs.
func (s *PostgresGraphStore) Graph(ctx context.Context, graphID string) (Graph, error) {
	id, err := uuid.Parse(graphID)
	if err != nil {
		return Graph{}, apperrors.InvalidInput("graph_id", graphID)
	}
	var row graphRow
	err = s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, name, enabled, definition
		FROM graphs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return Graph{}, apperrors.NotFound("graph")
	}
	if err != nil {
		return Graph{}, apperrors.Storage(err)
	}
	return row.toGraph()
}

// Save upserts graph, re-encoding its nodes/edges into the definition
// column. Used by the graph editor API, not by run-time dispatch.
func (s *PostgresGraphStore) Save(ctx context.Context, g Graph) error {
	def, err := json.Marshal(definition{Nodes: g.Nodes, Edges: g.Edges})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "encode graph definition", 500, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, tenant_id, name, enabled, definition, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			definition = EXCLUDED.definition,
			updated_at = now()`,
		g.ID, g.TenantID, g.Name, g.Enabled, def)
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

type executionLogRow struct {
	ID          uuid.UUID    `db:"id"`
	TenantID    uuid.UUID    `db:"tenant_id"`
	GraphID     uuid.UUID    `db:"graph_id"`
	TriggerRef  string       `db:"trigger_ref"`
	Status      string       `db:"status"`
	Trace       []byte       `db:"trace"`
	Error       string       `db:"error"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// PostgresExecutionLogStore is the ExecutionLogStore implementation
// backing production deployments.
type PostgresExecutionLogStore struct {
	db *sqlx.DB
}

// NewPostgresExecutionLogStore wraps an existing *sql.DB.
func NewPostgresExecutionLogStore(db *sql.DB) *PostgresExecutionLogStore {
	return &PostgresExecutionLogStore{db: sqlx.NewDb(db, "postgres")}
}

// SaveExecutionLog persists log, overwriting any prior row with the same
// id (a graph run is only ever saved once, but Executor callers may retry
// the save on a transient failure).
func (s *PostgresExecutionLogStore) SaveExecutionLog(ctx context.Context, log ExecutionLog) error {
	trace, err := json.Marshal(log.Trace)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "encode execution trace", 500, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, tenant_id, graph_id, trigger_ref, status, trace, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			trace = EXCLUDED.trace,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`,
		log.ID, log.TenantID, log.GraphID, log.TriggerRef, string(log.Status), trace, log.Error,
		log.StartedAt, log.CompletedAt)
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}
