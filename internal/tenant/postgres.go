package tenant

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jirsi-platform/core/internal/apperrors"
)

type tenantRow struct {
	ID             uuid.UUID      `db:"id"`
	Slug           string         `db:"slug"`
	CustomDomain   sql.NullString `db:"custom_domain"`
	LifecycleState string         `db:"lifecycle_state"`
	PlanTier       string         `db:"plan_tier"`
	Settings       []byte         `db:"settings"`
}

func (r tenantRow) toTenant() (Tenant, error) {
	settings := map[string]any{}
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &settings); err != nil {
			return Tenant{}, apperrors.Wrap(apperrors.CodeInvalidInput, "decode tenant settings", 500, err)
		}
	}
	return Tenant{
		ID:             r.ID,
		Slug:           r.Slug,
		CustomDomain:   r.CustomDomain.String,
		LifecycleState: LifecycleState(r.LifecycleState),
		PlanTier:       r.PlanTier,
		Settings:       settings,
	}, nil
}

// PostgresRegistry is the production Registry implementation, backed by
// the tenants table (migration 0001).
type PostgresRegistry struct {
	db *sqlx.DB
}

// NewPostgresRegistry wraps an existing *sql.DB.
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: sqlx.NewDb(db, "postgres")}
}

func (r *PostgresRegistry) BySlug(ctx context.Context, slug string) (Tenant, error) {
	return r.lookup(ctx, "slug = $1", slug)
}

func (r *PostgresRegistry) ByCustomDomain(ctx context.Context, domain string) (Tenant, error) {
	return r.lookup(ctx, "custom_domain = $1", domain)
}

func (r *PostgresRegistry) lookup(ctx context.Context, predicate, value string) (Tenant, error) {
	var row tenantRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, slug, custom_domain, lifecycle_state, plan_tier, settings
		FROM tenants WHERE `+predicate, value)
	if err == sql.ErrNoRows {
		return Tenant{}, ErrNoMatch
	}
	if err != nil {
		return Tenant{}, apperrors.Storage(err)
	}
	return row.toTenant()
}
