package tenant

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestPostgresRegistry_BySlugReturnsMatchingTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, slug, custom_domain, lifecycle_state, plan_tier, settings").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "custom_domain", "lifecycle_state", "plan_tier", "settings"}).
			AddRow(id.String(), "acme", nil, "active", "pro", []byte(`{"theme":"dark"}`)))

	reg := NewPostgresRegistry(db)
	tn, err := reg.BySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tn.ID != id || tn.Slug != "acme" || tn.LifecycleState != StateActive {
		t.Fatalf("unexpected tenant: %+v", tn)
	}
	if tn.Settings["theme"] != "dark" {
		t.Fatalf("expected settings decoded, got %+v", tn.Settings)
	}
}

func TestPostgresRegistry_BySlugNoMatchReturnsErrNoMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, slug, custom_domain, lifecycle_state, plan_tier, settings").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "custom_domain", "lifecycle_state", "plan_tier", "settings"}))

	reg := NewPostgresRegistry(db)
	_, err = reg.BySlug(context.Background(), "missing")
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}
