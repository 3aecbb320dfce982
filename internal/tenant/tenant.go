// Package tenant resolves the tenant a request belongs to and binds it into
// the request-local context so that no downstream call can reach storage
// without a bound tenant id (spec §4.A).
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// LifecycleState is the tenant's subscription/lifecycle state.
type LifecycleState string

const (
	StateTrial    LifecycleState = "trial"
	StateActive   LifecycleState = "active"
	StateDisabled LifecycleState = "disabled"
)

// Tenant is the top-level isolation unit.
type Tenant struct {
	ID             uuid.UUID
	Slug           string
	CustomDomain   string
	LifecycleState LifecycleState
	PlanTier       string
	Settings       map[string]any
}

// Active reports whether the tenant may be used to serve requests.
func (t Tenant) Active() bool {
	return t.LifecycleState == StateActive || t.LifecycleState == StateTrial
}

// Registry looks up tenants by the identifiers a request may carry.
type Registry interface {
	BySlug(ctx context.Context, slug string) (Tenant, error)
	ByCustomDomain(ctx context.Context, domain string) (Tenant, error)
}

// ErrNoMatch is returned by a Registry when no tenant matches the lookup key.
// It is distinct from apperrors.TenantUnknown so Resolve can attach context
// about which precedence step failed to match.
var ErrNoMatch = apperrors.NotFound("tenant")

const headerTenantSlug = "tenant-slug"
const queryTenantSlug = "tenant"

// defaultReservedSubdomains are leftmost-Host labels that never identify a tenant.
var defaultReservedSubdomains = map[string]bool{
	"www": true,
	"api": true,
	"app": true,
}

// Resolver implements the precedence order from spec §4.A: explicit header,
// then leftmost subdomain, then query parameter.
type Resolver struct {
	Registry  Registry
	Reserved  map[string]bool
}

// NewResolver builds a Resolver with the given reserved subdomain labels
// merged over the built-in defaults (www/api/app).
func NewResolver(registry Registry, reserved []string) *Resolver {
	merged := make(map[string]bool, len(defaultReservedSubdomains)+len(reserved))
	for k := range defaultReservedSubdomains {
		merged[k] = true
	}
	for _, r := range reserved {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			merged[r] = true
		}
	}
	return &Resolver{Registry: registry, Reserved: merged}
}

// Resolve determines the tenant for an inbound request and returns it, or a
// TenantUnknown/TenantInactive apperrors.Error.
func (r *Resolver) Resolve(req *http.Request) (Tenant, error) {
	ctx := req.Context()

	if slug := strings.TrimSpace(req.Header.Get(headerTenantSlug)); slug != "" {
		t, err := r.Registry.BySlug(ctx, slug)
		if err != nil {
			return Tenant{}, apperrors.TenantUnknown("tenant-slug header: " + slug)
		}
		return r.checkActive(t)
	}

	if sub := Subdomain(req.Host, r.Reserved); sub != "" {
		if t, err := r.Registry.BySlug(ctx, sub); err == nil {
			return r.checkActive(t)
		}
		if t, err := r.Registry.ByCustomDomain(ctx, req.Host); err == nil {
			return r.checkActive(t)
		}
	}

	if slug := strings.TrimSpace(req.URL.Query().Get(queryTenantSlug)); slug != "" {
		t, err := r.Registry.BySlug(ctx, slug)
		if err != nil {
			return Tenant{}, apperrors.TenantUnknown("query parameter: " + slug)
		}
		return r.checkActive(t)
	}

	return Tenant{}, apperrors.TenantUnknown("no tenant-slug header, resolvable subdomain, or query parameter")
}

func (r *Resolver) checkActive(t Tenant) (Tenant, error) {
	if !t.Active() {
		return Tenant{}, apperrors.TenantInactive(string(t.LifecycleState))
	}
	return t, nil
}

// Subdomain extracts the leftmost label of host, returning "" when the host
// is an apex domain, a reserved label, localhost, or an IP literal. Port
// suffixes are stripped first.
func Subdomain(host string, reserved map[string]bool) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || host == "localhost" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	// An apex domain (e.g. "example.com") or bare TLD has no meaningful
	// leftmost subdomain to extract.
	if len(labels) < 3 {
		return ""
	}

	leftmost := labels[0]
	if reserved[leftmost] {
		return ""
	}
	return leftmost
}

type contextKey string

const tenantIDContextKey contextKey = "tenant_id"

// WithTenant binds a tenant id into ctx; IDFromContext and RequireID read
// it back.
func WithTenant(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDContextKey, id)
}

// IDFromContext returns the bound tenant id, or false if none is bound.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantIDContextKey).(uuid.UUID)
	return id, ok
}

// RequireID returns the bound tenant id or a TenantUnknown error. The
// storage layers in this repository do not call it; they take the tenant
// id as an explicit argument instead.
func RequireID(ctx context.Context) (uuid.UUID, error) {
	id, ok := IDFromContext(ctx)
	if !ok {
		return uuid.Nil, apperrors.TenantUnknown("no tenant bound in context")
	}
	return id, nil
}
