package tenant

import (
	"context"

	"signflow.dev/internal/dbx"
)

// TenantStore persists Tenant rows.
type TenantStore interface {
	Create(ctx context.Context, q dbx.Querier, t *Tenant) error
	FindByID(ctx context.Context, q dbx.Querier, id string) (*Tenant, error)
	SlugExists(ctx context.Context, q dbx.Querier, slug string) (bool, error)
	Update(ctx context.Context, q dbx.Querier, t *Tenant) error
}

// PlanStore persists the plan catalog.
type PlanStore interface {
	FindBySlug(ctx context.Context, q dbx.Querier, slug string) (*Plan, error)
	FindByID(ctx context.Context, q dbx.Querier, id string) (*Plan, error)
	List(ctx context.Context, q dbx.Querier) ([]Plan, error)
	Update(ctx context.Context, q dbx.Querier, p *Plan) error
}

// MemberStore persists TenantMember rows.
type MemberStore interface {
	Upsert(ctx context.Context, q dbx.Querier, m *Member) error
	FindByTenantAndEmail(ctx context.Context, q dbx.Querier, tenantID, email string) (*Member, error)
	ActiveByUser(ctx context.Context, q dbx.Querier, userID string) ([]Member, error)
	PendingByUserOrEmail(ctx context.Context, q dbx.Querier, userID, email string) ([]Member, error)
	FindByID(ctx context.Context, q dbx.Querier, id string) (*Member, error)
	SetStatus(ctx context.Context, q dbx.Querier, id string, status MemberStatus, userID string) error
	CountOccupancy(ctx context.Context, q dbx.Querier, tenantID string) (int, error)
	ActiveRole(ctx context.Context, q dbx.Querier, tenantID, userID string) (MemberRole, bool, error)
}

// SettingsStore persists per-tenant TenantSettings.
type SettingsStore interface {
	Find(ctx context.Context, q dbx.Querier, tenantID string) (*Settings, error)
	Upsert(ctx context.Context, q dbx.Querier, s *Settings) error
}

// UserLookup is the narrow slice of internal/authx that tenant needs: does
// an email correspond to a registered user, and what is the user's id/name.
type UserLookup interface {
	FindByEmail(ctx context.Context, q dbx.Querier, email string) (userID, name string, found bool, err error)
	FindNameByID(ctx context.Context, q dbx.Querier, userID string) (name string, err error)
	ActiveUserCount(ctx context.Context, q dbx.Querier, tenantID string) (int, error)
	CreateOwner(ctx context.Context, q dbx.Querier, tenantID, name, email, passwordHash string) (userID string, err error)
}

// InviteNotifier delivers the onboarding-link notification for Invite.
type InviteNotifier interface {
	SendInvite(ctx context.Context, tenantID, email, onboardingLink string) error
}

// Store aggregates the sub-stores tenant depends on.
type Store struct {
	Tenants  TenantStore
	Plans    PlanStore
	Members  MemberStore
	Settings SettingsStore
}
