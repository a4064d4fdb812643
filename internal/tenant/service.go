package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/ids"
	"signflow.dev/internal/quota"
)

const (
	defaultInviteePlan = "basico"
	maxSlugRetries     = 5
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Service implements tenant creation, membership, and settings.
type Service struct {
	store    Store
	users    UserLookup
	notifier InviteNotifier
	now      func() time.Time
	frontURL string
}

// NewService constructs Service.
func NewService(store Store, users UserLookup, notifier InviteNotifier, frontURL string) *Service {
	return &Service{store: store, users: users, notifier: notifier, now: time.Now, frontURL: frontURL}
}

func slugify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	slug := nonAlphanumeric.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "tenant"
	}
	return slug
}

func randomSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 4)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// createTenant inserts a Tenant with a unique slug derived from
// displayName, retrying with a fresh random suffix on a uniqueness
// collision - the DB's unique constraint is the source of truth, this is
// only an optimistic pre-check to keep the common case single-pass (see the
// "slug generation race" design note).
func (s *Service) createTenant(ctx context.Context, q dbx.Querier, displayName, planSlug string) (*Tenant, error) {
	plan, err := s.store.Plans.FindBySlug(ctx, q, planSlug)
	if err != nil {
		return nil, fmt.Errorf("%w: plan %q not found", apperr.ErrInternal, planSlug)
	}

	base := slugify(displayName)
	slug := base
	now := s.now().UTC()
	for attempt := 0; attempt < maxSlugRetries; attempt++ {
		exists, err := s.store.Tenants.SlugExists(ctx, q, slug)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		slug = base + "-" + randomSuffix()
	}

	t := &Tenant{
		ID: ids.New(), DisplayName: displayName, Slug: slug, Status: StatusActive,
		PlanID: plan.ID, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.Tenants.Create(ctx, q, t); err != nil {
		if isUniqueViolation(err) {
			t.Slug = base + "-" + randomSuffix()
			if err := s.store.Tenants.Create(ctx, q, t); err != nil {
				return nil, err
			}
			return t, nil
		}
		return nil, err
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

// ProvisionPersonalTenant satisfies authx.TenantProvisioner: it creates a
// tenant row only, the caller (authx.Register) creates the owning user
// itself in the same transaction.
func (s *Service) ProvisionPersonalTenant(ctx context.Context, q dbx.Querier, displayName, planSlug string) (string, error) {
	t, err := s.createTenant(ctx, q, displayName, planSlug)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// CreateTenantWithAdminInput is the payload for the super-admin operation.
type CreateTenantWithAdminInput struct {
	DisplayName   string
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

// CreateTenantWithAdmin provisions a tenant on the `basico` plan along with
// its owning ADMIN user, in one transaction.
func (s *Service) CreateTenantWithAdmin(ctx context.Context, db *sql.DB, in CreateTenantWithAdminInput) (*Tenant, error) {
	var result *Tenant
	err := dbx.RunInTx(ctx, db, sql.LevelSerializable, func(tx *sql.Tx) error {
		if _, _, found, err := s.users.FindByEmail(ctx, tx, in.AdminEmail); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
		}
		t, err := s.createTenant(ctx, tx, in.DisplayName, defaultInviteePlan)
		if err != nil {
			return err
		}
		passwordHash, err := crypto.HashSecret(in.AdminPassword)
		if err != nil {
			return err
		}
		if _, err := s.users.CreateOwner(ctx, tx, t.ID, in.AdminName, in.AdminEmail, passwordHash); err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

// ListMyTenants returns the user's personal tenant plus every non-personal
// tenant they are an ACTIVE member of.
func (s *Service) ListMyTenants(ctx context.Context, q dbx.Querier, personalTenantID, userID string) ([]MyTenant, error) {
	personal, err := s.store.Tenants.FindByID(ctx, q, personalTenantID)
	if err != nil {
		return nil, err
	}
	out := []MyTenant{{TenantID: personal.ID, Name: personal.DisplayName, Role: MemberAdmin, IsPersonal: true}}

	memberships, err := s.store.Members.ActiveByUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		t, err := s.store.Tenants.FindByID(ctx, q, m.TenantID)
		if err != nil {
			continue
		}
		out = append(out, MyTenant{TenantID: t.ID, Name: t.DisplayName, Role: m.Role, IsPersonal: false})
	}
	return out, nil
}

// InviteMemberInput is the payload for InviteMember.
type InviteMemberInput struct {
	CurrentTenantID string
	Email           string
	Role            MemberRole
	IsSuperAdmin    bool
}

// InviteMember runs the §4.4/§4.6 invitation gate and upserts a PENDING
// TenantMember, then fires the onboarding notification.
func (s *Service) InviteMember(ctx context.Context, q dbx.Querier, in InviteMemberInput) error {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	t, err := s.store.Tenants.FindByID(ctx, q, in.CurrentTenantID)
	if err != nil {
		return err
	}
	plan, err := s.store.Plans.FindByID(ctx, q, t.PlanID)
	if err != nil {
		return err
	}
	occupancy, err := s.occupancy(ctx, q, in.CurrentTenantID)
	if err != nil {
		return err
	}
	if err := quota.CheckInvitePreconditions(plan.Price, plan.UserLimit, string(t.SubscriptionStatus), occupancy, in.IsSuperAdmin); err != nil {
		return err
	}

	userID, _, found, err := s.users.FindByEmail(ctx, q, email)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no registered user with that email", apperr.ErrValidation)
	}
	if existing, err := s.store.Members.FindByTenantAndEmail(ctx, q, in.CurrentTenantID, email); err == nil && existing != nil && existing.Status == MemberActive {
		return fmt.Errorf("%w: already an active member", apperr.ErrConflict)
	}

	member := &Member{
		ID: ids.New(), TenantID: in.CurrentTenantID, UserID: userID, Email: email,
		Role: in.Role, Status: MemberPending, InvitedAt: s.now().UTC(),
	}
	if err := s.store.Members.Upsert(ctx, q, member); err != nil {
		return err
	}
	if s.notifier != nil {
		link := strings.TrimRight(s.frontURL, "/") + "/onboarding"
		_ = s.notifier.SendInvite(ctx, in.CurrentTenantID, email, link)
	}
	return nil
}

// ListPendingInvites returns TenantMember rows pending for userID or email.
func (s *Service) ListPendingInvites(ctx context.Context, q dbx.Querier, userID, email string) ([]Member, error) {
	return s.store.Members.PendingByUserOrEmail(ctx, q, userID, email)
}

// RespondInvite accepts or declines a pending invitation.
func (s *Service) RespondInvite(ctx context.Context, q dbx.Querier, userID, userEmail, inviteID string, accept bool) error {
	m, err := s.store.Members.FindByID(ctx, q, inviteID)
	if err != nil {
		return err
	}
	matches := m.UserID == userID || (m.UserID == "" && strings.EqualFold(m.Email, userEmail))
	if !matches {
		return apperr.ErrNotFound
	}
	status := MemberDeclined
	if accept {
		status = MemberActive
	}
	return s.store.Members.SetStatus(ctx, q, inviteID, status, userID)
}

// occupancy implements §4.4's seat-counting formula in full: the tenant's
// owning ACTIVE user (created directly by authx.Register, never itself a
// TenantMember row) plus every not-DECLINED TenantMember. CountOccupancy
// alone only ever saw the second half of that sum.
func (s *Service) occupancy(ctx context.Context, q dbx.Querier, tenantID string) (int, error) {
	activeUsers, err := s.users.ActiveUserCount(ctx, q, tenantID)
	if err != nil {
		return 0, err
	}
	members, err := s.store.Members.CountOccupancy(ctx, q, tenantID)
	if err != nil {
		return 0, err
	}
	return activeUsers + members, nil
}

// ActiveMemberRole satisfies authx.MembershipResolver.
func (s *Service) ActiveMemberRole(ctx context.Context, q dbx.Querier, tenantID, userID string) (string, bool, error) {
	role, ok, err := s.store.Members.ActiveRole(ctx, q, tenantID, userID)
	if err != nil {
		return "", false, err
	}
	return string(role), ok, nil
}

// GetSettings returns a tenant's notification/branding settings.
func (s *Service) GetSettings(ctx context.Context, q dbx.Querier, tenantID string) (*Settings, error) {
	return s.store.Settings.Find(ctx, q, tenantID)
}

// UpdateSettings upserts a tenant's notification/branding settings.
func (s *Service) UpdateSettings(ctx context.Context, q dbx.Querier, settings *Settings) error {
	return s.store.Settings.Upsert(ctx, q, settings)
}

// UpdatePlan is the super-admin plan-catalog mutation.
func (s *Service) UpdatePlan(ctx context.Context, q dbx.Querier, p *Plan) error {
	return s.store.Plans.Update(ctx, q, p)
}

// ListPlans returns the full plan catalog.
func (s *Service) ListPlans(ctx context.Context, q dbx.Querier) ([]Plan, error) {
	return s.store.Plans.List(ctx, q)
}

// GetTenant resolves one Tenant by id, for the "GET /tenants/my" detail view.
func (s *Service) GetTenant(ctx context.Context, q dbx.Querier, tenantID string) (*Tenant, error) {
	return s.store.Tenants.FindByID(ctx, q, tenantID)
}

// Usage is the occupancy/plan-limit summary backing "GET /tenants/my".
type Usage struct {
	Occupancy     int
	UserLimit     int
	DocumentLimit int
	PlanSlug      string
}

// GetUsage reports a tenant's current seat occupancy against its plan's
// limits - the same occupancy sum InviteMember's quota gate checks.
func (s *Service) GetUsage(ctx context.Context, q dbx.Querier, t *Tenant) (Usage, error) {
	plan, err := s.store.Plans.FindByID(ctx, q, t.PlanID)
	if err != nil {
		return Usage{}, err
	}
	occupancy, err := s.occupancy(ctx, q, t.ID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		Occupancy: occupancy, UserLimit: plan.UserLimit,
		DocumentLimit: plan.DocumentLimit, PlanSlug: plan.Slug,
	}, nil
}
