package tenant

import (
	"context"
	"testing"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
)

type fakeTenantStore struct {
	bySlug map[string]bool
	byID   map[string]*Tenant
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{bySlug: map[string]bool{}, byID: map[string]*Tenant{}}
}
func (f *fakeTenantStore) Create(_ context.Context, _ dbx.Querier, t *Tenant) error {
	f.bySlug[t.Slug] = true
	f.byID[t.ID] = t
	return nil
}
func (f *fakeTenantStore) FindByID(_ context.Context, _ dbx.Querier, id string) (*Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return t, nil
}
func (f *fakeTenantStore) SlugExists(_ context.Context, _ dbx.Querier, slug string) (bool, error) {
	return f.bySlug[slug], nil
}
func (f *fakeTenantStore) Update(_ context.Context, _ dbx.Querier, t *Tenant) error {
	f.byID[t.ID] = t
	return nil
}

type fakePlanStore struct{ bySlug map[string]*Plan }

func (f fakePlanStore) FindBySlug(_ context.Context, _ dbx.Querier, slug string) (*Plan, error) {
	p, ok := f.bySlug[slug]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return p, nil
}
func (f fakePlanStore) FindByID(_ context.Context, _ dbx.Querier, id string) (*Plan, error) {
	for _, p := range f.bySlug {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperr.ErrNotFound
}
func (f fakePlanStore) List(context.Context, dbx.Querier) ([]Plan, error) { return nil, nil }
func (f fakePlanStore) Update(context.Context, dbx.Querier, *Plan) error  { return nil }

type fakeMemberStore struct {
	occupancy int
	byTenant  map[string]*Member
}

func (f fakeMemberStore) Upsert(context.Context, dbx.Querier, *Member) error { return nil }
func (f fakeMemberStore) FindByTenantAndEmail(_ context.Context, _ dbx.Querier, tenantID, email string) (*Member, error) {
	return f.byTenant[tenantID+email], nil
}
func (f fakeMemberStore) ActiveByUser(context.Context, dbx.Querier, string) ([]Member, error) {
	return nil, nil
}
func (f fakeMemberStore) PendingByUserOrEmail(context.Context, dbx.Querier, string, string) ([]Member, error) {
	return nil, nil
}
func (f fakeMemberStore) FindByID(context.Context, dbx.Querier, string) (*Member, error) {
	return nil, apperr.ErrNotFound
}
func (f fakeMemberStore) SetStatus(context.Context, dbx.Querier, string, MemberStatus, string) error {
	return nil
}
func (f fakeMemberStore) CountOccupancy(context.Context, dbx.Querier, string) (int, error) {
	return f.occupancy, nil
}
func (f fakeMemberStore) ActiveRole(context.Context, dbx.Querier, string, string) (MemberRole, bool, error) {
	return "", false, nil
}

type fakeSettingsStore struct{}

func (fakeSettingsStore) Find(context.Context, dbx.Querier, string) (*Settings, error) {
	return nil, apperr.ErrNotFound
}
func (fakeSettingsStore) Upsert(context.Context, dbx.Querier, *Settings) error { return nil }

type fakeUserLookup struct{ registered map[string]string }

func (f fakeUserLookup) FindByEmail(_ context.Context, _ dbx.Querier, email string) (string, string, bool, error) {
	id, ok := f.registered[email]
	return id, "", ok, nil
}
func (f fakeUserLookup) FindNameByID(context.Context, dbx.Querier, string) (string, error) {
	return "", nil
}
func (f fakeUserLookup) ActiveUserCount(context.Context, dbx.Querier, string) (int, error) {
	return 0, nil
}
func (f fakeUserLookup) CreateOwner(context.Context, dbx.Querier, string, string, string, string) (string, error) {
	return "owner-1", nil
}

func newTestTenantService(occupancy int) (*Service, *fakePlanStore) {
	plans := &fakePlanStore{bySlug: map[string]*Plan{
		"gratuito": {ID: "plan-free", Slug: "gratuito", Price: 0, UserLimit: 1, DocumentLimit: 5},
		"basico":   {ID: "plan-basic", Slug: "basico", Price: 49.9, UserLimit: 3, DocumentLimit: 50},
	}}
	store := Store{
		Tenants: newFakeTenantStore(), Plans: plans,
		Members: fakeMemberStore{occupancy: occupancy, byTenant: map[string]*Member{}}, Settings: fakeSettingsStore{},
	}
	users := fakeUserLookup{registered: map[string]string{"signer@example.com": "user-2"}}
	svc := NewService(store, users, nil, "https://front.example.com")
	return svc, plans
}

func TestSlugifyCollapsesNonAlphanumerics(t *testing.T) {
	if got := slugify("Acme & Co. LTDA"); got != "acme-co-ltda" {
		t.Fatalf("got %q", got)
	}
}

func TestProvisionPersonalTenantRetriesOnCollision(t *testing.T) {
	svc, _ := newTestTenantService(0)
	ts := svc.store.Tenants.(*fakeTenantStore)
	ts.bySlug["acme"] = true

	id, err := svc.ProvisionPersonalTenant(context.Background(), nil, "Acme", "gratuito")
	if err != nil {
		t.Fatalf("ProvisionPersonalTenant: %v", err)
	}
	got := ts.byID[id]
	if got.Slug == "acme" {
		t.Fatal("expected a suffixed slug on collision")
	}
}

func TestInviteMemberRejectsAtUserLimit(t *testing.T) {
	svc, _ := newTestTenantService(3) // at limit for basico (userLimit=3)
	ts := svc.store.Tenants.(*fakeTenantStore)
	ts.byID["tenant-1"] = &Tenant{ID: "tenant-1", PlanID: "plan-basic", SubscriptionStatus: SubscriptionActive}

	err := svc.InviteMember(context.Background(), nil, InviteMemberInput{
		CurrentTenantID: "tenant-1", Email: "signer@example.com", Role: MemberViewer,
	})
	if !apperr.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestInviteMemberRejectsUnregisteredEmail(t *testing.T) {
	svc, _ := newTestTenantService(0)
	ts := svc.store.Tenants.(*fakeTenantStore)
	ts.byID["tenant-1"] = &Tenant{ID: "tenant-1", PlanID: "plan-basic", SubscriptionStatus: SubscriptionActive}

	err := svc.InviteMember(context.Background(), nil, InviteMemberInput{
		CurrentTenantID: "tenant-1", Email: "nobody@example.com", Role: MemberViewer,
	})
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
