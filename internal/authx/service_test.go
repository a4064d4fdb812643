package authx

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/otp"
)

type fakeUserStore struct {
	byEmail map[string]*User
	byID    map[string]*User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: map[string]*User{}, byID: map[string]*User{}}
}

func (f *fakeUserStore) Create(_ context.Context, _ dbx.Querier, u *User) error {
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
	return nil
}
func (f *fakeUserStore) FindByID(_ context.Context, _ dbx.Querier, id string) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return u, nil
}
func (f *fakeUserStore) FindByEmail(_ context.Context, _ dbx.Querier, email string) (*User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return u, nil
}
func (f *fakeUserStore) EmailInUse(_ context.Context, _ dbx.Querier, email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}
func (f *fakeUserStore) CPFInUse(context.Context, dbx.Querier, string) (bool, error) { return false, nil }
func (f *fakeUserStore) UpdatePasswordHash(_ context.Context, _ dbx.Querier, userID, hash string) error {
	f.byID[userID].PasswordHash = hash
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*Session
}

func newFakeSessionStore() *fakeSessionStore { return &fakeSessionStore{sessions: map[string]*Session{}} }

func (f *fakeSessionStore) Create(_ context.Context, _ dbx.Querier, s *Session) error {
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeSessionStore) ListByUser(_ context.Context, _ dbx.Querier, userID string) ([]Session, error) {
	var out []Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}
func (f *fakeSessionStore) Delete(_ context.Context, _ dbx.Querier, id string) error {
	delete(f.sessions, id)
	return nil
}

type fakeOTPStore struct{ codes map[string]*otp.Code }

func newFakeOTPStore() *fakeOTPStore { return &fakeOTPStore{codes: map[string]*otp.Code{}} }

func (f *fakeOTPStore) Create(_ context.Context, _ dbx.Querier, c *otp.Code) error {
	f.codes[c.ID] = c
	return nil
}
func (f *fakeOTPStore) FindLatest(_ context.Context, _ dbx.Querier, recipients []string, ctx otp.Context) (*otp.Code, error) {
	var latest *otp.Code
	for _, c := range f.codes {
		if c.Context != ctx {
			continue
		}
		for _, r := range recipients {
			if c.Recipient == r && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
				latest = c
			}
		}
	}
	return latest, nil
}
func (f *fakeOTPStore) IncrementAttempts(_ context.Context, _ dbx.Querier, id string) error {
	f.codes[id].Attempts++
	return nil
}
func (f *fakeOTPStore) Delete(_ context.Context, _ dbx.Querier, id string) error {
	delete(f.codes, id)
	return nil
}

type fakeTenantProvisioner struct{ tenantID string }

func (f fakeTenantProvisioner) ProvisionPersonalTenant(context.Context, dbx.Querier, string, string) (string, error) {
	return f.tenantID, nil
}

type fakeMembers struct{}

func (fakeMembers) ActiveMemberRole(context.Context, dbx.Querier, string, string) (string, bool, error) {
	return "", false, nil
}

func newTestService(t *testing.T) (*Service, *fakeUserStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	users := newFakeUserStore()
	store := Store{Users: users, Sessions: newFakeSessionStore(), OTP: newFakeOTPStore()}
	svc := NewService(db, store, fakeTenantProvisioner{tenantID: "tenant-1"}, fakeMembers{},
		audit.New(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
		nil, []byte("access-secret-0123456789012345678901"), []byte("refresh-secret-0123456789012345678901"))
	return svc, users, mock, func() { db.Close() }
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, users, _, cleanup := newTestService(t)
	defer cleanup()

	hash, _ := crypto.HashSecret("correct-password")
	users.byEmail["a@b.com"] = &User{ID: "u1", TenantID: "tenant-1", Email: "a@b.com", PasswordHash: hash, Role: RoleAdmin, Status: StatusActive}
	users.byID["u1"] = users.byEmail["a@b.com"]

	_, _, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "wrong"})
	if !apperr.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginSucceedsAndIssuesCredentials(t *testing.T) {
	svc, users, _, cleanup := newTestService(t)
	defer cleanup()

	hash, _ := crypto.HashSecret("correct-password")
	u := &User{ID: "u1", TenantID: "tenant-1", Email: "a@b.com", PasswordHash: hash, Role: RoleAdmin, Status: StatusActive}
	users.byEmail["a@b.com"] = u
	users.byID["u1"] = u

	creds, public, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "correct-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		t.Fatal("expected non-empty credentials")
	}
	if public.Email != "a@b.com" {
		t.Fatalf("unexpected public user: %+v", public)
	}

	principal, err := svc.Authenticate(context.Background(), creds.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.TenantID != "tenant-1" || principal.Role != RoleAdmin {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestRoleGuardAllowsSuperAdminAlways(t *testing.T) {
	p := Principal{Role: RoleSuperAdmin}
	if err := RoleGuard(p, RoleViewer); err != nil {
		t.Fatalf("expected super admin to pass any guard, got %v", err)
	}
}

func TestRoleGuardRejectsInsufficientRole(t *testing.T) {
	p := Principal{Role: RoleViewer}
	if err := RoleGuard(p, RoleAdmin, RoleManager); !apperr.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
