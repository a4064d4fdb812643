package authx

import (
	"context"

	"signflow.dev/internal/dbx"
	"signflow.dev/internal/otp"
)

// UserStore persists User rows. Every method takes an explicit Querier so
// callers control whether it runs standalone or inside a transaction.
type UserStore interface {
	Create(ctx context.Context, q dbx.Querier, u *User) error
	FindByID(ctx context.Context, q dbx.Querier, id string) (*User, error)
	FindByEmail(ctx context.Context, q dbx.Querier, email string) (*User, error)
	EmailInUse(ctx context.Context, q dbx.Querier, email string) (bool, error)
	CPFInUse(ctx context.Context, q dbx.Querier, cpf string) (bool, error)
	UpdatePasswordHash(ctx context.Context, q dbx.Querier, userID, hash string) error
}

// SessionStore persists refresh Session rows.
type SessionStore interface {
	Create(ctx context.Context, q dbx.Querier, s *Session) error
	ListByUser(ctx context.Context, q dbx.Querier, userID string) ([]Session, error)
	Delete(ctx context.Context, q dbx.Querier, id string) error
}

// TenantProvisioner is the narrow slice of internal/tenant that Register
// needs: creating a fresh tenant row atomically with the rest of the
// registration row set. The owning User is created by Register itself.
type TenantProvisioner interface {
	ProvisionPersonalTenant(ctx context.Context, q dbx.Querier, displayName, planSlug string) (tenantID string, err error)
}

// Store aggregates the sub-stores authx depends on.
type Store struct {
	Users    UserStore
	Sessions SessionStore
	OTP      otp.Store
}
