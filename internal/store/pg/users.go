package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/authx"
	"signflow.dev/internal/dbx"
)

// Users implements authx.UserStore.
type Users struct{}

func (Users) Create(ctx context.Context, q dbx.Querier, u *authx.User) error {
	_, err := q.ExecContext(ctx, `
		insert into users (id, tenant_id, name, email, cpf, phone_e164, password_hash, role, status, created_at, updated_at)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7,$8,$9,$10,$11)
	`, u.ID, u.TenantID, u.Name, u.Email, u.CPF, u.PhoneE164, u.PasswordHash, string(u.Role), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

func (Users) FindByID(ctx context.Context, q dbx.Querier, id string) (*authx.User, error) {
	return scanUser(q.QueryRowContext(ctx, userSelect+` where id = $1`, id))
}

func (Users) FindByEmail(ctx context.Context, q dbx.Querier, email string) (*authx.User, error) {
	return scanUser(q.QueryRowContext(ctx, userSelect+` where email = $1`, email))
}

func (Users) EmailInUse(ctx context.Context, q dbx.Querier, email string) (bool, error) {
	return exists(ctx, q, `select 1 from users where email = $1`, email)
}

func (Users) CPFInUse(ctx context.Context, q dbx.Querier, cpf string) (bool, error) {
	return exists(ctx, q, `select 1 from users where cpf = $1`, cpf)
}

func (Users) UpdatePasswordHash(ctx context.Context, q dbx.Querier, userID, hash string) error {
	_, err := q.ExecContext(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, userID, hash)
	return err
}

// FindNameByID and FindNameAndEmailByID satisfy the narrow lookup ports
// internal/document and internal/signing need, without either package
// importing internal/authx directly.
func (Users) FindNameByID(ctx context.Context, q dbx.Querier, userID string) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, `select name from users where id = $1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (Users) FindNameAndEmailByID(ctx context.Context, q dbx.Querier, userID string) (string, string, error) {
	var name, email string
	err := q.QueryRowContext(ctx, `select name, email from users where id = $1`, userID).Scan(&name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	return name, email, err
}

// ActiveUserCount and CreateOwner satisfy internal/tenant.UserLookup.
func (Users) ActiveUserCount(ctx context.Context, q dbx.Querier, tenantID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `select count(*) from users where tenant_id = $1 and status = 'ACTIVE'`, tenantID).Scan(&n)
	return n, err
}

func (u Users) CreateOwner(ctx context.Context, q dbx.Querier, tenantID, name, email, passwordHash string) (string, error) {
	id := newID()
	now := nowUTC()
	owner := &authx.User{
		ID: id, TenantID: tenantID, Name: name, Email: email, PasswordHash: passwordHash,
		Role: authx.RoleAdmin, Status: authx.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
	if err := u.Create(ctx, q, owner); err != nil {
		return "", err
	}
	return id, nil
}

// TenantUsers implements internal/tenant.UserLookup. It is a distinct type
// from Users because tenant.UserLookup.FindByEmail's shape (userID, name,
// found, err) collides by name with authx.UserStore.FindByEmail (*User,
// err) - Go methods can't be overloaded on return type.
type TenantUsers struct{ Users Users }

func (t TenantUsers) FindByEmail(ctx context.Context, q dbx.Querier, email string) (string, string, bool, error) {
	var id, name string
	err := q.QueryRowContext(ctx, `select id, name from users where email = $1`, email).Scan(&id, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return id, name, true, nil
}

func (t TenantUsers) FindNameByID(ctx context.Context, q dbx.Querier, userID string) (string, error) {
	return t.Users.FindNameByID(ctx, q, userID)
}

func (t TenantUsers) ActiveUserCount(ctx context.Context, q dbx.Querier, tenantID string) (int, error) {
	return t.Users.ActiveUserCount(ctx, q, tenantID)
}

func (t TenantUsers) CreateOwner(ctx context.Context, q dbx.Querier, tenantID, name, email, passwordHash string) (string, error) {
	return t.Users.CreateOwner(ctx, q, tenantID, name, email, passwordHash)
}

const userSelect = `select id, tenant_id, name, email, coalesce(cpf,''), coalesce(phone_e164,''), password_hash, role, status, created_at, updated_at from users`

func scanUser(row *sql.Row) (*authx.User, error) {
	var u authx.User
	var role, status string
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.CPF, &u.PhoneE164, &u.PasswordHash, &role, &status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.Role, u.Status = authx.Role(role), authx.Status(status)
	return &u, nil
}

func exists(ctx context.Context, q dbx.Querier, query string, arg any) (bool, error) {
	var dummy int
	err := q.QueryRowContext(ctx, query, arg).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
