package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/tenant"
)

// Members implements tenant.MemberStore.
type Members struct{}

const memberSelect = `select id, tenant_id, coalesce(user_id,''), email, role, status, invited_at from tenant_members`

func scanMember(row *sql.Row) (*tenant.Member, error) {
	var m tenant.Member
	var role, status string
	err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Email, &role, &status, &m.InvitedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant member", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m.Role, m.Status = tenant.MemberRole(role), tenant.MemberStatus(status)
	return &m, nil
}

func scanMembers(rows *sql.Rows) ([]tenant.Member, error) {
	defer rows.Close()
	var out []tenant.Member
	for rows.Next() {
		var m tenant.Member
		var role, status string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Email, &role, &status, &m.InvitedAt); err != nil {
			return nil, err
		}
		m.Role, m.Status = tenant.MemberRole(role), tenant.MemberStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (Members) Upsert(ctx context.Context, q dbx.Querier, m *tenant.Member) error {
	_, err := q.ExecContext(ctx, `
		insert into tenant_members (id, tenant_id, user_id, email, role, status, invited_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7)
		on conflict (tenant_id, email) do update set
			user_id = nullif(excluded.user_id, ''), role = excluded.role, status = excluded.status
	`, m.ID, m.TenantID, m.UserID, m.Email, string(m.Role), string(m.Status), m.InvitedAt)
	return err
}

func (Members) FindByTenantAndEmail(ctx context.Context, q dbx.Querier, tenantID, email string) (*tenant.Member, error) {
	return scanMember(q.QueryRowContext(ctx, memberSelect+` where tenant_id = $1 and email = $2`, tenantID, email))
}

func (Members) ActiveByUser(ctx context.Context, q dbx.Querier, userID string) ([]tenant.Member, error) {
	rows, err := q.QueryContext(ctx, memberSelect+` where user_id = $1 and status = 'ACTIVE'`, userID)
	if err != nil {
		return nil, err
	}
	return scanMembers(rows)
}

func (Members) PendingByUserOrEmail(ctx context.Context, q dbx.Querier, userID, email string) ([]tenant.Member, error) {
	rows, err := q.QueryContext(ctx, memberSelect+` where status = 'PENDING' and (user_id = $1 or email = $2)`, userID, email)
	if err != nil {
		return nil, err
	}
	return scanMembers(rows)
}

func (Members) FindByID(ctx context.Context, q dbx.Querier, id string) (*tenant.Member, error) {
	return scanMember(q.QueryRowContext(ctx, memberSelect+` where id = $1`, id))
}

func (Members) SetStatus(ctx context.Context, q dbx.Querier, id string, status tenant.MemberStatus, userID string) error {
	_, err := q.ExecContext(ctx, `
		update tenant_members set status = $2, user_id = coalesce(nullif($3,''), user_id) where id = $1
	`, id, string(status), userID)
	return err
}

func (Members) CountOccupancy(ctx context.Context, q dbx.Querier, tenantID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `select count(*) from tenant_members where tenant_id = $1 and status != 'DECLINED'`, tenantID).Scan(&n)
	return n, err
}

func (Members) ActiveRole(ctx context.Context, q dbx.Querier, tenantID, userID string) (tenant.MemberRole, bool, error) {
	var role string
	err := q.QueryRowContext(ctx, `
		select role from tenant_members where tenant_id = $1 and user_id = $2 and status = 'ACTIVE'
	`, tenantID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tenant.MemberRole(role), true, nil
}
