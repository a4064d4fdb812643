package pg

import (
	"context"

	"signflow.dev/internal/authx"
	"signflow.dev/internal/dbx"
)

// Sessions implements authx.SessionStore. The sessions table has no
// tenant_id column (it is not part of the ownership key, only userId is),
// so Session.TenantID is populated by joining users on read.
type Sessions struct{}

func (Sessions) Create(ctx context.Context, q dbx.Querier, s *authx.Session) error {
	_, err := q.ExecContext(ctx, `
		insert into sessions (id, user_id, refresh_token_hash, expires_at, created_at)
		values ($1,$2,$3,$4,$5)
	`, s.ID, s.UserID, s.RefreshTokenHash, s.ExpiresAt, s.CreatedAt)
	return err
}

func (Sessions) ListByUser(ctx context.Context, q dbx.Querier, userID string) ([]authx.Session, error) {
	rows, err := q.QueryContext(ctx, `
		select s.id, s.user_id, u.tenant_id, s.refresh_token_hash, s.expires_at, s.created_at
		from sessions s join users u on u.id = s.user_id
		where s.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authx.Session
	for rows.Next() {
		var s authx.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.TenantID, &s.RefreshTokenHash, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (Sessions) Delete(ctx context.Context, q dbx.Querier, id string) error {
	_, err := q.ExecContext(ctx, `delete from sessions where id = $1`, id)
	return err
}
