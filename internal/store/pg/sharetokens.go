package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/signer"
)

// ShareTokens implements signer.ShareTokenStore.
type ShareTokens struct{}

func (ShareTokens) Create(ctx context.Context, q dbx.Querier, t *signer.ShareToken) error {
	_, err := q.ExecContext(ctx, `
		insert into share_tokens (id, document_id, signer_id, token_hash, expires_at, times_used, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, t.ID, t.DocumentID, t.SignerID, t.TokenHash, t.ExpiresAt, t.TimesUsed, t.CreatedAt)
	return err
}

func (ShareTokens) FindByTokenHash(ctx context.Context, q dbx.Querier, tokenHash string) (*signer.ShareToken, error) {
	row := q.QueryRowContext(ctx, `
		select id, document_id, signer_id, token_hash, expires_at, times_used, created_at
		from share_tokens where token_hash = $1
	`, tokenHash)
	var t signer.ShareToken
	err := row.Scan(&t.ID, &t.DocumentID, &t.SignerID, &t.TokenHash, &t.ExpiresAt, &t.TimesUsed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: share token", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (ShareTokens) IncrementUsage(ctx context.Context, q dbx.Querier, id string) error {
	_, err := q.ExecContext(ctx, `update share_tokens set times_used = times_used + 1 where id = $1`, id)
	return err
}
