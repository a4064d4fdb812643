package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"signflow.dev/internal/dbx"
	"signflow.dev/internal/otp"
)

// OTP implements otp.Store, shared by password reset (C3) and signer
// verification (C8).
type OTP struct{}

func (OTP) Create(ctx context.Context, q dbx.Querier, c *otp.Code) error {
	_, err := q.ExecContext(ctx, `
		insert into otp_codes (id, recipient, channel, code_hash, expires_at, attempts, context, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Recipient, string(c.Channel), c.CodeHash, c.ExpiresAt, c.Attempts, string(c.Context), c.CreatedAt)
	return err
}

func (OTP) FindLatest(ctx context.Context, q dbx.Querier, recipients []string, otpCtx otp.Context) (*otp.Code, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(recipients))
	args := make([]any, 0, len(recipients)+1)
	args = append(args, string(otpCtx))
	for i, r := range recipients {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, r)
	}
	query := fmt.Sprintf(`
		select id, recipient, channel, code_hash, expires_at, attempts, context, created_at
		from otp_codes
		where context = $1 and recipient in (%s)
		order by created_at desc
		limit 1
	`, strings.Join(placeholders, ","))

	var c otp.Code
	var channel, context string
	err := q.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Recipient, &channel, &c.CodeHash, &c.ExpiresAt, &c.Attempts, &context, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Channel, c.Context = otp.Channel(channel), otp.Context(context)
	return &c, nil
}

func (OTP) IncrementAttempts(ctx context.Context, q dbx.Querier, id string) error {
	_, err := q.ExecContext(ctx, `update otp_codes set attempts = attempts + 1 where id = $1`, id)
	return err
}

func (OTP) Delete(ctx context.Context, q dbx.Querier, id string) error {
	_, err := q.ExecContext(ctx, `delete from otp_codes where id = $1`, id)
	return err
}
