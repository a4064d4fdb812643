package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/signing"
)

// Certificates implements signing.CertificateStore.
type Certificates struct{}

func (Certificates) Create(ctx context.Context, q dbx.Querier, c *signing.Certificate) error {
	_, err := q.ExecContext(ctx, `
		insert into certificates (id, document_id, storage_key, sha256, issued_at)
		values ($1,$2,$3,$4,$5)
	`, c.ID, c.DocumentID, c.StorageKey, c.SHA256, c.IssuedAt)
	return err
}

func (Certificates) FindByDocumentID(ctx context.Context, q dbx.Querier, documentID string) (*signing.Certificate, error) {
	row := q.QueryRowContext(ctx, `
		select id, document_id, storage_key, sha256, issued_at from certificates where document_id = $1
	`, documentID)
	var c signing.Certificate
	err := row.Scan(&c.ID, &c.DocumentID, &c.StorageKey, &c.SHA256, &c.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: certificate", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
