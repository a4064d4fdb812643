package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
)

// Documents implements document.DocumentStore.
type Documents struct{}

const documentSelect = `
	select id, tenant_id, owner_id, coalesce(folder_id,''), title,
		coalesce(storage_key,''), coalesce(mime_type,''), coalesce(size,0), coalesce(sha256,''),
		deadline_at, auto_reminders, status, created_at, updated_at
	from documents`

func scanDocument(row *sql.Row) (*document.Document, error) {
	var d document.Document
	var status string
	err := row.Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.FolderID, &d.Title,
		&d.StorageKey, &d.MimeType, &d.Size, &d.SHA256,
		&d.DeadlineAt, &d.AutoReminders, &status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.Status = document.Status(status)
	return &d, nil
}

func scanDocumentRows(rows *sql.Rows) ([]document.Document, error) {
	defer rows.Close()
	var out []document.Document
	for rows.Next() {
		var d document.Document
		var status string
		if err := rows.Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.FolderID, &d.Title,
			&d.StorageKey, &d.MimeType, &d.Size, &d.SHA256,
			&d.DeadlineAt, &d.AutoReminders, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Status = document.Status(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (Documents) Create(ctx context.Context, q dbx.Querier, d *document.Document) error {
	_, err := q.ExecContext(ctx, `
		insert into documents (id, tenant_id, owner_id, folder_id, title, storage_key, mime_type, size, sha256,
			deadline_at, auto_reminders, status, created_at, updated_at)
		values ($1,$2,$3,nullif($4,''),$5,nullif($6,''),nullif($7,''),nullif($8,0),nullif($9,''),$10,$11,$12,$13,$14)
	`, d.ID, d.TenantID, d.OwnerID, d.FolderID, d.Title, d.StorageKey, d.MimeType, d.Size, d.SHA256,
		d.DeadlineAt, d.AutoReminders, string(d.Status), d.CreatedAt, d.UpdatedAt)
	return err
}

func (Documents) FindByID(ctx context.Context, q dbx.Querier, tenantID, id string) (*document.Document, error) {
	if tenantID == "" {
		return scanDocument(q.QueryRowContext(ctx, documentSelect+` where id = $1`, id))
	}
	return scanDocument(q.QueryRowContext(ctx, documentSelect+` where tenant_id = $1 and id = $2`, tenantID, id))
}

func (Documents) FindBySHA256(ctx context.Context, q dbx.Querier, sha256Hex string) (*document.Document, error) {
	return scanDocument(q.QueryRowContext(ctx, documentSelect+` where sha256 = $1`, sha256Hex))
}

func (Documents) Update(ctx context.Context, q dbx.Querier, d *document.Document) error {
	_, err := q.ExecContext(ctx, `
		update documents set owner_id=$3, folder_id=nullif($4,''), title=$5, storage_key=nullif($6,''),
			mime_type=nullif($7,''), size=nullif($8,0), sha256=nullif($9,''),
			deadline_at=$10, auto_reminders=$11, status=$12, updated_at=$13
		where tenant_id = $1 and id = $2
	`, d.TenantID, d.ID, d.OwnerID, d.FolderID, d.Title, d.StorageKey, d.MimeType, d.Size, d.SHA256,
		d.DeadlineAt, d.AutoReminders, string(d.Status), d.UpdatedAt)
	return err
}

// LockForFinalization row-locks the document for the last-signer
// finalization race (§5 Ordering guarantees); q must be a *sql.Tx opened at
// sql.LevelSerializable.
func (Documents) LockForFinalization(ctx context.Context, q dbx.Querier, id string) (*document.Document, error) {
	return scanDocument(q.QueryRowContext(ctx, documentSelect+` where id = $1 for update`, id))
}

func (Documents) List(ctx context.Context, q dbx.Querier, tenantID string, filter document.ListFilter) ([]document.Document, error) {
	query := documentSelect + ` where tenant_id = $1`
	switch filter {
	case document.ListPending:
		query += ` and status in ('READY', 'PARTIALLY_SIGNED')`
	case document.ListCompleted:
		query += ` and status = 'SIGNED'`
	case document.ListTrash:
		query += ` and status = 'CANCELLED'`
	default:
		query += ` and status != 'CANCELLED'`
	}
	query += ` order by updated_at desc`

	rows, err := q.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	return scanDocumentRows(rows)
}

func (Documents) CountByStatus(ctx context.Context, q dbx.Querier, tenantID string) (map[document.Status]int, error) {
	rows, err := q.QueryContext(ctx, `
		select status, count(*) from documents where tenant_id = $1 group by status
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[document.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[document.Status(status)] = n
	}
	return out, rows.Err()
}

func (Documents) SumSizeExcludingCancelled(ctx context.Context, q dbx.Querier, tenantID string) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, `
		select coalesce(sum(size), 0) from documents where tenant_id = $1 and status != 'CANCELLED'
	`, tenantID).Scan(&total)
	return total, err
}

func (Documents) RecentlyUpdated(ctx context.Context, q dbx.Querier, tenantID string, limit int) ([]document.Document, error) {
	rows, err := q.QueryContext(ctx, documentSelect+`
		where tenant_id = $1 and status != 'CANCELLED' order by updated_at desc limit $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return scanDocumentRows(rows)
}

func (Documents) CountByTenant(ctx context.Context, q dbx.Querier, tenantID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		select count(*) from documents where tenant_id = $1 and status != 'CANCELLED'
	`, tenantID).Scan(&n)
	return n, err
}

// DueReminders returns pending documents with a deadline between now and
// now+within, backing the C10 scheduler's reminder sweep.
func (Documents) DueReminders(ctx context.Context, q dbx.Querier, now, within time.Time) ([]document.Document, error) {
	rows, err := q.QueryContext(ctx, documentSelect+`
		where status in ('READY', 'PARTIALLY_SIGNED') and auto_reminders = true
			and deadline_at is not null and deadline_at between $1 and $2
	`, now, within)
	if err != nil {
		return nil, err
	}
	return scanDocumentRows(rows)
}

// ExpireOverdue returns pending documents whose deadline has passed; the
// caller (document.Service) transitions each to EXPIRED.
func (Documents) ExpireOverdue(ctx context.Context, q dbx.Querier, now time.Time) ([]document.Document, error) {
	rows, err := q.QueryContext(ctx, documentSelect+`
		where status in ('READY', 'PARTIALLY_SIGNED') and deadline_at is not null and deadline_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	return scanDocumentRows(rows)
}
