package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
)

// Folders implements document.FolderStore.
type Folders struct{}

const folderSelect = `
	select id, tenant_id, coalesce(parent_id,''), name, created_at, updated_at
	from folders`

func (Folders) Create(ctx context.Context, q dbx.Querier, f *document.Folder) error {
	_, err := q.ExecContext(ctx, `
		insert into folders (id, tenant_id, parent_id, name, created_at, updated_at)
		values ($1,$2,nullif($3,''),$4,$5,$6)
	`, f.ID, f.TenantID, f.ParentID, f.Name, f.CreatedAt, f.UpdatedAt)
	return err
}

func (Folders) FindByID(ctx context.Context, q dbx.Querier, tenantID, id string) (*document.Folder, error) {
	row := q.QueryRowContext(ctx, folderSelect+` where tenant_id = $1 and id = $2`, tenantID, id)
	var f document.Folder
	err := row.Scan(&f.ID, &f.TenantID, &f.ParentID, &f.Name, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: folder", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (Folders) Update(ctx context.Context, q dbx.Querier, f *document.Folder) error {
	_, err := q.ExecContext(ctx, `
		update folders set name = $3, parent_id = nullif($4,''), updated_at = $5
		where tenant_id = $1 and id = $2
	`, f.TenantID, f.ID, f.Name, f.ParentID, f.UpdatedAt)
	return err
}

func (Folders) Delete(ctx context.Context, q dbx.Querier, tenantID, id string) error {
	_, err := q.ExecContext(ctx, `delete from folders where tenant_id = $1 and id = $2`, tenantID, id)
	return err
}

func (Folders) List(ctx context.Context, q dbx.Querier, tenantID string) ([]document.Folder, error) {
	rows, err := q.QueryContext(ctx, folderSelect+` where tenant_id = $1 order by name asc`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []document.Folder
	for rows.Next() {
		var f document.Folder
		if err := rows.Scan(&f.ID, &f.TenantID, &f.ParentID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
