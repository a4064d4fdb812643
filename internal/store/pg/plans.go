package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/tenant"
)

// Plans implements tenant.PlanStore.
type Plans struct{}

const planSelect = `select id, slug, price, user_limit, document_limit, features, created_at, updated_at from plans`

func scanPlan(row *sql.Row) (*tenant.Plan, error) {
	var p tenant.Plan
	var features []byte
	err := row.Scan(&p.ID, &p.Slug, &p.Price, &p.UserLimit, &p.DocumentLimit, &features, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(features, &p.Features)
	return &p, nil
}

func (Plans) FindBySlug(ctx context.Context, q dbx.Querier, slug string) (*tenant.Plan, error) {
	return scanPlan(q.QueryRowContext(ctx, planSelect+` where slug = $1`, slug))
}

func (Plans) FindByID(ctx context.Context, q dbx.Querier, id string) (*tenant.Plan, error) {
	return scanPlan(q.QueryRowContext(ctx, planSelect+` where id = $1`, id))
}

func (Plans) List(ctx context.Context, q dbx.Querier) ([]tenant.Plan, error) {
	rows, err := q.QueryContext(ctx, planSelect+` order by price asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Plan
	for rows.Next() {
		var p tenant.Plan
		var features []byte
		if err := rows.Scan(&p.ID, &p.Slug, &p.Price, &p.UserLimit, &p.DocumentLimit, &features, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(features, &p.Features)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (Plans) Update(ctx context.Context, q dbx.Querier, p *tenant.Plan) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		update plans set price=$2, user_limit=$3, document_limit=$4, features=$5, updated_at=$6
		where id = $1
	`, p.ID, p.Price, p.UserLimit, p.DocumentLimit, features, p.UpdatedAt)
	return err
}
