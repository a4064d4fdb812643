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

// Tenants implements tenant.TenantStore.
type Tenants struct{}

func (Tenants) Create(ctx context.Context, q dbx.Querier, t *tenant.Tenant) error {
	_, err := q.ExecContext(ctx, `
		insert into tenants (id, display_name, slug, status, plan_id, asaas_customer_id, asaas_subscription_id, subscription_status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),nullif($8,''),$9,$10)
	`, t.ID, t.DisplayName, t.Slug, string(t.Status), t.PlanID, t.AsaasCustomerID, t.AsaasSubscriptionID, string(t.SubscriptionStatus), t.CreatedAt, t.UpdatedAt)
	return err
}

func (Tenants) FindByID(ctx context.Context, q dbx.Querier, id string) (*tenant.Tenant, error) {
	row := q.QueryRowContext(ctx, `
		select id, display_name, slug, status, plan_id, coalesce(asaas_customer_id,''), coalesce(asaas_subscription_id,''), coalesce(subscription_status,''), created_at, updated_at
		from tenants where id = $1
	`, id)
	var t tenant.Tenant
	var status, subStatus string
	err := row.Scan(&t.ID, &t.DisplayName, &t.Slug, &status, &t.PlanID, &t.AsaasCustomerID, &t.AsaasSubscriptionID, &subStatus, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Status, t.SubscriptionStatus = tenant.Status(status), tenant.SubscriptionStatus(subStatus)
	return &t, nil
}

func (Tenants) SlugExists(ctx context.Context, q dbx.Querier, slug string) (bool, error) {
	return exists(ctx, q, `select 1 from tenants where slug = $1`, slug)
}

func (Tenants) Update(ctx context.Context, q dbx.Querier, t *tenant.Tenant) error {
	_, err := q.ExecContext(ctx, `
		update tenants set display_name=$2, slug=$3, status=$4, plan_id=$5,
			asaas_customer_id=nullif($6,''), asaas_subscription_id=nullif($7,''),
			subscription_status=nullif($8,''), updated_at=$9
		where id = $1
	`, t.ID, t.DisplayName, t.Slug, string(t.Status), t.PlanID, t.AsaasCustomerID, t.AsaasSubscriptionID, string(t.SubscriptionStatus), t.UpdatedAt)
	return err
}
