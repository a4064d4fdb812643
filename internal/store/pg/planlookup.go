package pg

import (
	"context"

	"signflow.dev/internal/dbx"
)

// PlanLookup implements document.PlanLookup by joining a tenant to its plan,
// giving Upload's quota gate the plan price/documentLimit and the tenant's
// current subscription status in one round trip.
type PlanLookup struct{}

func (PlanLookup) UploadQuota(ctx context.Context, q dbx.Querier, tenantID string) (planPrice float64, documentLimit int, subscriptionStatus string, err error) {
	err = q.QueryRowContext(ctx, `
		select p.price, p.document_limit, coalesce(t.subscription_status, '')
		from tenants t join plans p on p.id = t.plan_id
		where t.id = $1
	`, tenantID).Scan(&planPrice, &documentLimit, &subscriptionStatus)
	return planPrice, documentLimit, subscriptionStatus, err
}
