// Package quota implements the subscription and plan-limit gate (C6),
// invoked before a document upload and before a member invite. It is pure
// and has no dependency on internal/tenant: callers fetch the plan/tenant/
// occupancy values and pass the primitive fields in, so this package never
// touches the database and never needs to import the package that imports it.
package quota

import (
	"fmt"

	"signflow.dev/internal/apperr"
)

// ErrSubscriptionIrregular and friends are apperr.ErrForbidden, distinguished
// only by their wrapped message - the spec's taxonomy has no separate
// sentinel per limit, all three map to 403.
var (
	ErrSubscriptionIrregular = fmt.Errorf("%w: subscription irregular", apperr.ErrForbidden)
	ErrUserLimit             = fmt.Errorf("%w: tenant user limit reached", apperr.ErrForbidden)
	ErrDocumentLimit         = fmt.Errorf("%w: tenant document limit reached", apperr.ErrForbidden)
)

// irregular subscription statuses, mirrored from tenant.SubscriptionStatus
// as plain strings to avoid importing internal/tenant (which imports this
// package for the gate functions below - a two-way edge would be a cycle).
const (
	subscriptionOverdue  = "OVERDUE"
	subscriptionCanceled = "CANCELED"
)

// CheckSubscription enforces the paid-plan subscription gate. Super-admins
// bypass this check; they do not bypass the limit checks below.
func CheckSubscription(planPrice float64, subscriptionStatus string, isSuperAdmin bool) error {
	if isSuperAdmin || planPrice <= 0 {
		return nil
	}
	if subscriptionStatus == subscriptionOverdue || subscriptionStatus == subscriptionCanceled {
		return ErrSubscriptionIrregular
	}
	return nil
}

// CheckInvitePreconditions runs the full §4.6 gate for member invitation.
func CheckInvitePreconditions(planPrice float64, userLimit int, subscriptionStatus string, occupancy int, isSuperAdmin bool) error {
	if err := CheckSubscription(planPrice, subscriptionStatus, isSuperAdmin); err != nil {
		return err
	}
	if occupancy >= userLimit {
		return ErrUserLimit
	}
	return nil
}

// CheckUploadPreconditions runs the full §4.6 gate for document upload.
func CheckUploadPreconditions(planPrice float64, documentLimit int, subscriptionStatus string, documentCount int, isSuperAdmin bool) error {
	if err := CheckSubscription(planPrice, subscriptionStatus, isSuperAdmin); err != nil {
		return err
	}
	if documentCount >= documentLimit {
		return ErrDocumentLimit
	}
	return nil
}
