package authx

import "signflow.dev/internal/apperr"

// RoleGuard passes if the principal is SUPER_ADMIN or holds one of allowed.
func RoleGuard(p Principal, allowed ...Role) error {
	if p.HasAnyRole(allowed...) {
		return nil
	}
	return apperr.ErrForbidden
}

// SuperAdminGuard passes only for the unrestricted global role.
func SuperAdminGuard(p Principal) error {
	if p.IsSuperAdmin() {
		return nil
	}
	return apperr.ErrForbidden
}
