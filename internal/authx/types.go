// Package authx implements identity, sessions, and the two authorization
// gates (C3, C5): registration, login, refresh rotation, tenant switching,
// password reset, and the authenticate/roleGuard/superAdminGuard checks
// every mutating HTTP handler sits behind.
package authx

import "time"

// Role is a user's privilege level, either global (SUPER_ADMIN) or scoped to
// the tenant carried in the current credential.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleViewer     Role = "VIEWER"
	RoleUser       Role = "USER"
)

// Status is a user account's standing.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
)

// User is a person who can authenticate. TenantID is the user's own/personal
// tenant - the *active* tenant for a given request comes from the bearer
// credential, not this field (see Principal).
type User struct {
	ID           string
	TenantID     string
	Name         string
	Email        string
	CPF          string
	PhoneE164    string
	PasswordHash string
	Role         Role
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public strips the password hash for any response or log line that carries
// a user outward - the "UserWithoutSecrets" projection.
type Public struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CPF       string    `json:"cpf,omitempty"`
	PhoneE164 string    `json:"phoneE164,omitempty"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToPublic projects u into its client-safe representation.
func (u User) ToPublic() Public {
	return Public{
		ID: u.ID, TenantID: u.TenantID, Name: u.Name, Email: u.Email,
		CPF: u.CPF, PhoneE164: u.PhoneE164, Role: u.Role, Status: u.Status,
		CreatedAt: u.CreatedAt,
	}
}

// Session is a persisted refresh credential; deleted on rotation or logout.
type Session struct {
	ID               string
	UserID           string
	TenantID         string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Principal is the request-scoped identity produced by Authenticate. Its
// TenantID and Role come from the bearer credential, not the persisted User
// row - this is what makes tenant switching observable without a DB write.
type Principal struct {
	UserID   string
	Email    string
	TenantID string
	Role     Role
}

// IsSuperAdmin reports whether the principal holds the unrestricted role.
func (p Principal) IsSuperAdmin() bool { return p.Role == RoleSuperAdmin }

// HasAnyRole reports whether p.Role is SUPER_ADMIN or one of allowed.
func (p Principal) HasAnyRole(allowed ...Role) bool {
	if p.Role == RoleSuperAdmin {
		return true
	}
	for _, r := range allowed {
		if p.Role == r {
			return true
		}
	}
	return false
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	CPF       string
	PhoneE164 string
}

// LoginInput is the payload for Login.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// Credentials is the pair of bearer tokens issued by Register/Login/Refresh/
// SwitchTenant.
type Credentials struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
