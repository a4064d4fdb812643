// Package tenant implements the isolation boundary and its membership model
// (C4): tenants, the plan catalog, and invitations into non-personal
// tenants.
package tenant

import "time"

// Status is a tenant's lifecycle state. Tenants are never deleted in-core.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusInactive   Status = "INACTIVE"
	StatusSuspended  Status = "SUSPENDED"
)

// SubscriptionStatus mirrors the payment gateway's view of a paid plan.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = ""
	SubscriptionPending  SubscriptionStatus = "PENDING"
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionOverdue  SubscriptionStatus = "OVERDUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Tenant is the isolation boundary every other entity is scoped to.
type Tenant struct {
	ID                   string
	DisplayName          string
	Slug                 string
	Status               Status
	PlanID               string
	AsaasCustomerID      string
	AsaasSubscriptionID  string
	SubscriptionStatus   SubscriptionStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Plan is a catalog row, seeded once and mutable only by a super-admin.
type Plan struct {
	ID            string
	Slug          string
	Price         float64
	UserLimit     int
	DocumentLimit int
	Features      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MemberRole is a non-personal tenant member's role.
type MemberRole string

const (
	MemberAdmin   MemberRole = "ADMIN"
	MemberManager MemberRole = "MANAGER"
	MemberViewer  MemberRole = "VIEWER"
)

// MemberStatus is an invitation's progress.
type MemberStatus string

const (
	MemberPending  MemberStatus = "PENDING"
	MemberActive   MemberStatus = "ACTIVE"
	MemberDeclined MemberStatus = "DECLINED"
)

// Member is a user's membership in a non-personal tenant.
type Member struct {
	ID         string
	TenantID   string
	UserID     string
	Email      string
	Role       MemberRole
	Status     MemberStatus
	InvitedAt  time.Time
}

// Settings is per-tenant notification & branding configuration.
type Settings struct {
	TenantID           string
	AppName            string
	PrimaryColor       string
	LogoURL            string
	ZapiInstanceID     string
	ZapiToken          string
	ZapiClientToken    string
	ZapiActive         bool
	ResendAPIKey       string
	ResendActive       bool
	FinalEmailTemplate string
}

// MyTenant is one row of "list my tenants": either the user's own personal
// tenant or a non-personal tenant they are an ACTIVE member of.
type MyTenant struct {
	TenantID   string
	Name       string
	Role       MemberRole
	IsPersonal bool
}
