// Package signer implements the Signer Session & OTP component (C8): an
// opaque share token resolves to a (document, signer) pair, the signer
// identifies itself, requests and verifies an OTP per channel, and records
// its signature position before handing off to internal/signing's commit.
package signer

import (
	"time"

	"signflow.dev/internal/otp"
)

// Status is a Signer's lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusViewed  Status = "VIEWED"
	StatusSigned  Status = "SIGNED"
	StatusDeclined Status = "DECLINED"
	StatusExpired Status = "EXPIRED"
)

// Closed reports whether a signer can no longer act on its share token.
func (s Status) Closed() bool { return s == StatusSigned || s == StatusDeclined }

// Signer is an invited signatory of one document.
type Signer struct {
	ID                    string
	DocumentID            string
	Name                  string
	Email                 string
	CPF                   string
	PhoneE164             string
	Qualification         string
	AuthChannels          []otp.Channel
	Order                 int
	Status                Status
	SignedAt              *time.Time
	IP                    string
	SignatureUUID         string
	SignatureHash         string
	SignatureArtefactPath string
	PositionX             float64
	PositionY             float64
	PositionPage          int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ShareToken is the opaque signer-authorization artifact; the random token
// itself is never persisted, only its SHA-256 digest.
type ShareToken struct {
	ID         string
	DocumentID string
	SignerID   string
	TokenHash  string
	ExpiresAt  time.Time
	TimesUsed  int
	CreatedAt  time.Time
}

// IdentifyInput is the §4.8 Identify payload.
type IdentifyInput struct {
	CPF   string
	Phone string
}

// Resolved is what ResolveToken attaches to a signer-session request.
type Resolved struct {
	Signer     Signer
	ShareToken ShareToken
	DocumentID string
	TenantID   string
}

// CommitResult has the same fields as internal/signing.CommitResult. Commit
// returns the signing package's own type; nothing in this module uses this
// one.
type CommitResult struct {
	ShortCode     string
	SignatureHash string
	IsComplete    bool
}
