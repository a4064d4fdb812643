// Package otp implements the one-time-code primitive shared by password
// reset (C3) and signer verification (C8): both contexts mint, store, and
// verify a 6-digit code against the same otp_codes table, they only differ
// in Context and expiry.
package otp

import (
	"context"
	"strings"
	"time"

	"signflow.dev/internal/dbx"
)

// Channel is how the code was delivered.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// Context scopes a code to the flow that issued it.
type Context string

const (
	ContextLogin         Context = "LOGIN"
	ContextSigning       Context = "SIGNING"
	ContextPasswordReset Context = "PASSWORD_RESET"
)

// Code is a pending one-time code row.
type Code struct {
	ID        string
	Recipient string
	Channel   Channel
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	Context   Context
	CreatedAt time.Time
}

// Store persists Code rows.
type Store interface {
	Create(ctx context.Context, q dbx.Querier, c *Code) error
	// FindLatest returns the most recently created, non-expired-agnostic row
	// for the given context whose recipient is in recipients. Callers check
	// expiry themselves so an expired-but-present row still reports
	// ErrExpired rather than ErrInvalidCredentials.
	FindLatest(ctx context.Context, q dbx.Querier, recipients []string, otpCtx Context) (*Code, error)
	IncrementAttempts(ctx context.Context, q dbx.Querier, id string) error
	Delete(ctx context.Context, q dbx.Querier, id string) error
}

// MaskRecipient returns a privacy-preserving form for audit payloads: first
// two characters, a fixed mask, and the domain (email) or last two digits
// (phone).
func MaskRecipient(recipient string) string {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ""
	}
	if at := strings.IndexByte(recipient, '@'); at > 0 {
		local, domain := recipient[:at], recipient[at:]
		if len(local) <= 2 {
			return local + "***" + domain
		}
		return local[:2] + "***" + domain
	}
	if len(recipient) <= 4 {
		return "***" + recipient
	}
	return recipient[:2] + "***" + recipient[len(recipient)-2:]
}
