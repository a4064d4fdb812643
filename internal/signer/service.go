package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/ids"
	"signflow.dev/internal/notify"
	"signflow.dev/internal/obs"
	"signflow.dev/internal/otp"
)

const (
	signingOtpTTL = 10 * time.Minute
)

var closedDocumentStatuses = map[document.Status]bool{
	document.StatusCancelled: true,
	document.StatusExpired:   true,
	document.StatusSigned:    true,
}

// Service implements the Signer Session & OTP component (C8).
type Service struct {
	store    Store
	docs     DocumentLookup
	otpStore otp.Store
	notifier notify.Notifier
	chain    *audit.Chain
	now      func() time.Time
}

// NewService constructs Service.
func NewService(store Store, docs DocumentLookup, otpStore otp.Store, notifier notify.Notifier, chain *audit.Chain) *Service {
	return &Service{store: store, docs: docs, otpStore: otpStore, notifier: notifier, chain: chain, now: time.Now}
}

// ErrInvalidLink and ErrExpiredLink, together with apperr.ErrLinkClosed,
// are §4.8's resolve-token failure conditions. They wrap apperr sentinels so
// internal/httpapi can map status codes without importing this package's
// internals.
var (
	ErrInvalidLink = fmt.Errorf("%w: share link not found", apperr.ErrNotFound)
	ErrExpiredLink = fmt.Errorf("%w: share link expired", apperr.ErrExpired)
)

// ResolveToken implements §4.8's middleware: raw token -> (document, signer).
func (s *Service) ResolveToken(ctx context.Context, q dbx.Querier, rawToken string) (*Resolved, error) {
	tokenHash := crypto.Sha256Hex([]byte(rawToken))
	tok, err := s.store.ShareTokens.FindByTokenHash(ctx, q, tokenHash)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidLink
		}
		return nil, err
	}
	now := s.now()
	if now.After(tok.ExpiresAt) {
		return nil, ErrExpiredLink
	}

	sg, err := s.store.Signers.FindByID(ctx, q, tok.SignerID)
	if err != nil {
		return nil, err
	}
	if sg.Status.Closed() {
		return nil, apperr.ErrLinkClosed
	}

	doc, err := s.docs.GetUnscoped(ctx, q, tok.DocumentID)
	if err != nil {
		return nil, err
	}
	if closedDocumentStatuses[doc.Status] {
		return nil, apperr.ErrLinkClosed
	}

	return &Resolved{Signer: *sg, ShareToken: *tok, DocumentID: doc.ID, TenantID: doc.TenantID}, nil
}

// Summary implements §4.8's Summary GET: the first successful resolve while
// PENDING flips the signer to VIEWED and appends a VIEWED audit event.
func (s *Service) Summary(ctx context.Context, q dbx.Querier, resolved Resolved, ip, userAgent string) (*Signer, error) {
	sg := resolved.Signer
	if sg.Status != StatusPending {
		return &sg, nil
	}
	sg.Status = StatusViewed
	sg.UpdatedAt = s.now()
	if err := s.store.Signers.Update(ctx, q, &sg); err != nil {
		return nil, err
	}
	if _, err := s.chain.AppendEvent(ctx, q, audit.AppendInput{
		TenantID:   resolved.TenantID,
		ActorKind:  audit.ActorSigner,
		ActorID:    sg.ID,
		EntityType: audit.EntityDocument,
		EntityID:   resolved.DocumentID,
		Action:     audit.ActionViewed,
		IP:         ip,
		UserAgent:  userAgent,
	}); err != nil {
		return nil, err
	}
	return &sg, nil
}

// Identify implements §4.8's Identify: stores cpf/phone on the signer row,
// with only a length check on cpf per the spec's explicit non-requirement.
func (s *Service) Identify(ctx context.Context, q dbx.Querier, sg *Signer, in IdentifyInput) error {
	if in.CPF != "" && len(strings.TrimSpace(in.CPF)) != 11 {
		return fmt.Errorf("%w: cpf must be 11 digits", apperr.ErrValidation)
	}
	if in.CPF != "" {
		sg.CPF = in.CPF
	}
	if in.Phone != "" {
		sg.PhoneE164 = in.Phone
	}
	sg.UpdatedAt = s.now()
	return s.store.Signers.Update(ctx, q, sg)
}

// StartOtp implements §4.8's Start OTP: one code per channel in
// sg.AuthChannels (EMAIL fallback when empty), fire-and-forget delivery.
func (s *Service) StartOtp(ctx context.Context, q dbx.Querier, resolved Resolved, ip, userAgent string) error {
	channels := resolved.Signer.AuthChannels
	if len(channels) == 0 {
		channels = []otp.Channel{otp.ChannelEmail}
	}

	for _, channel := range channels {
		recipient := recipientFor(resolved.Signer, channel)
		if recipient == "" {
			continue
		}
		code, err := crypto.MintOtp6()
		if err != nil {
			return err
		}
		codeHash, err := crypto.HashSecret(code)
		if err != nil {
			return err
		}
		rec := &otp.Code{
			ID:        ids.New(),
			Recipient: recipient,
			Channel:   channel,
			CodeHash:  codeHash,
			ExpiresAt: s.now().Add(signingOtpTTL),
			Context:   otp.ContextSigning,
			CreatedAt: s.now(),
		}
		if err := s.otpStore.Create(ctx, q, rec); err != nil {
			return err
		}

		go deliver(s.notifier, resolved.TenantID, recipient, channel, code)

		if _, err := s.chain.AppendEvent(ctx, q, audit.AppendInput{
			TenantID:   resolved.TenantID,
			ActorKind:  audit.ActorSigner,
			ActorID:    resolved.Signer.ID,
			EntityType: audit.EntityOTP,
			EntityID:   resolved.Signer.ID,
			Action:     audit.ActionOtpSent,
			IP:         ip,
			UserAgent:  userAgent,
			Payload:    map[string]any{"recipient": otp.MaskRecipient(recipient), "channel": string(channel)},
		}); err != nil {
			return err
		}
		obs.OtpSent.WithLabelValues(string(channel)).Inc()
	}
	return nil
}

func recipientFor(sg Signer, channel otp.Channel) string {
	switch channel {
	case otp.ChannelEmail:
		return sg.Email
	case otp.ChannelSMS, otp.ChannelWhatsApp:
		return sg.PhoneE164
	default:
		return ""
	}
}

// deliver fires off the OTP over the signer's channel, best-effort: §5
// explicitly forbids startOtp from awaiting delivery or rolling back on
// failure, so the error is only logged here, never returned.
func deliver(notifier notify.Notifier, tenantID, recipient string, channel otp.Channel, code string) {
	if notifier == nil {
		return
	}
	ctx := context.Background()
	var err error
	switch channel {
	case otp.ChannelEmail:
		err = notifier.SendEmail(ctx, tenantID, notify.Email{
			To: recipient, Subject: "Seu código de verificação",
			HTML: fmt.Sprintf("<p>Seu código é <strong>%s</strong>. Expira em 10 minutos.</p>", code),
		})
	case otp.ChannelSMS, otp.ChannelWhatsApp:
		err = notifier.SendWhatsAppText(ctx, tenantID, recipient, fmt.Sprintf("Seu código de verificação é %s", code))
	}
	if err != nil {
		obs.Error("otp delivery failed", err, map[string]any{"channel": string(channel)})
	}
}

// ErrOtpExpired and ErrOtpInvalid are §4.8's Verify OTP failure modes.
var (
	ErrOtpExpired = fmt.Errorf("%w: otp expired or not found", apperr.ErrExpired)
	ErrOtpInvalid = fmt.Errorf("%w: otp does not match", apperr.ErrInvalidCredentials)
)

// VerifyOtp implements §4.8's Verify OTP: locate the latest SIGNING code for
// this signer's email/phone, compare, delete on success (replay prevention).
func (s *Service) VerifyOtp(ctx context.Context, q dbx.Querier, resolved Resolved, submitted, ip, userAgent string) error {
	recipients := []string{resolved.Signer.Email}
	if resolved.Signer.PhoneE164 != "" {
		recipients = append(recipients, resolved.Signer.PhoneE164)
	}

	code, err := s.otpStore.FindLatest(ctx, q, recipients, otp.ContextSigning)
	if err != nil {
		return err
	}
	if code == nil || s.now().After(code.ExpiresAt) {
		s.appendOtpFailed(ctx, q, resolved, ip, userAgent, "expired")
		return ErrOtpExpired
	}

	if err := s.otpStore.IncrementAttempts(ctx, q, code.ID); err != nil {
		return err
	}

	if !crypto.VerifySecret(code.CodeHash, submitted) {
		s.appendOtpFailed(ctx, q, resolved, ip, userAgent, "mismatch")
		return ErrOtpInvalid
	}

	if err := s.otpStore.Delete(ctx, q, code.ID); err != nil {
		return err
	}
	if _, err := s.chain.AppendEvent(ctx, q, audit.AppendInput{
		TenantID:   resolved.TenantID,
		ActorKind:  audit.ActorSigner,
		ActorID:    resolved.Signer.ID,
		EntityType: audit.EntityOTP,
		EntityID:   resolved.Signer.ID,
		Action:     audit.ActionOtpVerified,
		IP:         ip,
		UserAgent:  userAgent,
	}); err != nil {
		return err
	}
	obs.OtpVerified.WithLabelValues("success").Inc()
	return nil
}

func (s *Service) appendOtpFailed(ctx context.Context, q dbx.Querier, resolved Resolved, ip, userAgent, reason string) {
	_, _ = s.chain.AppendEvent(ctx, q, audit.AppendInput{
		TenantID:   resolved.TenantID,
		ActorKind:  audit.ActorSigner,
		ActorID:    resolved.Signer.ID,
		EntityType: audit.EntityOTP,
		EntityID:   resolved.Signer.ID,
		Action:     audit.ActionOtpFailed,
		IP:         ip,
		UserAgent:  userAgent,
		Payload:    map[string]any{"reason": reason},
	})
	obs.OtpVerified.WithLabelValues("failure").Inc()
}

// SavePosition implements §4.8's "save position": a plain data-write of
// where the signature artefact should render on the page.
func (s *Service) SavePosition(ctx context.Context, q dbx.Querier, sg *Signer, x, y float64, page int) error {
	sg.PositionX, sg.PositionY, sg.PositionPage = x, y, page
	sg.UpdatedAt = s.now()
	return s.store.Signers.Update(ctx, q, sg)
}

// ListByDocument returns every signer of documentID in invitation order, for
// the document detail view and the audit-trail endpoint.
func (s *Service) ListByDocument(ctx context.Context, q dbx.Querier, documentID string) ([]Signer, error) {
	return s.store.Signers.ListByDocument(ctx, q, documentID)
}

// SummariesByDocument satisfies internal/document.SignerLookup: a narrow
// projection of this document's signers for the public integrity check.
func (s *Service) SummariesByDocument(ctx context.Context, q dbx.Querier, documentID string) ([]document.SignerSummary, error) {
	signers, err := s.store.Signers.ListByDocument(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]document.SignerSummary, 0, len(signers))
	for _, sg := range signers {
		out = append(out, document.SignerSummary{
			Name: sg.Name, Email: sg.Email, Status: string(sg.Status), SignedAt: sg.SignedAt,
		})
	}
	return out, nil
}

// CreateShareToken mints a fresh opaque token for sg and persists its hash;
// the raw token is returned once, for the caller to hand to C11 delivery.
func (s *Service) CreateShareToken(ctx context.Context, q dbx.Querier, documentID, signerID string, ttl time.Duration) (raw string, err error) {
	raw, hash, err := crypto.MintShareToken()
	if err != nil {
		return "", err
	}
	tok := &ShareToken{
		ID: ids.New(), DocumentID: documentID, SignerID: signerID,
		TokenHash: hash, ExpiresAt: s.now().Add(ttl),
	}
	if err := s.store.ShareTokens.Create(ctx, q, tok); err != nil {
		return "", err
	}
	return raw, nil
}

// CreateSigner persists a new invited signatory and its share token.
func (s *Service) CreateSigner(ctx context.Context, q dbx.Querier, documentID string, sg Signer, ttl time.Duration) (*Signer, string, error) {
	if len(sg.AuthChannels) == 0 {
		sg.AuthChannels = []otp.Channel{otp.ChannelEmail}
	}
	sg.ID = ids.New()
	sg.DocumentID = documentID
	sg.Status = StatusPending
	sg.CreatedAt, sg.UpdatedAt = s.now(), s.now()
	if err := s.store.Signers.Create(ctx, q, &sg); err != nil {
		return nil, "", err
	}
	raw, err := s.CreateShareToken(ctx, q, documentID, sg.ID, ttl)
	if err != nil {
		return nil, "", err
	}
	return &sg, raw, nil
}

// inviteShareTokenTTL bounds how long an invite link is valid before the
// signer must be re-invited.
const inviteShareTokenTTL = 30 * 24 * time.Hour

// InviteSignerInput is one entry of the §6 POST /documents/:id/invite
// payload.
type InviteSignerInput struct {
	Name          string
	Email         string
	CPF           string
	PhoneE164     string
	Qualification string
	AuthChannels  []otp.Channel
}

// InviteSigners creates one Signer + ShareToken per entry, in the order
// given, and emails each their signing link. Delivery failures are logged,
// never fatal - the signer row and token are already persisted, and
// internal/document still exposes the document for a manual re-invite.
func (s *Service) InviteSigners(ctx context.Context, q dbx.Querier, documentID, tenantID, documentTitle, publicBaseURL, message string, inputs []InviteSignerInput) ([]Signer, error) {
	out := make([]Signer, 0, len(inputs))
	for i, in := range inputs {
		sg, raw, err := s.CreateSigner(ctx, q, documentID, Signer{
			Name: in.Name, Email: in.Email, CPF: in.CPF, PhoneE164: in.PhoneE164,
			Qualification: in.Qualification, AuthChannels: in.AuthChannels, Order: i,
		}, inviteShareTokenTTL)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)

		if s.notifier == nil || sg.Email == "" {
			continue
		}
		link := fmt.Sprintf("%s/sign/%s", strings.TrimRight(publicBaseURL, "/"), raw)
		intro := message
		if intro == "" {
			intro = "Você foi convidado a assinar um documento."
		}
		html := fmt.Sprintf(`<p>%s</p><p>Documento: %q</p><p>Acesse: %s</p>`, intro, documentTitle, link)
		if err := s.notifier.SendEmail(ctx, tenantID, notify.Email{
			To: sg.Email, Subject: fmt.Sprintf("Assinatura pendente: %s", documentTitle), HTML: html,
		}); err != nil {
			obs.Error("invite delivery failed", err, map[string]any{"documentId": documentID, "signer": sg.Email})
		}
	}
	return out, nil
}
