// Package notify implements the notification adapter (C11): the two wire
// shapes the core calls (sendEmail, sendWhatsAppText), per-tenant credential
// resolution with a process-wide fallback, E.164 phone normalization, and
// the completion-email template substitution contract.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"signflow.dev/internal/otp"
)

// TenantSettings is the narrow slice of internal/tenant.Settings this
// package needs to resolve per-tenant channel credentials.
type TenantSettings struct {
	ZapiInstanceID     string
	ZapiToken          string
	ZapiClientToken    string
	ZapiActive         bool
	ResendAPIKey       string
	ResendActive       bool
	FinalEmailTemplate string
}

// SettingsLookup resolves a tenant's notification settings.
type SettingsLookup interface {
	GetSettings(ctx context.Context, tenantID string) (TenantSettings, error)
}

// ProcessCredentials are the process-wide fallback credentials read from
// config when a tenant has no active channel of its own.
type ProcessCredentials struct {
	ResendAPIKey   string
	ResendFrom     string
	ZapiInstanceID string
	ZapiToken      string
	ZapiClientTok  string
}

// Email is the payload for SendEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Notifier is the only shape the core calls - sendEmail/sendWhatsAppText.
type Notifier interface {
	SendEmail(ctx context.Context, tenantID string, msg Email) error
	SendWhatsAppText(ctx context.Context, tenantID, phone, message string) error
}

// HTTPNotifier is the built-in Notifier: it speaks to Resend (email) and
// Z-API (WhatsApp) over plain HTTP, grounded on the teacher's own
// http.Client-with-timeout usage pattern rather than vendoring either
// provider's SDK - neither appears in the example corpus, and the spec
// itself names "SMTP/WhatsApp provider SDKs" as an external collaborator
// the core never imports directly.
type HTTPNotifier struct {
	settings SettingsLookup
	fallback ProcessCredentials
	client   *http.Client
}

const defaultTimeout = 8 * time.Second

// NewHTTPNotifier constructs HTTPNotifier.
func NewHTTPNotifier(settings SettingsLookup, fallback ProcessCredentials) *HTTPNotifier {
	return &HTTPNotifier{settings: settings, fallback: fallback, client: &http.Client{Timeout: defaultTimeout}}
}

// SendEmail delivers msg via Resend, using the tenant's key if active, else
// the process-wide fallback. Delivery failures are never fatal to the
// caller's transaction (§5: "delivery errors are logged and audited but
// never roll back") - SendEmail still returns the error so the caller can
// log it, but callers must not roll back on it.
func (n *HTTPNotifier) SendEmail(ctx context.Context, tenantID string, msg Email) error {
	apiKey, from := n.fallback.ResendAPIKey, n.fallback.ResendFrom
	if n.settings != nil {
		if s, err := n.settings.GetSettings(ctx, tenantID); err == nil && s.ResendActive && s.ResendAPIKey != "" {
			apiKey = s.ResendAPIKey
		}
	}
	if apiKey == "" {
		return fmt.Errorf("notify: no resend credentials configured for tenant %s", tenantID)
	}

	body, err := json.Marshal(map[string]any{
		"from": from, "to": []string{msg.To}, "subject": msg.Subject, "html": msg.HTML,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: resend responded %d", resp.StatusCode)
	}
	return nil
}

// SendWhatsAppText delivers message to phone via Z-API, after normalizing
// phone to E.164-digits.
func (n *HTTPNotifier) SendWhatsAppText(ctx context.Context, tenantID, phone, message string) error {
	instanceID, token, clientToken := n.fallback.ZapiInstanceID, n.fallback.ZapiToken, n.fallback.ZapiClientTok
	if n.settings != nil {
		if s, err := n.settings.GetSettings(ctx, tenantID); err == nil && s.ZapiActive && s.ZapiInstanceID != "" {
			instanceID, token, clientToken = s.ZapiInstanceID, s.ZapiToken, s.ZapiClientToken
		}
	}
	if instanceID == "" || token == "" {
		return fmt.Errorf("notify: no zapi credentials configured for tenant %s", tenantID)
	}

	url := fmt.Sprintf("https://api.z-api.io/instances/%s/token/%s/send-text", instanceID, token)
	body, err := json.Marshal(map[string]any{"phone": NormalizePhoneE164(phone), "message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if clientToken != "" {
		req.Header.Set("Client-Token", clientToken)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: zapi responded %d", resp.StatusCode)
	}
	return nil
}

var nonDigit = regexp.MustCompile(`[^0-9]+`)

// NormalizePhoneE164 strips non-digits and prepends 55 (Brazil) when the
// remaining digit count is 10 or 11, per §4.11.
func NormalizePhoneE164(raw string) string {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) == 10 || len(digits) == 11 {
		return "55" + digits
	}
	return digits
}

const defaultCompletionTemplate = `<p>Olá {{signer_name}},</p>
<p>O documento "{{doc_title}}" foi assinado por todos os signatários.</p>
<p>Acesse: {{doc_link}}</p>
<p>ID do documento: {{doc_id}}</p>`

// CompletionEmailSubstitutions is the §4.11 literal-token substitution set.
type CompletionEmailSubstitutions struct {
	SignerName string
	DocTitle   string
	DocLink    string
	DocID      string
}

// RenderCompletionEmail applies the global string-replace substitution to
// template (or the built-in fallback if template is empty).
func RenderCompletionEmail(template string, subs CompletionEmailSubstitutions) string {
	if strings.TrimSpace(template) == "" {
		template = defaultCompletionTemplate
	}
	replacer := strings.NewReplacer(
		"{{signer_name}}", subs.SignerName,
		"{{doc_title}}", subs.DocTitle,
		"{{doc_link}}", subs.DocLink,
		"{{doc_id}}", subs.DocID,
	)
	return replacer.Replace(template)
}

// SendInvite satisfies internal/tenant's InviteNotifier: a plain onboarding
// email carrying the invitation link, sent through the same Resend path as
// everything else this package delivers.
func (n *HTTPNotifier) SendInvite(ctx context.Context, tenantID, email, onboardingLink string) error {
	return n.SendEmail(ctx, tenantID, Email{
		To:      email,
		Subject: "Você foi convidado para assinar documentos",
		HTML:    fmt.Sprintf(`<p>Você foi convidado a se juntar a um espaço de trabalho.</p><p>Acesse: %s</p>`, onboardingLink),
	})
}

// SendOTP satisfies internal/authx's PasswordResetNotifier and internal/otp
// callers that need a one-time code delivered over an arbitrary channel:
// email goes through Resend, SMS/WhatsApp through the Z-API text path.
func (n *HTTPNotifier) SendOTP(ctx context.Context, tenantID, recipient string, channel otp.Channel, code string) error {
	switch channel {
	case otp.ChannelWhatsApp, otp.ChannelSMS:
		return n.SendWhatsAppText(ctx, tenantID, recipient, fmt.Sprintf("Seu código de verificação é %s", code))
	default:
		return n.SendEmail(ctx, tenantID, Email{
			To:      recipient,
			Subject: "Seu código de verificação",
			HTML:    fmt.Sprintf(`<p>Seu código de verificação é <strong>%s</strong></p>`, code),
		})
	}
}
