package signer

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/otp"
)

type fakeSignerStore struct{ byID map[string]*Signer }

func (f fakeSignerStore) Create(_ context.Context, _ dbx.Querier, s *Signer) error {
	f.byID[s.ID] = s
	return nil
}
func (f fakeSignerStore) FindByID(_ context.Context, _ dbx.Querier, id string) (*Signer, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}
func (f fakeSignerStore) Update(_ context.Context, _ dbx.Querier, s *Signer) error {
	f.byID[s.ID] = s
	return nil
}
func (f fakeSignerStore) ListByDocument(_ context.Context, _ dbx.Querier, documentID string) ([]Signer, error) {
	var out []Signer
	for _, s := range f.byID {
		if s.DocumentID == documentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeShareTokenStore struct{ byHash map[string]*ShareToken }

func (f fakeShareTokenStore) Create(_ context.Context, _ dbx.Querier, t *ShareToken) error {
	f.byHash[t.TokenHash] = t
	return nil
}
func (f fakeShareTokenStore) FindByTokenHash(_ context.Context, _ dbx.Querier, hash string) (*ShareToken, error) {
	t, ok := f.byHash[hash]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return t, nil
}
func (f fakeShareTokenStore) IncrementUsage(_ context.Context, _ dbx.Querier, id string) error {
	return nil
}

type fakeDocLookup struct{ byID map[string]*document.Document }

func (f fakeDocLookup) GetUnscoped(_ context.Context, _ dbx.Querier, id string) (*document.Document, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}

type fakeOtpStore struct{ byID map[string]*otp.Code }

func (f fakeOtpStore) Create(_ context.Context, _ dbx.Querier, c *otp.Code) error {
	f.byID[c.ID] = c
	return nil
}
func (f fakeOtpStore) FindLatest(_ context.Context, _ dbx.Querier, recipients []string, ctx otp.Context) (*otp.Code, error) {
	var latest *otp.Code
	for _, c := range f.byID {
		if c.Context != ctx {
			continue
		}
		for _, r := range recipients {
			if c.Recipient == r && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
				latest = c
			}
		}
	}
	return latest, nil
}
func (f fakeOtpStore) IncrementAttempts(_ context.Context, _ dbx.Querier, id string) error {
	if c, ok := f.byID[id]; ok {
		c.Attempts++
	}
	return nil
}
func (f fakeOtpStore) Delete(_ context.Context, _ dbx.Querier, id string) error {
	delete(f.byID, id)
	return nil
}

func newTestSignerService(t *testing.T) (*Service, *fakeSignerStore, *fakeShareTokenStore, *fakeOtpStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	signers := fakeSignerStore{byID: map[string]*Signer{}}
	tokens := fakeShareTokenStore{byHash: map[string]*ShareToken{}}
	docs := fakeDocLookup{byID: map[string]*document.Document{}}
	otps := fakeOtpStore{byID: map[string]*otp.Code{}}
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(Store{Signers: signers, ShareTokens: tokens}, docs, otps, nil, audit.New(func() time.Time { return fixed }))
	return svc, &signers, &tokens, &otps, mock, db
}

func TestResolveTokenRejectsUnknownToken(t *testing.T) {
	svc, _, _, _, _, db := newTestSignerService(t)
	_, err := svc.ResolveToken(context.Background(), db, "nonexistent")
	if err != ErrInvalidLink {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}
}

func TestResolveTokenRejectsExpired(t *testing.T) {
	svc, signers, tokens, _, _, db := newTestSignerService(t)
	sg := &Signer{ID: "signer-1", DocumentID: "doc-1", Status: StatusPending}
	signers.byID[sg.ID] = sg
	raw, hash, _ := crypto.MintShareToken()
	tokens.byHash[hash] = &ShareToken{ID: "tok-1", DocumentID: "doc-1", SignerID: sg.ID, ExpiresAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), TokenHash: hash}

	_, err := svc.ResolveToken(context.Background(), db, raw)
	if err != ErrExpiredLink {
		t.Fatalf("expected ErrExpiredLink, got %v", err)
	}
}

func TestResolveTokenRejectsClosedSigner(t *testing.T) {
	svc, signers, tokens, _, _, db := newTestSignerService(t)
	sg := &Signer{ID: "signer-1", DocumentID: "doc-1", Status: StatusSigned}
	signers.byID[sg.ID] = sg
	raw, hash, _ := crypto.MintShareToken()
	tokens.byHash[hash] = &ShareToken{ID: "tok-1", DocumentID: "doc-1", SignerID: sg.ID, ExpiresAt: time.Now().Add(time.Hour), TokenHash: hash}

	_, err := svc.ResolveToken(context.Background(), db, raw)
	if !apperr.Is(err, apperr.ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed, got %v", err)
	}
}

func TestSummaryFlipsPendingToViewedOnce(t *testing.T) {
	svc, signers, _, _, mock, db := newTestSignerService(t)
	sg := &Signer{ID: "signer-1", DocumentID: "doc-1", Status: StatusPending}
	signers.byID[sg.ID] = sg
	resolved := Resolved{Signer: *sg, DocumentID: "doc-1", TenantID: "tenant-1"}

	got, err := svc.Summary(context.Background(), db, resolved, "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if got.Status != StatusViewed {
		t.Fatalf("expected VIEWED, got %s", got.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestVerifyOtpRejectsMismatch(t *testing.T) {
	svc, signers, _, otps, mock, db := newTestSignerService(t)
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	sg := &Signer{ID: "signer-1", DocumentID: "doc-1", Email: "signer@example.com", Status: StatusViewed}
	signers.byID[sg.ID] = sg
	hash, _ := crypto.HashSecret("123456")
	otps.byID["code-1"] = &otp.Code{ID: "code-1", Recipient: sg.Email, Context: otp.ContextSigning, CodeHash: hash, ExpiresAt: time.Now().Add(time.Minute), CreatedAt: time.Now()}
	resolved := Resolved{Signer: *sg, DocumentID: "doc-1", TenantID: "tenant-1"}

	err := svc.VerifyOtp(context.Background(), db, resolved, "000000", "1.2.3.4", "ua")
	if err != ErrOtpInvalid {
		t.Fatalf("expected ErrOtpInvalid, got %v", err)
	}
}

func TestVerifyOtpSucceedsAndDeletesCode(t *testing.T) {
	svc, signers, _, otps, mock, db := newTestSignerService(t)
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	sg := &Signer{ID: "signer-1", DocumentID: "doc-1", Email: "signer@example.com", Status: StatusViewed}
	signers.byID[sg.ID] = sg
	hash, _ := crypto.HashSecret("123456")
	otps.byID["code-1"] = &otp.Code{ID: "code-1", Recipient: sg.Email, Context: otp.ContextSigning, CodeHash: hash, ExpiresAt: time.Now().Add(time.Minute), CreatedAt: time.Now()}
	resolved := Resolved{Signer: *sg, DocumentID: "doc-1", TenantID: "tenant-1"}

	if err := svc.VerifyOtp(context.Background(), db, resolved, "123456", "1.2.3.4", "ua"); err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if _, ok := otps.byID["code-1"]; ok {
		t.Fatal("expected otp code to be deleted after successful verify")
	}
}

func TestIdentifyRejectsShortCPF(t *testing.T) {
	svc, _, _, _, _, _ := newTestSignerService(t)
	sg := &Signer{ID: "signer-1"}
	err := svc.Identify(context.Background(), nil, sg, IdentifyInput{CPF: "123"})
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
