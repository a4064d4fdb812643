package signing

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/notify"
	"signflow.dev/internal/pdfstamp"
	"signflow.dev/internal/signer"
)

type fakeSigningSignerStore struct{ byID map[string]*signer.Signer }

func (f fakeSigningSignerStore) Create(context.Context, dbx.Querier, *signer.Signer) error {
	return nil
}
func (f fakeSigningSignerStore) FindByID(_ context.Context, _ dbx.Querier, id string) (*signer.Signer, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}
func (f fakeSigningSignerStore) Update(_ context.Context, _ dbx.Querier, s *signer.Signer) error {
	f.byID[s.ID] = s
	return nil
}
func (f fakeSigningSignerStore) ListByDocument(_ context.Context, _ dbx.Querier, documentID string) ([]signer.Signer, error) {
	var out []signer.Signer
	for _, s := range f.byID {
		if s.DocumentID == documentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeFinalizer struct {
	byID     map[string]*document.Document
	files    map[string][]byte
	locked   bool
}

func (f *fakeFinalizer) GetUnscoped(_ context.Context, _ dbx.Querier, id string) (*document.Document, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}
func (f *fakeFinalizer) LockForFinalization(_ context.Context, _ dbx.Querier, id string) (*document.Document, error) {
	f.locked = true
	return f.byID[id], nil
}
func (f *fakeFinalizer) FinalizeSigned(_ context.Context, _ dbx.Querier, d *document.Document, newKey, newSHA256, actorID string) error {
	d.StorageKey = newKey
	d.SHA256 = newSHA256
	d.Status = document.StatusSigned
	f.byID[d.ID] = d
	return nil
}
func (f *fakeFinalizer) ReadFile(key string) ([]byte, error) { return f.files[key], nil }
func (f *fakeFinalizer) WriteFile(key string, data []byte) error {
	f.files[key] = data
	return nil
}

type fakeCertStore struct{ byDoc map[string]*Certificate }

func (f fakeCertStore) Create(_ context.Context, _ dbx.Querier, c *Certificate) error {
	f.byDoc[c.DocumentID] = c
	return nil
}
func (f fakeCertStore) FindByDocumentID(_ context.Context, _ dbx.Querier, documentID string) (*Certificate, error) {
	c, ok := f.byDoc[documentID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return c, nil
}

type fakeOwnerContact struct{}

func (fakeOwnerContact) FindNameAndEmailByID(context.Context, dbx.Querier, string) (string, string, error) {
	return "Alice Owner", "alice@example.com", nil
}

type fakeNotifier struct{ sent int }

func (f *fakeNotifier) SendEmail(context.Context, string, notify.Email) error { f.sent++; return nil }
func (f *fakeNotifier) SendWhatsAppText(context.Context, string, string, string) error {
	return nil
}

const pngDataURI = "data:image/png;base64,iVBORw0KGgo="

func newTestSigningService(t *testing.T, signers map[string]*signer.Signer, doc *document.Document) (*Service, *fakeFinalizer, *fakeCertStore, *fakeNotifier, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	finalizer := &fakeFinalizer{byID: map[string]*document.Document{doc.ID: doc}, files: map[string][]byte{doc.StorageKey: []byte("%PDF-1.4 original")}}
	certs := fakeCertStore{byDoc: map[string]*Certificate{}}
	notifier := &fakeNotifier{}
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(fakeSigningSignerStore{byID: signers}, finalizer, certs, fakeOwnerContact{}, audit.New(func() time.Time { return fixed }), pdfstamp.NewBuiltinStamper(), notifier, nil, "https://app.example.com")
	return svc, finalizer, &certs, notifier, mock, db
}

func TestCommitPartialSignReturnsIncomplete(t *testing.T) {
	doc := &document.Document{ID: "doc-1", TenantID: "tenant-1", StorageKey: "tenant-1/doc-1.pdf", SHA256: "deadbeef", Status: document.StatusReady}
	signers := map[string]*signer.Signer{
		"signer-1": {ID: "signer-1", DocumentID: "doc-1", Name: "A", Email: "a@example.com", Status: signer.StatusViewed},
		"signer-2": {ID: "signer-2", DocumentID: "doc-1", Name: "B", Email: "b@example.com", Status: signer.StatusPending},
	}
	svc, _, _, notifier, mock, db := newTestSigningService(t, signers, doc)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := svc.Commit(context.Background(), db, CommitInput{
		DocumentID: "doc-1", SignerID: "signer-1", ClientFingerprint: "fp", SignatureImageBase64: pngDataURI, IP: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if result.IsComplete {
		t.Fatal("expected incomplete commit while other signer is pending")
	}
	if notifier.sent != 0 {
		t.Fatal("expected no notifications on partial commit")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestCommitLastSignerFinalizes(t *testing.T) {
	doc := &document.Document{ID: "doc-1", TenantID: "tenant-1", OwnerID: "owner-1", Title: "Contract", StorageKey: "tenant-1/doc-1.pdf", SHA256: "deadbeef", Status: document.StatusPartiallySigned}
	signers := map[string]*signer.Signer{
		"signer-1": {ID: "signer-1", DocumentID: "doc-1", Name: "A", Email: "a@example.com", Status: signer.StatusViewed},
		"signer-2": {ID: "signer-2", DocumentID: "doc-1", Name: "B", Email: "b@example.com", Status: signer.StatusSigned},
	}
	svc, finalizer, certs, notifier, mock, db := newTestSigningService(t, signers, doc)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := svc.Commit(context.Background(), db, CommitInput{
		DocumentID: "doc-1", SignerID: "signer-1", ClientFingerprint: "fp", SignatureImageBase64: pngDataURI, IP: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !result.IsComplete {
		t.Fatal("expected complete commit when all signers signed")
	}
	if !finalizer.locked {
		t.Fatal("expected LockForFinalization to be called")
	}
	if finalizer.byID["doc-1"].Status != document.StatusSigned {
		t.Fatalf("expected document status SIGNED, got %s", finalizer.byID["doc-1"].Status)
	}
	if _, ok := certs.byDoc["doc-1"]; !ok {
		t.Fatal("expected a certificate to be issued")
	}
	if notifier.sent == 0 {
		t.Fatal("expected completion emails to be sent")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestCommitRejectsNonCommittableSigner(t *testing.T) {
	doc := &document.Document{ID: "doc-1", TenantID: "tenant-1", StorageKey: "tenant-1/doc-1.pdf", Status: document.StatusReady}
	signers := map[string]*signer.Signer{
		"signer-1": {ID: "signer-1", DocumentID: "doc-1", Status: signer.StatusSigned},
	}
	svc, _, _, _, mock, db := newTestSigningService(t, signers, doc)
	mock.ExpectBegin()

	_, err := svc.Commit(context.Background(), db, CommitInput{
		DocumentID: "doc-1", SignerID: "signer-1", SignatureImageBase64: pngDataURI,
	})
	if !apperr.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
