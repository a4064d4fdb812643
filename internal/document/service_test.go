package document

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
)

type fakeDocStore struct {
	byID     map[string]*Document
	bySHA    map[string]*Document
	tenantOf map[string][]string
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{byID: map[string]*Document{}, bySHA: map[string]*Document{}, tenantOf: map[string][]string{}}
}
func (f *fakeDocStore) Create(_ context.Context, _ dbx.Querier, d *Document) error {
	f.byID[d.ID] = d
	f.tenantOf[d.TenantID] = append(f.tenantOf[d.TenantID], d.ID)
	return nil
}
func (f *fakeDocStore) FindByID(_ context.Context, _ dbx.Querier, tenantID, id string) (*Document, error) {
	d, ok := f.byID[id]
	if !ok || d.TenantID != tenantID {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}
func (f *fakeDocStore) FindBySHA256(_ context.Context, _ dbx.Querier, sha string) (*Document, error) {
	d, ok := f.bySHA[sha]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}
func (f *fakeDocStore) Update(_ context.Context, _ dbx.Querier, d *Document) error {
	f.byID[d.ID] = d
	if d.SHA256 != "" {
		f.bySHA[d.SHA256] = d
	}
	return nil
}
func (f *fakeDocStore) LockForFinalization(ctx context.Context, q dbx.Querier, id string) (*Document, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}
func (f *fakeDocStore) List(_ context.Context, _ dbx.Querier, tenantID string, _ ListFilter) ([]Document, error) {
	var out []Document
	for _, id := range f.tenantOf[tenantID] {
		out = append(out, *f.byID[id])
	}
	return out, nil
}
func (f *fakeDocStore) CountByStatus(_ context.Context, _ dbx.Querier, tenantID string) (map[Status]int, error) {
	out := map[Status]int{}
	for _, id := range f.tenantOf[tenantID] {
		out[f.byID[id].Status]++
	}
	return out, nil
}
func (f *fakeDocStore) SumSizeExcludingCancelled(_ context.Context, _ dbx.Querier, tenantID string) (int64, error) {
	var sum int64
	for _, id := range f.tenantOf[tenantID] {
		d := f.byID[id]
		if d.Status != StatusCancelled {
			sum += d.Size
		}
	}
	return sum, nil
}
func (f *fakeDocStore) RecentlyUpdated(_ context.Context, _ dbx.Querier, tenantID string, limit int) ([]Document, error) {
	docs, _ := f.List(nil, nil, tenantID, ListDefault)
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}
func (f *fakeDocStore) CountByTenant(_ context.Context, _ dbx.Querier, tenantID string) (int, error) {
	return len(f.tenantOf[tenantID]), nil
}
func (f *fakeDocStore) DueReminders(context.Context, dbx.Querier, time.Time, time.Time) ([]Document, error) {
	return nil, nil
}
func (f *fakeDocStore) ExpireOverdue(context.Context, dbx.Querier, time.Time) ([]Document, error) {
	return nil, nil
}

type fakeFolderStore struct{ byID map[string]*Folder }

func (f fakeFolderStore) Create(_ context.Context, _ dbx.Querier, fo *Folder) error {
	f.byID[fo.ID] = fo
	return nil
}
func (f fakeFolderStore) FindByID(_ context.Context, _ dbx.Querier, tenantID, id string) (*Folder, error) {
	fo, ok := f.byID[id]
	if !ok || fo.TenantID != tenantID {
		return nil, apperr.ErrNotFound
	}
	return fo, nil
}
func (f fakeFolderStore) Update(_ context.Context, _ dbx.Querier, fo *Folder) error {
	f.byID[fo.ID] = fo
	return nil
}
func (f fakeFolderStore) Delete(_ context.Context, _ dbx.Querier, _, id string) error {
	delete(f.byID, id)
	return nil
}
func (f fakeFolderStore) List(_ context.Context, _ dbx.Querier, tenantID string) ([]Folder, error) {
	var out []Folder
	for _, fo := range f.byID {
		if fo.TenantID == tenantID {
			out = append(out, *fo)
		}
	}
	return out, nil
}

type fakeFileStore struct{ written map[string][]byte }

func (f fakeFileStore) Write(key string, data []byte) error { f.written[key] = data; return nil }
func (f fakeFileStore) Read(key string) ([]byte, error)     { return f.written[key], nil }
func (f fakeFileStore) Remove(key string) error              { delete(f.written, key); return nil }

type fakePlans struct{ price float64; limit int; sub string }

func (f fakePlans) UploadQuota(context.Context, dbx.Querier, string) (float64, int, string, error) {
	return f.price, f.limit, f.sub, nil
}

type fakeOwners struct{ names map[string]string }

func (f fakeOwners) FindNameByID(_ context.Context, _ dbx.Querier, userID string) (string, error) {
	return f.names[userID], nil
}

func newTestService(t *testing.T, planLimit int) (*Service, *fakeDocStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	docs := newFakeDocStore()
	store := Store{
		Documents: docs,
		Folders:   fakeFolderStore{byID: map[string]*Folder{}},
		Files:     fakeFileStore{written: map[string][]byte{}},
	}
	plans := fakePlans{price: 49.9, limit: planLimit, sub: "ACTIVE"}
	owners := fakeOwners{names: map[string]string{"owner-1": "Alice Owner"}}
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, plans, owners, nil, audit.New(func() time.Time { return fixed }))
	return svc, docs, mock, db
}

func TestUploadFinalizesToReadyAndComputesSHA256(t *testing.T) {
	svc, docs, mock, db := newTestService(t, 10)
	doc, err := svc.Upload(context.Background(), db, UploadInput{
		TenantID: "tenant-1", OwnerID: "owner-1", OriginalName: "contract.pdf",
		MimeType: "application/pdf", Bytes: []byte("%PDF-1.4 fake bytes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Status != StatusReady {
		t.Fatalf("expected status READY, got %s", doc.Status)
	}
	if doc.SHA256 == "" || doc.StorageKey == "" {
		t.Fatal("expected sha256 and storageKey to be set")
	}
	if _, ok := docs.byID[doc.ID]; !ok {
		t.Fatal("expected document to be persisted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestUploadRejectsAtDocumentLimit(t *testing.T) {
	svc, docs, _, db := newTestService(t, 1)
	docs.tenantOf["tenant-1"] = []string{"existing"}
	docs.byID["existing"] = &Document{ID: "existing", TenantID: "tenant-1", Status: StatusReady}

	_, err := svc.Upload(context.Background(), db, UploadInput{
		TenantID: "tenant-1", OwnerID: "owner-1", OriginalName: "contract.pdf", Bytes: []byte("data"),
	})
	if !apperr.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestValidateBufferReportsNotFound(t *testing.T) {
	svc, _, _, db := newTestService(t, 10)
	_ = db
	result, err := svc.ValidateBuffer(context.Background(), db, []byte("anything"))
	if err != nil {
		t.Fatalf("ValidateBuffer: %v", err)
	}
	if result.Valid || result.Reason != ReasonNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", result)
	}
}

func TestValidateBufferReportsNotSignedWhenStatusIsReady(t *testing.T) {
	svc, docs, _, db := newTestService(t, 10)
	data := []byte("document bytes")
	d := &Document{ID: "doc-1", TenantID: "tenant-1", Status: StatusReady, SHA256: crypto.Sha256Hex(data)}
	docs.byID[d.ID] = d
	docs.bySHA[d.SHA256] = d

	result, err := svc.ValidateBuffer(context.Background(), db, data)
	if err != nil {
		t.Fatalf("ValidateBuffer: %v", err)
	}
	if result.Valid || result.Reason != ReasonNotSigned {
		t.Fatalf("expected NOT_SIGNED, got %+v", result)
	}
}

func TestMoveFolderRejectsCycle(t *testing.T) {
	svc, _, _, db := newTestService(t, 10)
	_ = db
	folders := svc.store.Folders.(fakeFolderStore)
	folders.byID["a"] = &Folder{ID: "a", TenantID: "t1"}
	folders.byID["b"] = &Folder{ID: "b", TenantID: "t1", ParentID: "a"}

	err := svc.MoveFolder(context.Background(), nil, "t1", "a", "b")
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation for cycle, got %v", err)
	}
}
