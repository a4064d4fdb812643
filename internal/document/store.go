package document

import (
	"context"
	"time"

	"signflow.dev/internal/dbx"
)

// DocumentStore persists Document rows.
type DocumentStore interface {
	Create(ctx context.Context, q dbx.Querier, d *Document) error
	FindByID(ctx context.Context, q dbx.Querier, tenantID, id string) (*Document, error)
	FindBySHA256(ctx context.Context, q dbx.Querier, sha256Hex string) (*Document, error)
	Update(ctx context.Context, q dbx.Querier, d *Document) error
	// LockForFinalization re-selects a document row with row-locking
	// semantics ("for update"), used by internal/signing to serialize the
	// last-signer finalization race (§5 Ordering guarantees).
	LockForFinalization(ctx context.Context, q dbx.Querier, id string) (*Document, error)
	List(ctx context.Context, q dbx.Querier, tenantID string, filter ListFilter) ([]Document, error)
	CountByStatus(ctx context.Context, q dbx.Querier, tenantID string) (map[Status]int, error)
	SumSizeExcludingCancelled(ctx context.Context, q dbx.Querier, tenantID string) (int64, error)
	RecentlyUpdated(ctx context.Context, q dbx.Querier, tenantID string, limit int) ([]Document, error)
	CountByTenant(ctx context.Context, q dbx.Querier, tenantID string) (int, error)
	// DueReminders and ExpireOverdue back the C10 scheduler hook.
	DueReminders(ctx context.Context, q dbx.Querier, now, within time.Time) ([]Document, error)
	ExpireOverdue(ctx context.Context, q dbx.Querier, now time.Time) ([]Document, error)
}

// FolderStore persists Folder rows.
type FolderStore interface {
	Create(ctx context.Context, q dbx.Querier, f *Folder) error
	FindByID(ctx context.Context, q dbx.Querier, tenantID, id string) (*Folder, error)
	Update(ctx context.Context, q dbx.Querier, f *Folder) error
	Delete(ctx context.Context, q dbx.Querier, tenantID, id string) error
	List(ctx context.Context, q dbx.Querier, tenantID string) ([]Folder, error)
}

// FileStore persists document bytes under a tenant-scoped key. The built-in
// implementation (filestore.go) writes under a local uploads directory; the
// interface exists so internal/signing's finalization step and tests can
// swap it out without touching the service.
type FileStore interface {
	// Write persists data under key and returns any write error; keys are
	// relative paths, the implementation owns the root directory.
	Write(key string, data []byte) error
	Read(key string) ([]byte, error)
	Remove(key string) error
}

// OwnerLookup is the narrow slice of internal/authx/internal/tenant that
// document needs to resolve an owner's display name for Stats and
// ValidateBuffer, without importing either package directly.
type OwnerLookup interface {
	FindNameByID(ctx context.Context, q dbx.Querier, userID string) (string, error)
}

// SignerLookup is the narrow slice of internal/signer (satisfied by
// *signer.Service) that ValidateBuffer needs to project a document's signers.
type SignerLookup interface {
	SummariesByDocument(ctx context.Context, q dbx.Querier, documentID string) ([]SignerSummary, error)
}

// PlanLookup is the narrow slice of internal/tenant that Upload's quota
// gate needs: the tenant's plan price/documentLimit/subscriptionStatus.
type PlanLookup interface {
	UploadQuota(ctx context.Context, q dbx.Querier, tenantID string) (planPrice float64, documentLimit int, subscriptionStatus string, err error)
}

// Store aggregates the sub-stores document depends on.
type Store struct {
	Documents DocumentStore
	Folders   FolderStore
	Files     FileStore
}
