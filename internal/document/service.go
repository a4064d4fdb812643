package document

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/ids"
	"signflow.dev/internal/obs"
	"signflow.dev/internal/quota"
)

const recentLimit = 5

// Service implements the Document Store (C7).
type Service struct {
	store   Store
	plans   PlanLookup
	owners  OwnerLookup
	signers SignerLookup
	chain   *audit.Chain
	now     func() time.Time
}

// NewService constructs Service. signers may be nil at construction time
// and supplied later via SetSignerLookup - internal/signer's own
// constructor takes a document.Service as its DocumentLookup, so the two
// packages cannot be wired in a single acyclic pass.
func NewService(store Store, plans PlanLookup, owners OwnerLookup, signers SignerLookup, chain *audit.Chain) *Service {
	return &Service{store: store, plans: plans, owners: owners, signers: signers, chain: chain, now: time.Now}
}

// SetSignerLookup attaches the signer lookup after both services exist.
func (s *Service) SetSignerLookup(signers SignerLookup) {
	s.signers = signers
}

// Upload runs the §4.6 quota gate then the §4.7 upload sequence: insert the
// Document row, write the bytes, compute the fingerprint, finalize to READY,
// all in one transaction; the temp write itself happens before the DB work
// commits so a failure after it can be cleaned up.
func (s *Service) Upload(ctx context.Context, db *sql.DB, in UploadInput) (*Document, error) {
	planPrice, docLimit, subStatus, err := s.plans.UploadQuota(ctx, db, in.TenantID)
	if err != nil {
		return nil, err
	}
	docCount, err := s.store.Documents.CountByTenant(ctx, db, in.TenantID)
	if err != nil {
		return nil, err
	}
	if err := quota.CheckUploadPreconditions(planPrice, docLimit, subStatus, docCount, in.IsSuperAdmin); err != nil {
		return nil, err
	}
	if len(in.Bytes) == 0 {
		return nil, fmt.Errorf("%w: empty upload", apperr.ErrValidation)
	}

	title := in.Title
	if title == "" {
		title = in.OriginalName
	}
	now := s.now().UTC()
	docID := ids.New()
	ext := filepath.Ext(in.OriginalName)
	storageKey := fmt.Sprintf("%s/%s%s", in.TenantID, docID, ext)

	doc := &Document{
		ID: docID, TenantID: in.TenantID, OwnerID: in.OwnerID, FolderID: in.FolderID,
		Title: title, MimeType: in.MimeType, Size: int64(len(in.Bytes)),
		DeadlineAt: in.DeadlineAt, AutoReminders: in.AutoReminders,
		Status: StatusDraft, CreatedAt: now, UpdatedAt: now,
	}

	err = dbx.RunInTx(ctx, db, sql.LevelSerializable, func(tx *sql.Tx) error {
		if in.FolderID != "" {
			if _, err := s.store.Folders.FindByID(ctx, tx, in.TenantID, in.FolderID); err != nil {
				return fmt.Errorf("%w: folder does not belong to tenant", apperr.ErrValidation)
			}
		}
		if err := s.store.Documents.Create(ctx, tx, doc); err != nil {
			return err
		}
		if err := s.store.Files.Write(storageKey, in.Bytes); err != nil {
			return err
		}
		sha := crypto.Sha256Hex(in.Bytes)
		doc.StorageKey = storageKey
		doc.SHA256 = sha
		doc.Status = StatusReady
		doc.UpdatedAt = s.now().UTC()
		if err := s.store.Documents.Update(ctx, tx, doc); err != nil {
			return err
		}
		_, err = s.chain.AppendEvent(ctx, tx, audit.AppendInput{
			TenantID: in.TenantID, ActorKind: audit.ActorUser, ActorID: in.OwnerID,
			EntityType: audit.EntityDocument, EntityID: doc.ID, Action: audit.ActionStorageUploaded,
			Payload: map[string]any{"fileName": in.OriginalName, "sha256": sha},
		})
		return err
	})
	if err != nil {
		_ = s.store.Files.Remove(storageKey)
		return nil, err
	}
	obs.DocumentsUploaded.Inc()
	return doc, nil
}

// transitionable reports whether a document's current status permits an
// owner-driven manual transition to CANCELLED or EXPIRED (§4.7 status
// machine: only READY/PARTIALLY_SIGNED can move there).
func transitionable(current Status) bool {
	return current == StatusReady || current == StatusPartiallySigned
}

// Cancel transitions a document to CANCELLED.
func (s *Service) Cancel(ctx context.Context, q dbx.Querier, tenantID, documentID, actorID string) error {
	return s.transitionTerminal(ctx, q, tenantID, documentID, actorID, StatusCancelled)
}

// Expire transitions a document to EXPIRED (owner-triggered path; the
// scheduler hook uses ExpireOverdueNow for the bulk deadline sweep).
func (s *Service) Expire(ctx context.Context, q dbx.Querier, tenantID, documentID, actorID string) error {
	return s.transitionTerminal(ctx, q, tenantID, documentID, actorID, StatusExpired)
}

func (s *Service) transitionTerminal(ctx context.Context, q dbx.Querier, tenantID, documentID, actorID string, newStatus Status) error {
	doc, err := s.store.Documents.FindByID(ctx, q, tenantID, documentID)
	if err != nil {
		return err
	}
	if !transitionable(doc.Status) {
		return fmt.Errorf("%w: document is not in a pending state", apperr.ErrConflict)
	}
	doc.Status = newStatus
	doc.UpdatedAt = s.now().UTC()
	if err := s.store.Documents.Update(ctx, q, doc); err != nil {
		return err
	}
	_, err = s.chain.AppendEvent(ctx, q, audit.AppendInput{
		TenantID: tenantID, ActorKind: audit.ActorUser, ActorID: actorID,
		EntityType: audit.EntityDocument, EntityID: documentID, Action: audit.ActionStatusChanged,
		Payload: map[string]any{"newStatus": string(newStatus)},
	})
	return err
}

// ExpireOverdueNow is the C10 scheduler hook: transition to EXPIRED every
// document with deadlineAt in the past and still pending.
func (s *Service) ExpireOverdueNow(ctx context.Context, q dbx.Querier, now time.Time) (int, error) {
	docs, err := s.store.Documents.ExpireOverdue(ctx, q, now)
	if err != nil {
		return 0, err
	}
	for _, d := range docs {
		d.Status = StatusExpired
		d.UpdatedAt = now
		if err := s.store.Documents.Update(ctx, q, &d); err != nil {
			return 0, err
		}
		if _, err := s.chain.AppendEvent(ctx, q, audit.AppendInput{
			TenantID: d.TenantID, ActorKind: audit.ActorSystem,
			EntityType: audit.EntityDocument, EntityID: d.ID, Action: audit.ActionStatusChanged,
			Payload: map[string]any{"newStatus": string(StatusExpired)},
		}); err != nil {
			return 0, err
		}
		obs.DocumentsExpired.Inc()
	}
	return len(docs), nil
}

// DueReminders is the C10 scheduler hook: documents pending, with
// autoReminders, whose deadline falls within the next 24h.
func (s *Service) DueReminders(ctx context.Context, q dbx.Querier, now time.Time) ([]Document, error) {
	return s.store.Documents.DueReminders(ctx, q, now, now.Add(24*time.Hour))
}

// List returns a tenant's documents under a §4.7 listing filter.
func (s *Service) List(ctx context.Context, q dbx.Querier, tenantID string, filter ListFilter) ([]Document, error) {
	return s.store.Documents.List(ctx, q, tenantID, filter)
}

// Get returns a single document scoped to tenantID.
func (s *Service) Get(ctx context.Context, q dbx.Querier, tenantID, documentID string) (*Document, error) {
	return s.store.Documents.FindByID(ctx, q, tenantID, documentID)
}

// GetUnscoped returns a document by id without a tenant filter, for the
// signer session flow (§4.8), which resolves a document from an opaque
// share token before any tenant context exists.
func (s *Service) GetUnscoped(ctx context.Context, q dbx.Querier, documentID string) (*Document, error) {
	return s.store.Documents.FindByID(ctx, q, "", documentID)
}

// LockForFinalization row-locks a document for the §4.9/§5 last-signer
// finalization race; callers must hold it inside a SERIALIZABLE transaction.
func (s *Service) LockForFinalization(ctx context.Context, q dbx.Querier, documentID string) (*Document, error) {
	return s.store.Documents.LockForFinalization(ctx, q, documentID)
}

// ReadFile returns the bytes stored at a document's current storage key.
func (s *Service) ReadFile(key string) ([]byte, error) {
	return s.store.Files.Read(key)
}

// WriteFile persists bytes under key using the configured FileStore.
func (s *Service) WriteFile(key string, data []byte) error {
	return s.store.Files.Write(key, data)
}

// FinalizeSigned applies the §4.9 step 8.e document-side update: a new
// storage key, a new sha256, and the SIGNED status, appending the
// STATUS_CHANGED audit event in the same transaction. Callers (internal/
// signing) are responsible for the row lock and the "status != SIGNED yet"
// guard before calling this.
func (s *Service) FinalizeSigned(ctx context.Context, q dbx.Querier, d *Document, newStorageKey, newSHA256, actorID string) error {
	d.StorageKey = newStorageKey
	d.SHA256 = newSHA256
	d.Status = StatusSigned
	d.UpdatedAt = s.now()
	if err := s.store.Documents.Update(ctx, q, d); err != nil {
		return err
	}
	_, err := s.chain.AppendEvent(ctx, q, audit.AppendInput{
		TenantID:   d.TenantID,
		ActorKind:  audit.ActorSystem,
		ActorID:    actorID,
		EntityType: audit.EntityDocument,
		EntityID:   d.ID,
		Action:     audit.ActionStatusChanged,
		Payload:    map[string]any{"newStatus": string(StatusSigned), "newSha256": newSHA256},
	})
	return err
}

// Stats computes the §4.7 Stats payload.
func (s *Service) Stats(ctx context.Context, q dbx.Querier, tenantID string) (*Stats, error) {
	counts, err := s.store.Documents.CountByStatus(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Documents.SumSizeExcludingCancelled(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.Documents.RecentlyUpdated(ctx, q, tenantID, recentLimit)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		CountPending: counts[StatusReady] + counts[StatusPartiallySigned],
		CountSigned:  counts[StatusSigned],
		CountExpired: counts[StatusExpired],
		CountDraft:   counts[StatusDraft],
		TotalBytes:   total,
	}
	for status, n := range counts {
		if status != StatusCancelled {
			stats.CountTotal += n
		}
	}
	for _, d := range recent {
		name, err := s.owners.FindNameByID(ctx, q, d.OwnerID)
		if err != nil {
			name = ""
		}
		stats.Recent = append(stats.Recent, RecentDocument{Document: d, OwnerName: name})
	}
	return stats, nil
}

// ValidateBuffer is the public integrity re-check (§4.7).
func (s *Service) ValidateBuffer(ctx context.Context, q dbx.Querier, data []byte) (*ValidationResult, error) {
	hash := crypto.Sha256Hex(data)
	doc, err := s.store.Documents.FindBySHA256(ctx, q, hash)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return &ValidationResult{Valid: false, Reason: ReasonNotFound, HashCalculated: hash}, nil
		}
		return nil, err
	}
	if doc.Status != StatusSigned {
		return &ValidationResult{Valid: false, Reason: ReasonNotSigned, HashCalculated: hash}, nil
	}
	ownerName, _ := s.owners.FindNameByID(ctx, q, doc.OwnerID)
	var signers []SignerSummary
	if s.signers != nil {
		signers, _ = s.signers.SummariesByDocument(ctx, q, doc.ID)
	}
	return &ValidationResult{
		Valid: true, HashCalculated: hash, Title: doc.Title,
		SignedAt: &doc.UpdatedAt, OwnerName: ownerName, Signers: signers,
	}, nil
}

// CreateFolder inserts a Folder, validating the parent (if any) belongs to
// the tenant and that the result does not introduce a cycle.
func (s *Service) CreateFolder(ctx context.Context, q dbx.Querier, tenantID, parentID, name string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is required", apperr.ErrValidation)
	}
	if parentID != "" {
		if _, err := s.store.Folders.FindByID(ctx, q, tenantID, parentID); err != nil {
			return nil, fmt.Errorf("%w: parent folder not found", apperr.ErrValidation)
		}
	}
	now := s.now().UTC()
	f := &Folder{ID: ids.New(), TenantID: tenantID, ParentID: parentID, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Folders.Create(ctx, q, f); err != nil {
		return nil, err
	}
	return f, nil
}

// MoveFolder reparents a folder, rejecting moves that would create a cycle
// (a folder becoming its own ancestor).
func (s *Service) MoveFolder(ctx context.Context, q dbx.Querier, tenantID, folderID, newParentID string) error {
	if folderID == newParentID {
		return fmt.Errorf("%w: a folder cannot be its own parent", apperr.ErrValidation)
	}
	f, err := s.store.Folders.FindByID(ctx, q, tenantID, folderID)
	if err != nil {
		return err
	}
	if newParentID != "" {
		all, err := s.store.Folders.List(ctx, q, tenantID)
		if err != nil {
			return err
		}
		byID := make(map[string]Folder, len(all))
		for _, fl := range all {
			byID[fl.ID] = fl
		}
		for cursor := newParentID; cursor != ""; {
			if cursor == folderID {
				return fmt.Errorf("%w: move would create a folder cycle", apperr.ErrValidation)
			}
			next, ok := byID[cursor]
			if !ok {
				break
			}
			cursor = next.ParentID
		}
	}
	f.ParentID = newParentID
	f.UpdatedAt = s.now().UTC()
	return s.store.Folders.Update(ctx, q, f)
}

// ListFolders returns every folder in the tenant.
func (s *Service) ListFolders(ctx context.Context, q dbx.Querier, tenantID string) ([]Folder, error) {
	return s.store.Folders.List(ctx, q, tenantID)
}

// DeleteFolder removes an empty folder.
func (s *Service) DeleteFolder(ctx context.Context, q dbx.Querier, tenantID, folderID string) error {
	return s.store.Folders.Delete(ctx, q, tenantID, folderID)
}
