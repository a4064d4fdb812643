// Package document implements the Document Store (C7): upload, the status
// machine, folders, listing, stats, and the public integrity re-check.
package document

import "time"

// Status is a Document's lifecycle state, per §4.7's transition diagram.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusReady            Status = "READY"
	StatusPartiallySigned  Status = "PARTIALLY_SIGNED"
	StatusSigned           Status = "SIGNED"
	StatusExpired          Status = "EXPIRED"
	StatusCancelled        Status = "CANCELLED"
)

// Pending is the set of statuses considered "awaiting signatures" for
// listing and the scheduler hook.
func (s Status) Pending() bool { return s == StatusReady || s == StatusPartiallySigned }

// Document is an uploaded artifact.
type Document struct {
	ID            string
	TenantID      string
	OwnerID       string
	FolderID      string
	Title         string
	StorageKey    string
	MimeType      string
	Size          int64
	SHA256        string
	DeadlineAt    *time.Time
	AutoReminders bool
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Folder groups documents within a tenant.
type Folder struct {
	ID        string
	TenantID  string
	ParentID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UploadInput is the payload for Upload.
type UploadInput struct {
	TenantID      string
	OwnerID       string
	FolderID      string
	Title         string
	OriginalName  string
	MimeType      string
	Bytes         []byte
	DeadlineAt    *time.Time
	AutoReminders bool
	IsSuperAdmin  bool
}

// ListFilter is the §4.7 Listing keyword.
type ListFilter string

const (
	ListDefault   ListFilter = ""
	ListPending   ListFilter = "pendentes"
	ListCompleted ListFilter = "concluidos"
	ListTrash     ListFilter = "lixeira"
)

// Stats is the §4.7 Stats payload.
type Stats struct {
	CountPending int
	CountSigned  int
	CountExpired int
	CountDraft   int
	CountTotal   int
	TotalBytes   int64
	Recent       []RecentDocument
}

// RecentDocument is one of the five most-recently-updated documents
// surfaced by Stats, carrying the owner's display name.
type RecentDocument struct {
	Document
	OwnerName string
}

// ValidationReason explains a failed ValidateBuffer call.
type ValidationReason string

const (
	ReasonNotFound  ValidationReason = "NOT_FOUND"
	ReasonNotSigned ValidationReason = "NOT_SIGNED"
)

// ValidationResult is the public integrity re-check response.
type ValidationResult struct {
	Valid          bool
	Reason         ValidationReason
	HashCalculated string
	Title          string
	SignedAt       *time.Time
	OwnerName      string
	Signers        []SignerSummary
}

// SignerSummary is the per-signer projection inside ValidationResult. The
// concrete signer data lives in internal/signer; this is the narrow slice
// document needs, supplied by the caller through SignerLookup.
type SignerSummary struct {
	Name     string
	Email    string
	Status   string
	SignedAt *time.Time
}
