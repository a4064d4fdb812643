package signing

import (
	"context"

	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
)

// CertificateStore persists Certificate rows. DocumentID is unique.
type CertificateStore interface {
	Create(ctx context.Context, q dbx.Querier, c *Certificate) error
	FindByDocumentID(ctx context.Context, q dbx.Querier, documentID string) (*Certificate, error)
}

// DocumentFinalizer is the narrow slice of internal/document.Service that
// the finalization sub-protocol needs: resolve the document without tenant
// scoping, row-lock it for the last-signer race, read/write its bytes, and
// apply the SIGNED transition. Satisfied by *document.Service.
type DocumentFinalizer interface {
	GetUnscoped(ctx context.Context, q dbx.Querier, documentID string) (*document.Document, error)
	LockForFinalization(ctx context.Context, q dbx.Querier, documentID string) (*document.Document, error)
	FinalizeSigned(ctx context.Context, q dbx.Querier, d *document.Document, newStorageKey, newSHA256, actorID string) error
	ReadFile(key string) ([]byte, error)
	WriteFile(key string, data []byte) error
}

// OwnerContactLookup resolves the document owner's name/email for the
// completion fan-out, the one field internal/document.OwnerLookup doesn't
// carry.
type OwnerContactLookup interface {
	FindNameAndEmailByID(ctx context.Context, q dbx.Querier, userID string) (name, email string, err error)
}
