package signer

import (
	"context"

	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
)

// SignerStore persists Signer rows.
type SignerStore interface {
	Create(ctx context.Context, q dbx.Querier, s *Signer) error
	FindByID(ctx context.Context, q dbx.Querier, id string) (*Signer, error)
	Update(ctx context.Context, q dbx.Querier, s *Signer) error
	ListByDocument(ctx context.Context, q dbx.Querier, documentID string) ([]Signer, error)
}

// ShareTokenStore persists ShareToken rows.
type ShareTokenStore interface {
	Create(ctx context.Context, q dbx.Querier, t *ShareToken) error
	FindByTokenHash(ctx context.Context, q dbx.Querier, tokenHash string) (*ShareToken, error)
	IncrementUsage(ctx context.Context, q dbx.Querier, id string) error
}

// DocumentLookup is the narrow slice of internal/document that signer needs
// to resolve a share token's document without the document package needing
// to know signer exists.
type DocumentLookup interface {
	GetUnscoped(ctx context.Context, q dbx.Querier, documentID string) (*document.Document, error)
}

// Store aggregates the sub-stores signer depends on.
type Store struct {
	Signers     SignerStore
	ShareTokens ShareTokenStore
}
