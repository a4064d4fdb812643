// Package signing implements the Signing Commit & Finalization component
// (C9) — the spec's hardest path: a per-signer commit that, on the last
// signer, atomically stamps the PDF, reseals the document, mints a
// completion certificate, and fans out notifications.
package signing

import "time"

// CommitInput is the §4.9 commit payload.
type CommitInput struct {
	DocumentID            string
	SignerID              string
	ClientFingerprint     string
	SignatureImageBase64  string
	IP                    string
	UserAgent             string
}

// CommitResult is what a single signer's commit returns to the caller.
type CommitResult struct {
	ShortCode     string
	SignatureHash string
	IsComplete    bool
}

// Certificate is the §3 completion artifact, unique per document.
type Certificate struct {
	ID         string
	DocumentID string
	StorageKey string
	SHA256     string
	IssuedAt   time.Time
}
