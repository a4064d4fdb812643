package signing

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/ids"
	"signflow.dev/internal/notify"
	"signflow.dev/internal/obs"
	"signflow.dev/internal/pdfstamp"
	"signflow.dev/internal/signer"
)

// Service implements the Signing Commit & Finalization component (C9).
type Service struct {
	signers       signer.SignerStore
	docs          DocumentFinalizer
	certs         CertificateStore
	owners        OwnerContactLookup
	chain         *audit.Chain
	stamper       pdfstamp.Stamper
	notifier      notify.Notifier
	settings      notify.SettingsLookup
	publicBaseURL string
	now           func() time.Time
}

// NewService constructs Service. settings resolves the tenant's
// TenantSettings.FinalEmailTemplate so notifyCompletion can honor a
// per-tenant override instead of always falling back to the built-in
// completion template; it may be nil, in which case the fallback is always
// used.
func NewService(signers signer.SignerStore, docs DocumentFinalizer, certs CertificateStore, owners OwnerContactLookup, chain *audit.Chain, stamper pdfstamp.Stamper, notifier notify.Notifier, settings notify.SettingsLookup, publicBaseURL string) *Service {
	return &Service{
		signers: signers, docs: docs, certs: certs, owners: owners, chain: chain,
		stamper: stamper, notifier: notifier, settings: settings, publicBaseURL: publicBaseURL, now: time.Now,
	}
}

var signerCommittable = map[signer.Status]bool{signer.StatusPending: true, signer.StatusViewed: true}

// Commit implements §4.9's commit(): steps 1-7 (and, on the last signer,
// step 8's finalization sub-protocol) run inside one SERIALIZABLE
// transaction; the post-commit notification fan-out happens afterward,
// best-effort, per §5's suspension-point rule.
func (s *Service) Commit(ctx context.Context, db *sql.DB, in CommitInput) (*CommitResult, error) {
	decoded, err := decodeSignatureImage(in.SignatureImageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature image", apperr.ErrValidation)
	}

	var (
		result       CommitResult
		finalizedDoc *document.Document
		signers      []signer.Signer
		artefactKey  string
	)

	err = dbx.RunInTx(ctx, db, sql.LevelSerializable, func(tx *sql.Tx) error {
		sg, err := s.signers.FindByID(ctx, tx, in.SignerID)
		if err != nil {
			return err
		}
		if !signerCommittable[sg.Status] {
			return fmt.Errorf("%w: signer already acted", apperr.ErrConflict)
		}

		doc, err := s.docs.GetUnscoped(ctx, tx, in.DocumentID)
		if err != nil {
			return err
		}
		if !doc.Status.Pending() {
			return fmt.Errorf("%w: document not open for signing", apperr.ErrConflict)
		}

		timestamp := s.now().UTC()
		signatureHash := crypto.Sha256Hex([]byte(doc.SHA256 + sg.ID + timestamp.Format(time.RFC3339Nano) + in.ClientFingerprint))
		shortCode := crypto.ShortCodeFromSignatureHash(signatureHash)
		signatureUUID := ids.NewOpaque()

		artefactKey = fmt.Sprintf("%s/signatures/%s.png", doc.TenantID, sg.ID)
		if err := s.docs.WriteFile(artefactKey, decoded); err != nil {
			return err
		}

		sg.Status = signer.StatusSigned
		sg.SignedAt = &timestamp
		sg.SignatureHash = signatureHash
		sg.SignatureArtefactPath = artefactKey
		sg.IP = in.IP
		sg.SignatureUUID = signatureUUID
		sg.UpdatedAt = timestamp
		if err := s.signers.Update(ctx, tx, sg); err != nil {
			return err
		}
		if _, err := s.chain.AppendEvent(ctx, tx, audit.AppendInput{
			TenantID: doc.TenantID, ActorKind: audit.ActorSigner, ActorID: sg.ID,
			EntityType: audit.EntitySigner, EntityID: sg.ID, Action: audit.ActionSigned,
			IP: in.IP, UserAgent: in.UserAgent,
			Payload: map[string]any{"signatureHash": signatureHash, "artefactPath": artefactKey, "shortCode": shortCode, "clientFingerprint": in.ClientFingerprint, "ip": in.IP},
		}); err != nil {
			return err
		}

		all, err := s.signers.ListByDocument(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		signers = all

		result = CommitResult{ShortCode: shortCode, SignatureHash: signatureHash}
		if !allSigned(all) {
			result.IsComplete = false
			return nil
		}

		locked, err := s.docs.LockForFinalization(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		if locked.Status == document.StatusSigned {
			// A concurrent commit already finalized this document; this
			// signer's own commit still succeeds, finalization does not
			// run twice.
			result.IsComplete = true
			return nil
		}

		if err := s.finalize(ctx, tx, locked, all, timestamp); err != nil {
			return err
		}
		finalizedDoc = locked
		result.IsComplete = true
		return nil
	})
	if err != nil {
		obs.SignerCommits.WithLabelValues("failure").Inc()
		return nil, err
	}

	if result.IsComplete {
		obs.DocumentsSigned.Inc()
		obs.SignerCommits.WithLabelValues("complete").Inc()
		if finalizedDoc != nil {
			s.notifyCompletion(ctx, db, finalizedDoc, signers)
		}
	} else {
		obs.SignerCommits.WithLabelValues("partial").Inc()
	}
	return &result, nil
}

func allSigned(signers []signer.Signer) bool {
	if len(signers) == 0 {
		return false
	}
	for _, sg := range signers {
		if sg.Status != signer.StatusSigned {
			return false
		}
	}
	return true
}

// finalize implements §4.9 step 8: stamp the PDF, reseal the document,
// mint the certificate. Runs inside the caller's transaction for DB writes;
// the PDF bytes themselves are written through s.docs' FileStore once the
// preceding steps have succeeded, before the transaction commits. A later
// rollback does not remove the written file.
func (s *Service) finalize(ctx context.Context, tx *sql.Tx, doc *document.Document, signers []signer.Signer, timestamp time.Time) error {
	original, err := s.docs.ReadFile(doc.StorageKey)
	if err != nil {
		return err
	}

	infos := make([]pdfstamp.SignerInfo, 0, len(signers))
	for _, sg := range signers {
		infos = append(infos, pdfstamp.SignerInfo{
			Name: sg.Name, CPF: sg.CPF, Email: sg.Email,
			SignedAt: valueOrZero(sg.SignedAt), IP: sg.IP, SignatureUUID: sg.SignatureUUID,
			ArtefactPath: sg.SignatureArtefactPath,
			PositionX:    sg.PositionX, PositionY: sg.PositionY, PositionPage: sg.PositionPage,
		})
	}

	stamped, err := s.stamper.EmbedSignatures(original, infos, pdfstamp.DocInfo{DocumentID: doc.ID, SHA256: doc.SHA256})
	if err != nil {
		return err
	}

	newKey := withSignedSuffix(doc.StorageKey)
	if err := s.docs.WriteFile(newKey, stamped); err != nil {
		return err
	}
	newSHA256 := crypto.Sha256Hex(stamped)

	if err := s.docs.FinalizeSigned(ctx, tx, doc, newKey, newSHA256, "system"); err != nil {
		return err
	}

	cert := &Certificate{
		ID: ids.New(), DocumentID: doc.ID,
		SHA256:     crypto.Sha256Hex([]byte("CERT-" + doc.ID + timestamp.Format(time.RFC3339Nano))),
		StorageKey: fmt.Sprintf("certificates/%s.pdf", doc.ID),
		IssuedAt:   timestamp,
	}
	if err := s.certs.Create(ctx, tx, cert); err != nil {
		return err
	}
	_, err = s.chain.AppendEvent(ctx, tx, audit.AppendInput{
		TenantID: doc.TenantID, ActorKind: audit.ActorSystem, EntityType: audit.EntityDocument,
		EntityID: doc.ID, Action: audit.ActionCertificateIssued,
		Payload: map[string]any{"certificateId": cert.ID, "storageKey": cert.StorageKey},
	})
	return err
}

// notifyCompletion implements §4.9 step h: fan out to owner and every
// signer, best-effort. Errors are logged, never returned - the signing
// transaction has already committed by the time this runs.
func (s *Service) notifyCompletion(ctx context.Context, db *sql.DB, doc *document.Document, signers []signer.Signer) {
	if s.notifier == nil {
		return
	}
	ownerName, ownerEmail := "", ""
	if s.owners != nil {
		var err error
		ownerName, ownerEmail, err = s.owners.FindNameAndEmailByID(ctx, db, doc.OwnerID)
		if err != nil {
			obs.Error("lookup owner for completion email failed", err, map[string]any{"documentId": doc.ID})
		}
	}
	link := fmt.Sprintf("%s/documents/%s", strings.TrimRight(s.publicBaseURL, "/"), doc.ID)

	var template string
	if s.settings != nil {
		if settings, err := s.settings.GetSettings(ctx, doc.TenantID); err == nil {
			template = settings.FinalEmailTemplate
		} else {
			obs.Error("lookup tenant settings for completion email failed", err, map[string]any{"documentId": doc.ID})
		}
	}

	recipients := make([]struct{ name, email string }, 0, len(signers)+1)
	if ownerEmail != "" {
		recipients = append(recipients, struct{ name, email string }{ownerName, ownerEmail})
	}
	for _, sg := range signers {
		if sg.Email != "" {
			recipients = append(recipients, struct{ name, email string }{sg.Name, sg.Email})
		}
	}

	for _, r := range recipients {
		html := notify.RenderCompletionEmail(template, notify.CompletionEmailSubstitutions{
			SignerName: r.name, DocTitle: doc.Title, DocLink: link, DocID: doc.ID,
		})
		if err := s.notifier.SendEmail(ctx, doc.TenantID, notify.Email{To: r.email, Subject: "Documento assinado", HTML: html}); err != nil {
			obs.Error("completion email delivery failed", err, map[string]any{"documentId": doc.ID, "to": r.email})
		}
	}
}

func valueOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func withSignedSuffix(storageKey string) string {
	ext := filepath.Ext(storageKey)
	base := strings.TrimSuffix(storageKey, ext)
	return base + "-signed" + ext
}

func decodeSignatureImage(b64 string) ([]byte, error) {
	b64 = strings.TrimPrefix(b64, "data:image/png;base64,")
	return base64.StdEncoding.DecodeString(b64)
}
