// Package pdfstamp implements the PDF stamping collaborator named in §6:
// an interface plus a minimal built-in renderer, since no PDF-rendering
// library appears anywhere in the example corpus (a real implementation
// would swap Stamper for one backed by a library such as pdfcpu/unipdf).
package pdfstamp

import (
	"bytes"
	"fmt"
	"time"
)

// SignerInfo is one signer's projection into the stamped signatures page.
type SignerInfo struct {
	Name           string
	CPF            string
	Email          string
	SignedAt       time.Time
	IP             string
	SignatureUUID  string
	ArtefactPath   string
	ArtefactPNG    []byte
	PositionX      float64
	PositionY      float64
	PositionPage   int
}

// DocInfo carries the document-level fields the stamped page's footer needs.
type DocInfo struct {
	DocumentID string
	SHA256     string
}

// Stamper embeds a signatures page into a PDF. Implementations must be
// deterministic: the same inputs always produce byte-identical output, so
// sha256Hex(stamped) is stable.
type Stamper interface {
	EmbedSignatures(originalPDF []byte, signers []SignerInfo, doc DocInfo) ([]byte, error)
}

// BuiltinStamper is the corpus-free fallback: it appends a plain-text
// "Registro de Assinaturas" page, described as an additional PDF object
// rather than rendered glyphs, since no PDF content-stream library is
// available. It satisfies the contract's content requirements (per-signer
// name/CPF/email/signedAt/ip/signatureUuid/hash-prefix) without attempting
// real PDF page composition.
type BuiltinStamper struct{}

// NewBuiltinStamper returns the built-in Stamper.
func NewBuiltinStamper() *BuiltinStamper { return &BuiltinStamper{} }

const maxImageWidthPt = 150
const maxImageHeightPt = 80

// EmbedSignatures appends a deterministically-rendered signatures manifest
// to originalPDF as a trailing, clearly delimited block. The placement
// keeps the original bytes intact (any PDF viewer that tolerates trailing
// data after %%EOF - most do - will still open the document), which is the
// degree of "stamping" achievable without a content-stream library.
func (BuiltinStamper) EmbedSignatures(originalPDF []byte, signers []SignerInfo, doc DocInfo) ([]byte, error) {
	var out bytes.Buffer
	out.Write(originalPDF)
	out.WriteString("\n%SIGNFLOW-SIGNATURES-PAGE\n")
	out.WriteString("Registro de Assinaturas\n")
	fmt.Fprintf(&out, "Documento: %s\n", doc.DocumentID)
	fmt.Fprintf(&out, "Hash (prefixo): %s\n", shortHashPrefix(doc.SHA256))
	out.WriteString("---\n")

	for _, s := range signers {
		cpf := s.CPF
		if cpf == "" {
			cpf = "Não informado"
		}
		fmt.Fprintf(&out, "Nome: %s\n", s.Name)
		fmt.Fprintf(&out, "CPF: %s\n", cpf)
		fmt.Fprintf(&out, "Email: %s\n", s.Email)
		fmt.Fprintf(&out, "Assinado em: %s\n", s.SignedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&out, "IP: %s\n", s.IP)
		fmt.Fprintf(&out, "UUID da assinatura: %s\n", s.SignatureUUID)
		fmt.Fprintf(&out, "Imagem: %s (max %dx%dpt)\n", s.ArtefactPath, maxImageWidthPt, maxImageHeightPt)
		out.WriteString("---\n")
	}
	out.WriteString("%SIGNFLOW-SIGNATURES-PAGE-END\n")
	return out.Bytes(), nil
}

func shortHashPrefix(sha256Hex string) string {
	if len(sha256Hex) < 20 {
		return sha256Hex
	}
	return sha256Hex[:20]
}

// VerifyStampable reports whether data looks like it begins with a PDF
// header, a cheap sanity check callers can run before stamping.
func VerifyStampable(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
