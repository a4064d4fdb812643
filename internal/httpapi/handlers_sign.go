package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/signer"
	"signflow.dev/internal/signing"
)

// handleSignToken implements every "/sign/:token..." route. None of these
// require a bearer credential: the opaque share token itself is the
// authorization artifact, resolved fresh on every call per §4.8.
func (a *API) handleSignToken(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sign/")
	parts := strings.SplitN(rest, "/", 3)
	token := parts[0]
	if token == "" {
		http.NotFound(w, r)
		return
	}
	sub := ""
	if len(parts) > 1 {
		sub = strings.Join(parts[1:], "/")
	}

	resolved, err := a.signers.ResolveToken(r.Context(), a.db, token)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		sg, err := a.signers.Summary(r.Context(), a.db, *resolved, clientIP(r), r.Header.Get("User-Agent"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, signSummaryBody(*resolved, *sg))

	case sub == "identify" && r.Method == http.MethodPost:
		a.signIdentify(w, r, *resolved)

	case sub == "otp/start" && r.Method == http.MethodPost:
		if err := a.signers.StartOtp(r.Context(), a.db, *resolved, clientIP(r), r.Header.Get("User-Agent")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case sub == "otp/verify" && r.Method == http.MethodPost:
		a.signOtpVerify(w, r, *resolved)

	case sub == "commit" && r.Method == http.MethodPost:
		a.signCommit(w, r, *resolved)

	default:
		http.NotFound(w, r)
	}
}

type signSummaryResponse struct {
	DocumentID    string `json:"documentId"`
	SignerID      string `json:"signerId"`
	SignerName    string `json:"signerName"`
	SignerStatus  string `json:"signerStatus"`
	PositionX     float64 `json:"positionX"`
	PositionY     float64 `json:"positionY"`
	PositionPage  int     `json:"positionPage"`
}

func signSummaryBody(resolved signer.Resolved, sg signer.Signer) signSummaryResponse {
	return signSummaryResponse{
		DocumentID: resolved.DocumentID, SignerID: sg.ID, SignerName: sg.Name,
		SignerStatus: string(sg.Status), PositionX: sg.PositionX, PositionY: sg.PositionY, PositionPage: sg.PositionPage,
	}
}

func (a *API) signIdentify(w http.ResponseWriter, r *http.Request, resolved signer.Resolved) {
	var in struct {
		CPF   string `json:"cpf"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	sg := resolved.Signer
	if err := a.signers.Identify(r.Context(), a.db, &sg, signer.IdentifyInput{CPF: in.CPF, Phone: in.Phone}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) signOtpVerify(w http.ResponseWriter, r *http.Request, resolved signer.Resolved) {
	var in struct {
		OTP string `json:"otp"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := a.signers.VerifyOtp(r.Context(), a.db, resolved, in.OTP, clientIP(r), r.Header.Get("User-Agent")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) signCommit(w http.ResponseWriter, r *http.Request, resolved signer.Resolved) {
	var in struct {
		ClientFingerprint string `json:"clientFingerprint"`
		SignatureImage    string `json:"signatureImage"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.SignatureImage == "" {
		writeError(w, fmt.Errorf("%w: signatureImage is required", apperr.ErrValidation))
		return
	}
	result, err := a.signing.Commit(r.Context(), a.db, signing.CommitInput{
		DocumentID: resolved.DocumentID, SignerID: resolved.Signer.ID,
		ClientFingerprint: in.ClientFingerprint, SignatureImageBase64: in.SignatureImage,
		IP: clientIP(r), UserAgent: r.Header.Get("User-Agent"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shortCode": result.ShortCode, "signatureHash": result.SignatureHash, "isComplete": result.IsComplete,
	})
}
