package httpapi

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/otp"
	"signflow.dev/internal/signer"
)

const maxUploadBytes = 25 << 20

type documentResponse struct {
	ID            string  `json:"id"`
	TenantID      string  `json:"tenantId"`
	OwnerID       string  `json:"ownerId"`
	FolderID      string  `json:"folderId,omitempty"`
	Title         string  `json:"title"`
	MimeType      string  `json:"mimeType"`
	Size          int64   `json:"size"`
	SHA256        string  `json:"sha256"`
	DeadlineAt    *string `json:"deadlineAt,omitempty"`
	AutoReminders bool    `json:"autoReminders"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func documentBody(d document.Document) documentResponse {
	resp := documentResponse{
		ID: d.ID, TenantID: d.TenantID, OwnerID: d.OwnerID, FolderID: d.FolderID,
		Title: d.Title, MimeType: d.MimeType, Size: d.Size, SHA256: d.SHA256,
		AutoReminders: d.AutoReminders, Status: string(d.Status),
		CreatedAt: d.CreatedAt.Format(timeFormat), UpdatedAt: d.UpdatedAt.Format(timeFormat),
	}
	if d.DeadlineAt != nil {
		s := d.DeadlineAt.Format(timeFormat)
		resp.DeadlineAt = &s
	}
	return resp
}

// handleDocumentsCollection implements "GET /documents" and "POST
// /documents" - the two methods the spec gates to different role sets.
func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	principal, err := a.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := requireRole(principal, viewerRoles...); err != nil {
			writeError(w, err)
			return
		}
		filter := document.ListFilter(r.URL.Query().Get("status"))
		docs, err := a.docs.List(r.Context(), a.db, principal.TenantID, filter)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			out = append(out, documentBody(d))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		if err := requireRole(principal, managerRoles...); err != nil {
			writeError(w, err)
			return
		}
		data, filename, err := readMultipartFile(r, "documentFile")
		if err != nil {
			writeError(w, err)
			return
		}
		form := r.MultipartForm
		title, folderID, mimeType := "", "", ""
		var deadline *time.Time
		autoReminders := true
		if form != nil {
			if v := form.Value["title"]; len(v) > 0 {
				title = v[0]
			}
			if v := form.Value["folderId"]; len(v) > 0 {
				folderID = v[0]
			}
			if v := form.Value["deadlineAt"]; len(v) > 0 {
				deadline = parseDeadline(v[0])
			}
			if v := form.Value["autoReminders"]; len(v) > 0 {
				autoReminders = parseBool(v[0], true)
			}
		}
		if file, ok := form.File["documentFile"]; ok && len(file) > 0 {
			mimeType = file[0].Header.Get("Content-Type")
		}

		doc, err := a.docs.Upload(r.Context(), a.db, document.UploadInput{
			TenantID: principal.TenantID, OwnerID: principal.UserID, FolderID: folderID,
			Title: title, OriginalName: filename, MimeType: mimeType, Bytes: data,
			DeadlineAt: deadline, AutoReminders: autoReminders, IsSuperAdmin: principal.IsSuperAdmin(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, documentBody(*doc))

	default:
		http.NotFound(w, r)
	}
}

// handleDocumentStats implements "GET /documents/stats".
func (a *API) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	principal := principalFrom(r.Context())
	stats, err := a.docs.Stats(r.Context(), a.db, principal.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	recent := make([]map[string]any, 0, len(stats.Recent))
	for _, d := range stats.Recent {
		recent = append(recent, map[string]any{
			"document":  documentBody(d.Document),
			"ownerName": d.OwnerName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"countPending": stats.CountPending, "countSigned": stats.CountSigned,
		"countExpired": stats.CountExpired, "countDraft": stats.CountDraft,
		"countTotal": stats.CountTotal, "totalBytes": stats.TotalBytes, "recent": recent,
	})
}

// handleValidateFile implements "POST /documents/validate-file" (public).
func (a *API) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	data, _, err := readMultipartFile(r, "documentFile")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := a.docs.ValidateBuffer(r.Context(), a.db, data)
	if err != nil {
		writeError(w, err)
		return
	}
	signers := make([]map[string]any, 0, len(result.Signers))
	for _, s := range result.Signers {
		entry := map[string]any{"name": s.Name, "email": s.Email, "status": s.Status}
		if s.SignedAt != nil {
			entry["signedAt"] = s.SignedAt.Format(timeFormat)
		}
		signers = append(signers, entry)
	}
	resp := map[string]any{
		"valid": result.Valid, "hashCalculated": result.HashCalculated,
		"title": result.Title, "ownerName": result.OwnerName, "signers": signers,
	}
	if result.Reason != "" {
		resp["reason"] = string(result.Reason)
	}
	if result.SignedAt != nil {
		resp["signedAt"] = result.SignedAt.Format(timeFormat)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDocumentsItem implements every "/documents/:id..." route.
func (a *API) handleDocumentsItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	principal, err := a.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		if err := requireRole(principal, viewerRoles...); err != nil {
			writeError(w, err)
			return
		}
		a.getDocument(w, r, principal.TenantID, id)

	case sub == "invite" && r.Method == http.MethodPost:
		if err := requireRole(principal, managerRoles...); err != nil {
			writeError(w, err)
			return
		}
		a.inviteSigners(w, r, principal.TenantID, id)

	case sub == "cancel" && r.Method == http.MethodPost:
		if err := requireRole(principal, managerRoles...); err != nil {
			writeError(w, err)
			return
		}
		if err := a.docs.Cancel(r.Context(), a.db, principal.TenantID, id, principal.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case sub == "expire" && r.Method == http.MethodPost:
		if err := requireRole(principal, managerRoles...); err != nil {
			writeError(w, err)
			return
		}
		if err := a.docs.Expire(r.Context(), a.db, principal.TenantID, id, principal.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case sub == "audit" && r.Method == http.MethodGet:
		if err := requireRole(principal, viewerRoles...); err != nil {
			writeError(w, err)
			return
		}
		a.documentAudit(w, r, principal.TenantID, id)

	case sub == "verify-chain" && r.Method == http.MethodGet:
		if err := requireRole(principal, viewerRoles...); err != nil {
			writeError(w, err)
			return
		}
		a.verifyChain(w, r, principal.TenantID, id)

	default:
		http.NotFound(w, r)
	}
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	doc, err := a.docs.Get(r.Context(), a.db, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	signers, err := a.signers.ListByDocument(r.Context(), a.db, doc.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		documentResponse
		Signers []signerSummaryResponse `json:"signers"`
	}{documentResponse: documentBody(*doc)}
	for _, sg := range signers {
		resp.Signers = append(resp.Signers, signerSummaryBody(sg))
	}
	writeJSON(w, http.StatusOK, resp)
}

type signerSummaryResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Qualification string  `json:"qualification,omitempty"`
	Status        string  `json:"status"`
	SignedAt      *string `json:"signedAt,omitempty"`
}

func signerSummaryBody(sg signer.Signer) signerSummaryResponse {
	resp := signerSummaryResponse{
		ID: sg.ID, Name: sg.Name, Email: sg.Email,
		Qualification: sg.Qualification, Status: string(sg.Status),
	}
	if sg.SignedAt != nil {
		s := sg.SignedAt.Format(timeFormat)
		resp.SignedAt = &s
	}
	return resp
}

func (a *API) inviteSigners(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	var in struct {
		Signers []struct {
			Name          string   `json:"name"`
			Email         string   `json:"email"`
			CPF           string   `json:"cpf"`
			Phone         string   `json:"phone"`
			Qualification string   `json:"qualification"`
			AuthChannels  []string `json:"authChannels"`
		} `json:"signers"`
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	doc, err := a.docs.Get(r.Context(), a.db, tenantID, documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(in.Signers) == 0 {
		writeError(w, fmt.Errorf("%w: at least one signer is required", apperr.ErrValidation))
		return
	}

	inputs := make([]signer.InviteSignerInput, 0, len(in.Signers))
	for _, s := range in.Signers {
		channels := make([]otp.Channel, 0, len(s.AuthChannels))
		for _, c := range s.AuthChannels {
			channels = append(channels, otp.Channel(c))
		}
		inputs = append(inputs, signer.InviteSignerInput{
			Name: s.Name, Email: s.Email, CPF: s.CPF, PhoneE164: s.Phone,
			Qualification: s.Qualification, AuthChannels: channels,
		})
	}

	var created []signer.Signer
	err = dbx.RunInTx(r.Context(), a.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		var txErr error
		created, txErr = a.signers.InviteSigners(r.Context(), tx, doc.ID, tenantID, doc.Title, a.publicBaseURL, in.Message, inputs)
		return txErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]signerSummaryResponse, 0, len(created))
	for _, sg := range created {
		out = append(out, signerSummaryBody(sg))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) documentAudit(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	doc, err := a.docs.Get(r.Context(), a.db, tenantID, documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	signers, err := a.signers.ListByDocument(r.Context(), a.db, doc.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	signerIDs := make([]string, 0, len(signers))
	for _, sg := range signers {
		signerIDs = append(signerIDs, sg.ID)
	}
	events, err := a.chain.ListForDocument(r.Context(), a.db, doc.ID, signerIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auditEventBodies(events))
}

type auditEventResponse struct {
	ID         string         `json:"id"`
	ActorKind  string         `json:"actorKind"`
	ActorID    string         `json:"actorId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  string         `json:"createdAt"`
}

func auditEventBodies(events []audit.Event) []auditEventResponse {
	out := make([]auditEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventResponse{
			ID: ev.ID, ActorKind: string(ev.ActorKind), ActorID: ev.ActorID,
			EntityType: string(ev.EntityType), EntityID: ev.EntityID, Action: string(ev.Action),
			Payload: ev.PayloadJSON, CreatedAt: ev.CreatedAt.Format(timeFormat),
		})
	}
	return out
}

func (a *API) verifyChain(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	doc, err := a.docs.Get(r.Context(), a.db, tenantID, documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	signers, err := a.signers.ListByDocument(r.Context(), a.db, doc.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	signerIDs := make([]string, 0, len(signers))
	for _, sg := range signers {
		signerIDs = append(signerIDs, sg.ID)
	}
	result, err := a.chain.VerifyChainForDocument(r.Context(), a.db, doc.ID, signerIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"isValid": result.IsValid, "count": result.Count,
		"brokenEventId": result.BrokenEventID, "reason": result.Reason,
	})
}

// readMultipartFile reads field into memory, bounding the request body at
// maxUploadBytes.
func readMultipartFile(r *http.Request, field string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing file field %q", apperr.ErrValidation, field)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return data, header.Filename, nil
}

func parseDeadline(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
