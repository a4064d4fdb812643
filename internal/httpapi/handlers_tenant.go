package httpapi

import (
	"net/http"
	"strings"

	"signflow.dev/internal/tenant"
)

type tenantDetailResponse struct {
	TenantID           string `json:"tenantId"`
	DisplayName        string `json:"displayName"`
	Slug               string `json:"slug"`
	Status             string `json:"status"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	Role               string `json:"role"`
	Usage              struct {
		Occupancy     int    `json:"occupancy"`
		UserLimit     int    `json:"userLimit"`
		DocumentLimit int    `json:"documentLimit"`
		PlanSlug      string `json:"planSlug"`
	} `json:"usage"`
}

// handleTenantMy implements "GET /tenants/my": the active tenant (from the
// bearer credential) plus its plan-limit usage.
func (a *API) handleTenantMy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	principal := principalFrom(r.Context())
	t, err := a.tenants.GetTenant(r.Context(), a.db, principal.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	usage, err := a.tenants.GetUsage(r.Context(), a.db, t)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := tenantDetailResponse{
		TenantID: t.ID, DisplayName: t.DisplayName, Slug: t.Slug,
		Status: string(t.Status), SubscriptionStatus: string(t.SubscriptionStatus),
		Role: string(principal.Role),
	}
	resp.Usage.Occupancy = usage.Occupancy
	resp.Usage.UserLimit = usage.UserLimit
	resp.Usage.DocumentLimit = usage.DocumentLimit
	resp.Usage.PlanSlug = usage.PlanSlug
	writeJSON(w, http.StatusOK, resp)
}

// handleTenantsAvailable implements "GET /tenants/available": the personal
// tenant plus every non-personal tenant the caller is an ACTIVE member of.
func (a *API) handleTenantsAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	principal := principalFrom(r.Context())
	user, err := a.authx.GetUser(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := a.tenants.ListMyTenants(r.Context(), a.db, user.TenantID, principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, m := range list {
		out = append(out, map[string]any{
			"tenantId": m.TenantID, "name": m.Name, "role": string(m.Role), "isPersonal": m.IsPersonal,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTenantInvite implements "POST /tenants/invite" (ADMIN).
func (a *API) handleTenantInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	principal := principalFrom(r.Context())
	err := a.tenants.InviteMember(r.Context(), a.db, tenant.InviteMemberInput{
		CurrentTenantID: principal.TenantID, Email: in.Email,
		Role: tenant.MemberRole(in.Role), IsSuperAdmin: principal.IsSuperAdmin(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

// handleInviteRespond implements "POST /tenants/invites/:id/respond".
func (a *API) handleInviteRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id, ok := pathSegment(r.URL.Path, "/tenants/invites/", "/respond")
	if !ok {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Accept bool `json:"accept"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	principal := principalFrom(r.Context())
	if err := a.tenants.RespondInvite(r.Context(), a.db, principal.UserID, principal.Email, id, in.Accept); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// pathSegment extracts the id between a fixed prefix and suffix, e.g.
// "/tenants/invites/abc123/respond" with prefix "/tenants/invites/" and
// suffix "/respond" yields ("abc123", true).
func pathSegment(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
