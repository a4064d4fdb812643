// Package httpapi is the bare net/http surface (C-external) described in
// §6: one mux, Bearer-token auth via internal/authx, and a uniform
// {message: string} error envelope mapped through apperr.HTTPStatus.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"signflow.dev/internal/audit"
	"signflow.dev/internal/authx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/obs"
	"signflow.dev/internal/signer"
	"signflow.dev/internal/signing"
	"signflow.dev/internal/tenant"
)

// ReadyProbe checks downstream dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires every domain service to the HTTP surface. Every field is a
// pointer/interface owned by cmd/api's bootstrap, never constructed here.
type API struct {
	mux *http.ServeMux

	db      *sql.DB
	authx   *authx.Service
	tenants *tenant.Service
	docs    *document.Service
	signers *signer.Service
	signing *signing.Service
	chain   *audit.Chain

	readyProbe    ReadyProbe
	version       string
	publicBaseURL string
}

// Deps bundles every collaborator New needs, so cmd/api's bootstrap reads
// as one struct literal instead of a long positional call.
type Deps struct {
	DB            *sql.DB
	Authx         *authx.Service
	Tenants       *tenant.Service
	Documents     *document.Service
	Signers       *signer.Service
	Signing       *signing.Service
	Chain         *audit.Chain
	Version       string
	PublicBaseURL string
}

// New builds the API and registers every route named in §6.
func New(d Deps) *API {
	a := &API{
		mux: http.NewServeMux(),
		db: d.DB, authx: d.Authx, tenants: d.Tenants, docs: d.Documents,
		signers: d.Signers, signing: d.Signing, chain: d.Chain,
		version: d.Version, publicBaseURL: d.PublicBaseURL,
		readyProbe: ReadyProbe{DB: d.DB},
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.HandleFunc("/v1/info", a.info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/logout", a.withAuth(nil, a.handleLogout))
	a.mux.HandleFunc("/auth/switch-tenant", a.withAuth(nil, a.handleSwitchTenant))
	a.mux.HandleFunc("/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/auth/reset-password", a.handleResetPassword)

	a.mux.HandleFunc("/tenants/my", a.withAuth(nil, a.handleTenantMy))
	a.mux.HandleFunc("/tenants/available", a.withAuth(nil, a.handleTenantsAvailable))
	a.mux.HandleFunc("/tenants/invite", a.withAuth([]authx.Role{authx.RoleAdmin}, a.handleTenantInvite))
	a.mux.HandleFunc("/tenants/invites/", a.withAuth(nil, a.handleInviteRespond))

	a.mux.HandleFunc("/documents/stats", a.withAuth(viewerRoles, a.handleDocumentStats))
	a.mux.HandleFunc("/documents/validate-file", a.handleValidateFile)
	a.mux.HandleFunc("/documents", a.handleDocumentsCollection)
	a.mux.HandleFunc("/documents/", a.handleDocumentsItem)

	a.mux.HandleFunc("/sign/", a.handleSignToken)

	return a
}

// Handler returns the fully wrapped handler cmd/api hands to http.Server.
func (a *API) Handler() http.Handler {
	h := obs.Instrument(a.mux)
	h = RateLimit(h, 40, 20)
	h = MaxBodyBytes(h, 32<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return h
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "signflow-api", "version": a.version})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name": "signflow-api", "time": time.Now().UTC().Format(time.RFC3339), "version": a.version,
	})
}
