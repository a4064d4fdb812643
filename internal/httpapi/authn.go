package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/authx"
)

// Role groups named in §6's endpoint table, reused across handlers that
// gate different HTTP methods on the same path to different role sets.
var (
	managerRoles = []authx.Role{authx.RoleAdmin, authx.RoleManager}
	viewerRoles  = []authx.Role{authx.RoleAdmin, authx.RoleManager, authx.RoleViewer}
)

type principalKey struct{}

// principalFrom reads the Principal withAuth attached to the request
// context. Handlers reached through withAuth may call this unconditionally.
func principalFrom(ctx context.Context) authx.Principal {
	p, _ := ctx.Value(principalKey{}).(authx.Principal)
	return p
}

func extractBearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated)
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", apperr.ErrUnauthenticated)
	}
	return token, nil
}

// authenticate resolves the bearer credential into a Principal without a
// role check, for handlers that gate different HTTP methods on the same
// path to different role sets (e.g. GET /documents vs POST /documents).
func (a *API) authenticate(r *http.Request) (authx.Principal, error) {
	token, err := extractBearerToken(r)
	if err != nil {
		return authx.Principal{}, err
	}
	return a.authx.Authenticate(r.Context(), token)
}

// requireRole reports apperr.ErrForbidden unless p holds one of allowed.
func requireRole(p authx.Principal, allowed ...authx.Role) error {
	if !p.HasAnyRole(allowed...) {
		return apperr.ErrForbidden
	}
	return nil
}

// withAuth authenticates the bearer credential and, when allowed is
// non-empty, requires the resulting Principal to hold one of those roles
// (SUPER_ADMIN always passes, per Principal.HasAnyRole). A nil/empty
// allowed list means "any authenticated principal".
func (a *API) withAuth(allowed []authx.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		principal, err := a.authx.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(allowed) > 0 && !principal.HasAnyRole(allowed...) {
			writeError(w, apperr.ErrForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next(w, r.WithContext(ctx))
	}
}
