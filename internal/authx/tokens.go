package authx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"signflow.dev/internal/apperr"
)

const (
	tokenIssuer     = "signflow"
	accessTokenKind = "access"
)

// accessClaims is embedded into every access credential. TenantID and Role
// are the *active* tenant/role, which may differ from the User row when a
// session has switched tenants.
type accessClaims struct {
	TenantID string `json:"tenantId"`
	Role     Role   `json:"role"`
	TokenUse string `json:"tokenUse"`
	jwt.RegisteredClaims
}

// refreshClaims carries only {userId, tenantId} - role is re-resolved on
// every refresh per §4.5, never trusted from the stale token.
type refreshClaims struct {
	TenantID string `json:"tenantId"`
	TokenUse string `json:"tokenUse"`
	jwt.RegisteredClaims
}

func (s *Service) signAccessToken(userID string, tenantID string, role Role, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		TenantID: tenantID,
		Role:     role,
		TokenUse: accessTokenKind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Service) parseAccessToken(raw string) (accessClaims, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, apperr.ErrUnauthenticated
		}
		return s.accessSecret, nil
	})
	if err != nil || !token.Valid {
		return accessClaims{}, apperr.ErrUnauthenticated
	}
	if claims.TokenUse != accessTokenKind || strings.TrimSpace(claims.Subject) == "" {
		return accessClaims{}, apperr.ErrUnauthenticated
	}
	return claims, nil
}

func (s *Service) signRefreshToken(userID string, tenantID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.refreshTTL)
	claims := refreshClaims{
		TenantID: tenantID,
		TokenUse: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Service) parseRefreshToken(raw string) (refreshClaims, error) {
	var claims refreshClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.refreshSecret, nil
	})
	if err != nil || !token.Valid {
		return refreshClaims{}, apperr.ErrInvalidCredentials
	}
	if claims.TokenUse != "refresh" || strings.TrimSpace(claims.Subject) == "" {
		return refreshClaims{}, apperr.ErrInvalidCredentials
	}
	return claims, nil
}
