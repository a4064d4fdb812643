package httpapi

import (
	"net/http"

	"signflow.dev/internal/authx"
	"signflow.dev/internal/otp"
)

// credentialsResponse is the wire shape for every endpoint that issues or
// rotates a bearer credential pair.
type credentialsResponse struct {
	AccessToken      string         `json:"accessToken"`
	RefreshToken     string         `json:"refreshToken"`
	AccessExpiresAt  string         `json:"accessExpiresAt"`
	RefreshExpiresAt string         `json:"refreshExpiresAt"`
	User             *authx.Public  `json:"user,omitempty"`
}

func credentialsBody(c authx.Credentials, user *authx.Public) credentialsResponse {
	return credentialsResponse{
		AccessToken: c.AccessToken, RefreshToken: c.RefreshToken,
		AccessExpiresAt: c.AccessExpiresAt.Format(timeFormat), RefreshExpiresAt: c.RefreshExpiresAt.Format(timeFormat),
		User: user,
	}
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		CPF       string `json:"cpf"`
		PhoneE164 string `json:"phone"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	creds, user, err := a.authx.Register(r.Context(), authx.RegisterInput{
		Name: in.Name, Email: in.Email, Password: in.Password, CPF: in.CPF, PhoneE164: in.PhoneE164,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, credentialsBody(creds, &user))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	creds, user, err := a.authx.Login(r.Context(), authx.LoginInput{
		Email: in.Email, Password: in.Password, IP: clientIP(r), UserAgent: r.Header.Get("User-Agent"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsBody(creds, &user))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	creds, err := a.authx.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsBody(creds, nil))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	principal := principalFrom(r.Context())
	if err := a.authx.Logout(r.Context(), principal.UserID, in.RefreshToken); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		TargetTenantID string `json:"targetTenantId"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	principal := principalFrom(r.Context())
	creds, err := a.authx.SwitchTenant(r.Context(), principal.UserID, in.TargetTenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsBody(creds, nil))
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Email   string `json:"email"`
		Channel string `json:"channel"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	channel := otp.ChannelEmail
	if in.Channel == string(otp.ChannelWhatsApp) {
		channel = otp.ChannelWhatsApp
	}
	// RequestPasswordReset silently no-ops for unknown users; the response
	// is unconditionally 200 to avoid account enumeration.
	_ = a.authx.RequestPasswordReset(r.Context(), in.Email, channel)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Email       string `json:"email"`
		OTP         string `json:"otp"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := a.authx.ResetPassword(r.Context(), in.Email, in.OTP, in.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
