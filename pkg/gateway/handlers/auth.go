package handlers

import (
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/auth"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
)

// AuthHandler exposes signup, login, logout, and password reset. Mounted on
// the public mux; only logout requires a bearer token.
type AuthHandler struct {
	Auth   *auth.Authenticator
	Config config.Config
}

type sessionPayload struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	User      userPayload `json:"user"`
}

func toSessionPayload(s auth.Session) sessionPayload {
	return sessionPayload{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toUserPayload(s.User)}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.Auth.Register(r.Context(), auth.Credentials{Email: req.Email, Password: req.Password}, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionPayload(sess))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &creds); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.Auth.Login(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionPayload(sess))
}

// PasswordReset always answers 202 so the endpoint cannot be used to probe
// which emails have accounts.
func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		ResetURL string `json:"reset_url"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("email is required", "email"))
		return
	}
	h.Auth.RequestPasswordReset(r.Context(), req.Email, req.ResetURL)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.ParseBearer(r)
	if !ok {
		writeError(w, r, core.NewAuthenticationError("missing bearer token"))
		return
	}
	if err := h.Auth.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
