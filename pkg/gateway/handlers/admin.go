package handlers

import (
	"context"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type AdminStore interface {
	ListUsers(ctx context.Context) ([]store.User, error)
	GrantTokens(ctx context.Context, userID string, tokens int64) error
	GetUser(ctx context.Context, id string) (store.User, error)
	CreateNotification(ctx context.Context, userID, title, body string) (store.Notification, error)
	ListBugReports(ctx context.Context) ([]store.BugReport, error)
	SetBugReportStatus(ctx context.Context, id, status string) error
}

// AdminHandler is the operator surface: account listing, token grants,
// announcements, and bug report triage. Mounted behind the admin middleware.
type AdminHandler struct {
	Store  AdminStore
	Config config.Config
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userPayload, 0, len(users))
	for _, u := range users {
		out = append(out, toUserPayload(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *AdminHandler) GrantTokens(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	var req struct {
		Tokens int64 `json:"tokens"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Tokens <= 0 {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("tokens must be positive", "tokens"))
		return
	}
	if err := h.Store.GrantTokens(r.Context(), userID, req.Tokens); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}

// CreateNotification publishes an announcement. Empty user_id broadcasts.
func (h *AdminHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Title == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("title is required", "title"))
		return
	}
	n, err := h.Store.CreateNotification(r.Context(), req.UserID, req.Title, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNotificationPayload(n))
}

func (h *AdminHandler) ListBugReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Store.ListBugReports(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bugReportPayload, 0, len(reports))
	for _, b := range reports {
		out = append(out, toBugReportPayload(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bug_reports": out})
}

func (h *AdminHandler) SetBugReportStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	switch req.Status {
	case store.BugStatusOpen, store.BugStatusReviewed, store.BugStatusResolved:
	default:
		writeError(w, r, core.NewInvalidRequestErrorWithParam("unknown status", "status"))
		return
	}
	if err := h.Store.SetBugReportStatus(r.Context(), r.PathValue("id"), req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
