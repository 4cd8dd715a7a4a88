package handlers

import (
	"context"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/store"
)

type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
}

type NotificationsHandler struct {
	Store NotificationStore
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.Store.ListNotifications(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]notificationPayload, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationPayload(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.MarkNotificationRead(r.Context(), p.ID(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
