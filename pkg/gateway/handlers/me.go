package handlers

import (
	"context"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type AccountStore interface {
	GetUser(ctx context.Context, id string) (store.User, error)
	SetSummarizedMode(ctx context.Context, userID string, enabled bool) error
}

// MeHandler serves the authenticated account: profile, token balance, and the
// summarized-instruction preference.
type MeHandler struct {
	Store  AccountStore
	Config config.Config
}

// Get re-reads the row so the balance reflects usage recorded after login.
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.Store.GetUser(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		SummarizedMode *bool `json:"summarized_mode"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SummarizedMode != nil {
		if err := h.Store.SetSummarizedMode(r.Context(), p.ID(), *req.SummarizedMode); err != nil {
			writeError(w, r, err)
			return
		}
	}
	user, err := h.Store.GetUser(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}
