package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/sse"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

const watchPingInterval = 25 * time.Second

type WatchStore interface {
	Watch(ctx context.Context) (<-chan store.Change, error)
	GetConversation(ctx context.Context, userID, id string) (store.Conversation, error)
}

// WatchHandler streams database change notifications to the client over SSE.
// Clients use it to refresh conversation lists and message panes without
// polling. Only changes belonging to the authenticated user pass the filter.
type WatchHandler struct {
	Store  WatchStore
	Logger *slog.Logger
}

type changePayload struct {
	Table          string `json:"table"`
	Op             string `json:"op"`
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sw, err := sse.New(w)
	if err != nil {
		writeError(w, r, core.NewTransportError("streaming unsupported", err))
		return
	}

	ctx := r.Context()
	changes, err := h.Store.Watch(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = sw.Ping()

	// Message changes carry only a conversation id. Ownership is settled with
	// one lookup per conversation and remembered for the stream's lifetime.
	owned := make(map[string]bool)
	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := sw.Ping(); err != nil {
				return
			}
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !h.visible(ctx, p.ID(), c, owned) {
				continue
			}
			err := sw.Send("change", changePayload{
				Table:          c.Table,
				Op:             c.Op,
				ID:             c.ID,
				ConversationID: c.ConversationID,
			})
			if err != nil {
				return
			}
		}
	}
}

func (h *WatchHandler) visible(ctx context.Context, userID string, c store.Change, owned map[string]bool) bool {
	if c.UserID != "" {
		return c.UserID == userID
	}
	if c.ConversationID == "" {
		return false
	}
	if ok, seen := owned[c.ConversationID]; seen {
		return ok
	}
	_, err := h.Store.GetConversation(ctx, userID, c.ConversationID)
	owned[c.ConversationID] = err == nil
	return err == nil
}
