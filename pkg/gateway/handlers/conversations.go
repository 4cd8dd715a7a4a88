package handlers

import (
	"context"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/agents"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, agentID, title string) (store.Conversation, error)
	GetConversation(ctx context.Context, userID, id string) (store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	SetConversationTitle(ctx context.Context, userID, id, title string) error
	SetConversationAgent(ctx context.Context, userID, id, agentID string) error
	SetConversationArchived(ctx context.Context, userID, id string, archived bool) error
	DeleteConversation(ctx context.Context, userID, id string) error
	CustomAgents(ctx context.Context, userID string) ([]agents.Agent, error)
}

type ConversationsHandler struct {
	Store  ConversationStore
	Config config.Config
}

func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	convs, err := h.Store.ListConversations(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]conversationPayload, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationPayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (h *ConversationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		AgentID string `json:"agent_id"`
		Title   string `json:"title"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.AgentID == "" {
		req.AgentID = agents.DefaultAgentID
	}
	if err := h.resolveAgent(r.Context(), p.ID(), req.AgentID); err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := h.Store.CreateConversation(r.Context(), p.ID(), req.AgentID, req.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationPayload(conv))
}

func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := h.Store.GetConversation(r.Context(), p.ID(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationPayload(conv))
}

func (h *ConversationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	var req struct {
		Title    *string `json:"title"`
		AgentID  *string `json:"agent_id"`
		Archived *bool   `json:"archived"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Title == nil && req.AgentID == nil && req.Archived == nil {
		writeError(w, r, core.NewInvalidRequestError("nothing to update"))
		return
	}
	if req.Title != nil {
		if err := h.Store.SetConversationTitle(r.Context(), p.ID(), id, *req.Title); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.AgentID != nil {
		if err := h.resolveAgent(r.Context(), p.ID(), *req.AgentID); err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.Store.SetConversationAgent(r.Context(), p.ID(), id, *req.AgentID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Archived != nil {
		if err := h.Store.SetConversationArchived(r.Context(), p.ID(), id, *req.Archived); err != nil {
			writeError(w, r, err)
			return
		}
	}
	conv, err := h.Store.GetConversation(r.Context(), p.ID(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationPayload(conv))
}

func (h *ConversationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.DeleteConversation(r.Context(), p.ID(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveAgent rejects persona ids that exist neither as builtins nor among
// the user's custom personas.
func (h *ConversationsHandler) resolveAgent(ctx context.Context, userID, agentID string) error {
	custom, err := h.Store.CustomAgents(ctx, userID)
	if err != nil {
		return err
	}
	_, err = agents.Resolve(agentID, custom)
	return err
}
