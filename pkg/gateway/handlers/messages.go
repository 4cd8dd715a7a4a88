package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/agents"
	"github.com/hypley-ia/hypley-live/pkg/core/gemini"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

// Text chat bills at the same flat rate as voice.
const textUSDPerMillionTokens = 3.0

type ChatStore interface {
	GetUser(ctx context.Context, id string) (store.User, error)
	GetConversation(ctx context.Context, userID, id string) (store.Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]store.Message, error)
	AppendMessage(ctx context.Context, m store.Message) (store.Message, error)
	SetConversationAgent(ctx context.Context, userID, id, agentID string) error
	SetConversationTitle(ctx context.Context, userID, id, title string) error
	SetMessageSummary(ctx context.Context, userID, conversationID, messageID, summary string) error
	CustomAgents(ctx context.Context, userID string) ([]agents.Agent, error)
	Increment(ctx context.Context, userID string, tokens int64, cost float64) error
}

// TextGenerator is the model client surface the chat endpoint needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, req gemini.TextRequest) (gemini.TextResponse, error)
	SummarizeTitle(ctx context.Context, firstMessage string) string
}

// MessagesHandler serves conversation history and the text chat turn: persist
// the user message, run the model with the conversation's persona, persist and
// return the reply, and bill the tokens.
type MessagesHandler struct {
	Store  ChatStore
	Model  TextGenerator
	Config config.Config
	Logger *slog.Logger
}

func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := h.Store.ListMessages(r.Context(), p.ID(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]messagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessagePayload(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	convID := r.PathValue("id")

	var req struct {
		Text      string `json:"text"`
		Block     string `json:"block"`
		ImageB64  string `json:"image_b64"`
		ImageMIME string `json:"image_mime"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("text is required", "text"))
		return
	}
	switch req.Block {
	case "", store.MessageBlockText, store.MessageBlockCode, store.MessageBlockPrompt:
	default:
		writeError(w, r, core.NewInvalidRequestErrorWithParam("block must be text, code or prompt", "block"))
		return
	}
	var image []byte
	if req.ImageB64 != "" {
		image, err = base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("image_b64 is not valid base64", "image_b64"))
			return
		}
	}

	user, err := h.Store.GetUser(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user.RemainingTokens <= 0 {
		writeError(w, r, core.NewQuotaError("token balance exhausted", nil))
		return
	}

	conv, err := h.Store.GetConversation(r.Context(), p.ID(), convID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	custom, err := h.Store.CustomAgents(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Trigger words in the user's message hand the conversation to another
	// persona before the model runs.
	agentID := conv.AgentID
	if next, ok := agents.MatchTrigger(req.Text, agentID, custom); ok {
		if err := h.Store.SetConversationAgent(r.Context(), p.ID(), convID, next); err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := h.Store.AppendMessage(r.Context(), store.Message{
			ConversationID: convID,
			Role:           store.RoleSystem,
			AgentID:        next,
			Kind:           store.MessageKindSystem,
			Content:        "agent_switch:" + next,
		}); err != nil {
			h.Logger.Warn("switch marker not persisted", "error", err)
		}
		agentID = next
	}

	agent, err := agents.Resolve(agentID, custom)
	if err != nil {
		writeError(w, r, err)
		return
	}

	history, err := h.Store.ListMessages(r.Context(), p.ID(), convID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	turns := make([]gemini.ChatTurn, 0, len(history))
	for _, m := range history {
		if m.Kind != store.MessageKindText {
			continue
		}
		turns = append(turns, gemini.ChatTurn{Role: m.Role, Text: m.Content})
	}

	if _, err := h.Store.AppendMessage(r.Context(), store.Message{
		ConversationID: convID,
		Role:           store.RoleUser,
		Kind:           store.MessageKindText,
		Block:          req.Block,
		Content:        req.Text,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.Model.GenerateText(r.Context(), gemini.TextRequest{
		SystemInstruction: agents.Instruction(agent, user.SummarizedMode),
		History:           turns,
		Prompt:            req.Text,
		Image:             image,
		ImageMIME:         req.ImageMIME,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := h.Store.AppendMessage(r.Context(), store.Message{
		ConversationID: convID,
		Role:           store.RoleModel,
		AgentID:        agent.ID,
		Kind:           store.MessageKindText,
		Content:        resp.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	tokens := resp.Usage.TotalTokens
	if tokens > 0 {
		cost := float64(tokens) * textUSDPerMillionTokens / 1_000_000
		if err := h.Store.Increment(r.Context(), p.ID(), tokens, cost); err != nil {
			h.Logger.Warn("usage not recorded", "error", err, "tokens", tokens)
		}
	}

	if conv.Title == "" {
		title := h.Model.SummarizeTitle(r.Context(), req.Text)
		if title != "" {
			if err := h.Store.SetConversationTitle(r.Context(), p.ID(), convID, title); err != nil {
				h.Logger.Warn("title not persisted", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  toMessagePayload(reply),
		"agent_id": agent.ID,
		"usage": map[string]int64{
			"prompt_tokens":   resp.Usage.PromptTokens,
			"response_tokens": resp.Usage.ResponseTokens,
			"total_tokens":    tokens,
		},
	})
}

// SetSummary backfills the display summary of one message. Summaries are the
// only field a message accepts after creation.
func (h *MessagesHandler) SetSummary(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Summary string `json:"summary"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Summary == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("summary is required", "summary"))
		return
	}
	if err := h.Store.SetMessageSummary(r.Context(), p.ID(), r.PathValue("id"), r.PathValue("messageID"), req.Summary); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
