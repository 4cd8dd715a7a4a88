package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/store"
)

const persistTimeout = 5 * time.Second

// HistoryStore is the slice of the store a live session writes through.
type HistoryStore interface {
	GetConversation(ctx context.Context, userID, id string) (store.Conversation, error)
	CreateConversation(ctx context.Context, userID, agentID, title string) (store.Conversation, error)
	SetConversationAgent(ctx context.Context, userID, id, agentID string) error
	AppendMessage(ctx context.Context, m store.Message) (store.Message, error)
}

// historyWriter persists finalized utterances and agent switch markers.
// Writes are best-effort: a store hiccup must not take the voice session down,
// so failures are logged and the session continues.
type historyWriter struct {
	store          HistoryStore
	logger         *slog.Logger
	userID         string
	conversationID string
}

func newHistoryWriter(st HistoryStore, logger *slog.Logger, userID, conversationID string) *historyWriter {
	return &historyWriter{store: st, logger: logger, userID: userID, conversationID: conversationID}
}

func (h *historyWriter) appendUser(text string) {
	h.append(store.Message{
		ConversationID: h.conversationID,
		Role:           store.RoleUser,
		Kind:           store.MessageKindText,
		Content:        text,
	})
}

func (h *historyWriter) appendModel(agentID, text string) {
	h.append(store.Message{
		ConversationID: h.conversationID,
		Role:           store.RoleModel,
		AgentID:        agentID,
		Kind:           store.MessageKindText,
		Content:        text,
	})
}

// appendSwitchMarker records the handoff in history so the conversation view
// can show where one persona stopped and another took over.
func (h *historyWriter) appendSwitchMarker(agentID string) {
	h.append(store.Message{
		ConversationID: h.conversationID,
		Role:           store.RoleSystem,
		AgentID:        agentID,
		Kind:           store.MessageKindSystem,
		Content:        "agent_switch:" + agentID,
	})
	if h.store == nil || h.conversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.store.SetConversationAgent(ctx, h.userID, h.conversationID, agentID); err != nil {
		h.logger.Warn("conversation agent update failed", "error", err)
	}
}

func (h *historyWriter) append(m store.Message) {
	if h.store == nil || h.conversationID == "" || m.Content == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := h.store.AppendMessage(ctx, m); err != nil {
		h.logger.Warn("history append failed", "error", err, "conversation_id", h.conversationID)
	}
}
