package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// Message kinds.
const (
	MessageKindText   = "text"
	MessageKindSystem = "system"
	MessageKindImage  = "image"
)

// Message roles.
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// Message content blocks. The block tag classifies how the client renders
// the content: prose, a code block, or a reusable prompt.
const (
	MessageBlockText   = "text"
	MessageBlockCode   = "code"
	MessageBlockPrompt = "prompt"
)

// Message is one turn in a conversation. System-kind messages mark events
// like persona switches; image-kind messages carry a generated image URL.
// Messages are immutable once written, except that Summary may be backfilled
// later for long content.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	AgentID        string
	Kind           string
	Block          string
	Content        string
	Summary        string
	ImageURL       string
	CreatedAt      time.Time
}

const messageColumns = `id, conversation_id, role, agent_id, kind, block, content, summary, image_url, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.AgentID, &m.Kind, &m.Block, &m.Content, &m.Summary, &m.ImageURL, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, core.NewNotFoundError("message not found")
	}
	if err != nil {
		return Message{}, fmt.Errorf("store: scan message: %w", err)
	}
	return m, nil
}

// AppendMessage adds one turn and bumps the conversation's updated_at so the
// thread list stays sorted by activity.
func (s *Store) AppendMessage(ctx context.Context, m Message) (Message, error) {
	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	if m.Block == "" {
		m.Block = MessageBlockText
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, core.NewPersistenceError("message append failed", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, agent_id, kind, block, content, summary, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+messageColumns,
		uuid.NewString(), m.ConversationID, m.Role, m.AgentID, m.Kind, m.Block, m.Content, m.Summary, m.ImageURL)
	saved, err := scanMessage(row)
	if err != nil {
		return Message{}, core.NewPersistenceError("message append failed", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`,
		m.ConversationID); err != nil {
		return Message{}, core.NewPersistenceError("conversation touch failed", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, core.NewPersistenceError("message append failed", err)
	}
	return saved, nil
}

// SetMessageSummary backfills the summary of one message. This is the only
// mutation messages support; ownership is checked through the conversation.
func (s *Store) SetMessageSummary(ctx context.Context, userID, conversationID, messageID, summary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET summary = $4
		FROM conversations
		WHERE messages.id = $3
		  AND messages.conversation_id = $2
		  AND conversations.id = messages.conversation_id
		  AND conversations.user_id = $1`,
		userID, conversationID, messageID, summary)
	if err != nil {
		return core.NewPersistenceError("message summary update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("message not found")
	}
	return nil
}

// ListMessages returns a conversation's turns in order. The owner check runs
// through the conversation row.
func (s *Store) ListMessages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 ORDER BY created_at`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
