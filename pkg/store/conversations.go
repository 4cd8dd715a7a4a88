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

// Conversation is one chat thread. Archived threads are soft-deleted: kept,
// fetchable by id, but hidden from the active list.
type Conversation struct {
	ID        string
	UserID    string
	AgentID   string
	Title     string
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const conversationColumns = `id, user_id, agent_id, title, archived, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.AgentID, &c.Title, &c.Archived, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, core.NewNotFoundError("conversation not found")
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: scan conversation: %w", err)
	}
	return c, nil
}

// CreateConversation starts a thread for a user.
func (s *Store) CreateConversation(ctx context.Context, userID, agentID, title string) (Conversation, error) {
	if agentID == "" {
		agentID = "default"
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, agent_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING `+conversationColumns,
		uuid.NewString(), userID, agentID, title)
	return scanConversation(row)
}

// GetConversation fetches one thread, scoped to its owner.
func (s *Store) GetConversation(ctx context.Context, userID, id string) (Conversation, error) {
	return scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID))
}

// ListConversations returns a user's active threads, most recently touched
// first. Archived threads are excluded.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = $1 AND NOT archived ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetConversationTitle renames a thread.
func (s *Store) SetConversationTitle(ctx context.Context, userID, id, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET title = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		id, userID, title)
	if err != nil {
		return core.NewPersistenceError("conversation rename failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("conversation not found")
	}
	return nil
}

// SetConversationAgent records a persona switch on the thread.
func (s *Store) SetConversationAgent(ctx context.Context, userID, id, agentID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET agent_id = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		id, userID, agentID)
	if err != nil {
		return core.NewPersistenceError("conversation agent update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("conversation not found")
	}
	return nil
}

// SetConversationArchived soft-deletes or restores a thread. The row and its
// messages stay; only list visibility changes.
func (s *Store) SetConversationArchived(ctx context.Context, userID, id string, archived bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET archived = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		id, userID, archived)
	if err != nil {
		return core.NewPersistenceError("conversation archive failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("conversation not found")
	}
	return nil
}

// DeleteConversation removes a thread and, via cascade, its messages.
func (s *Store) DeleteConversation(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return core.NewPersistenceError("conversation delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("conversation not found")
	}
	return nil
}
