package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChangeChannel is the Postgres NOTIFY channel fed by the schema triggers.
const ChangeChannel = "hypley_changes"

// Change is one row-change notification from the database.
type Change struct {
	Table          string `json:"table"`
	Op             string `json:"op"`
	ID             string `json:"id"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func parseChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("store: change payload: %w", err)
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("store: change payload missing table")
	}
	return c, nil
}

// Watch subscribes to the change feed. The returned channel closes when ctx
// ends or the listening connection dies; a slow consumer loses notifications
// rather than stalling the feed (watchers re-read state anyway).
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: watch acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("store: listen: %w", err)
	}

	ch := make(chan Change, 64)
	go func() {
		defer close(ch)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("change feed connection lost", "error", err)
				}
				return
			}
			c, err := parseChange(n.Payload)
			if err != nil {
				s.logger.Warn("bad change payload", "error", err)
				continue
			}
			select {
			case ch <- c:
			default:
			}
		}
	}()
	return ch, nil
}
