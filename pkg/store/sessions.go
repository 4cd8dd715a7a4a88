package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// DefaultSessionTTL is how long a bearer token stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// AuthSession is one bearer token row.
type AuthSession struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateSession mints a bearer token for a user.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (AuthSession, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return AuthSession{}, fmt.Errorf("store: session token: %w", err)
	}
	sess := AuthSession{
		Token:     hex.EncodeToString(raw),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO auth_sessions (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		sess.Token, sess.UserID, sess.ExpiresAt).Scan(&sess.CreatedAt)
	if err != nil {
		return AuthSession{}, core.NewPersistenceError("session create failed", err)
	}
	return sess, nil
}

// ResolveSession returns the user behind a live token. Expired and unknown
// tokens both resolve to an authentication error.
func (s *Store) ResolveSession(ctx context.Context, token string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		JOIN auth_sessions ON auth_sessions.user_id = users.id
		WHERE auth_sessions.token = $1 AND auth_sessions.expires_at > now()`,
		token)
	u, err := scanUser(row)
	if err != nil {
		if core.IsType(err, core.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
			return User{}, core.NewAuthenticationError("invalid or expired token")
		}
		return User{}, err
	}
	return u, nil
}

// DeleteSession revokes one token. Logout.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token); err != nil {
		return core.NewPersistenceError("session delete failed", err)
	}
	return nil
}

// PruneSessions drops expired tokens. Run periodically.
func (s *Store) PruneSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, core.NewPersistenceError("session prune failed", err)
	}
	return tag.RowsAffected(), nil
}
