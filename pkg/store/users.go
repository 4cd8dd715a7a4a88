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

// User is one account row.
type User struct {
	ID              string
	Email           string
	DisplayName     string
	WorkOSID        string
	IsAdmin         bool
	Plan            string
	RemainingTokens int64
	UsedTokens      int64
	UsedCost        float64
	SummarizedMode  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const userColumns = `id, email, display_name, COALESCE(workos_id, ''), is_admin, plan,
	remaining_tokens, used_tokens, used_cost, summarized_mode, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.WorkOSID, &u.IsAdmin, &u.Plan,
		&u.RemainingTokens, &u.UsedTokens, &u.UsedCost, &u.SummarizedMode, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, core.NewNotFoundError("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("store: scan user: %w", err)
	}
	return u, nil
}

// CreateUser inserts an account. InitialTokens seeds the ledger (free-tier
// grant on signup).
func (s *Store) CreateUser(ctx context.Context, email, displayName, workosID string, initialTokens int64) (User, error) {
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, workos_id, remaining_tokens)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING `+userColumns,
		id, email, displayName, workosID, initialTokens)
	return scanUser(row)
}

// GetUser fetches by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail fetches by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// ListUsers returns all accounts, most recent first. Admin surface.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetSummarizedMode toggles short-answer mode.
func (s *Store) SetSummarizedMode(ctx context.Context, userID string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET summarized_mode = $2, updated_at = now() WHERE id = $1`,
		userID, enabled)
	if err != nil {
		return fmt.Errorf("store: set summarized mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("user not found")
	}
	return nil
}

// Increment applies one usage delta. Consumption is always a relative update
// so concurrent sessions cannot clobber each other; remaining_tokens floors
// at zero. Implements usage.Ledger.
func (s *Store) Increment(ctx context.Context, userID string, tokens int64, cost float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			remaining_tokens = GREATEST(remaining_tokens - $2, 0),
			used_tokens = used_tokens + $2,
			used_cost = used_cost + $3,
			updated_at = now()
		WHERE id = $1`,
		userID, tokens, cost)
	if err != nil {
		return core.NewPersistenceError("usage increment failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("user not found")
	}
	return nil
}

// GrantTokens adds tokens to an account's balance: admin grants and paid
// top-ups. Also a relative update, never a set.
func (s *Store) GrantTokens(ctx context.Context, userID string, tokens int64) error {
	if tokens <= 0 {
		return core.NewInvalidRequestErrorWithParam("token grant must be positive", "tokens")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET remaining_tokens = remaining_tokens + $2, updated_at = now()
		WHERE id = $1`,
		userID, tokens)
	if err != nil {
		return core.NewPersistenceError("token grant failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("user not found")
	}
	return nil
}
