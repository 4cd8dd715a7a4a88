package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/agents"
)

// Persona is one user-defined assistant persona.
type Persona struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Instruction string
	Triggers    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Agent converts the row into the core persona shape.
func (p Persona) Agent() agents.Agent {
	return agents.Agent{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Instruction: p.Instruction,
		Triggers:    p.Triggers,
	}
}

const personaColumns = `id, user_id, name, description, instruction, triggers, created_at, updated_at`

func scanPersona(row pgx.Row) (Persona, error) {
	var p Persona
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Instruction, &p.Triggers, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Persona{}, core.NewNotFoundError("persona not found")
	}
	if err != nil {
		return Persona{}, fmt.Errorf("store: scan persona: %w", err)
	}
	return p, nil
}

// CreatePersona saves a custom persona.
func (s *Store) CreatePersona(ctx context.Context, p Persona) (Persona, error) {
	if p.Name == "" || p.Instruction == "" {
		return Persona{}, core.NewInvalidRequestError("persona needs a name and an instruction")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO personas (id, user_id, name, description, instruction, triggers)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+personaColumns,
		uuid.NewString(), p.UserID, p.Name, p.Description, p.Instruction, p.Triggers)
	return scanPersona(row)
}

// UpdatePersona rewrites a custom persona, scoped to its owner.
func (s *Store) UpdatePersona(ctx context.Context, p Persona) (Persona, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE personas SET name = $3, description = $4, instruction = $5, triggers = $6, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+personaColumns,
		p.ID, p.UserID, p.Name, p.Description, p.Instruction, p.Triggers)
	return scanPersona(row)
}

// ListPersonas returns a user's custom personas.
func (s *Store) ListPersonas(ctx context.Context, userID string) ([]Persona, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+personaColumns+` FROM personas WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("store: list personas: %w", err)
	}
	defer rows.Close()

	var out []Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CustomAgents returns the user's personas in core form, for resolution
// alongside the builtins.
func (s *Store) CustomAgents(ctx context.Context, userID string) ([]agents.Agent, error) {
	personas, err := s.ListPersonas(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]agents.Agent, 0, len(personas))
	for _, p := range personas {
		out = append(out, p.Agent())
	}
	return out, nil
}

// DeletePersona removes a custom persona.
func (s *Store) DeletePersona(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM personas WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.NewPersistenceError("persona delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("persona not found")
	}
	return nil
}
