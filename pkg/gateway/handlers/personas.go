package handlers

import (
	"context"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type PersonaStore interface {
	CreatePersona(ctx context.Context, p store.Persona) (store.Persona, error)
	UpdatePersona(ctx context.Context, p store.Persona) (store.Persona, error)
	ListPersonas(ctx context.Context, userID string) ([]store.Persona, error)
	DeletePersona(ctx context.Context, userID, id string) error
}

// PersonasHandler manages user-defined personas. Builtins are compiled in and
// never pass through here.
type PersonasHandler struct {
	Store  PersonaStore
	Config config.Config
}

type personaRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Instruction string   `json:"instruction"`
	Triggers    []string `json:"triggers"`
}

func (req personaRequest) validate() error {
	if req.Name == "" {
		return core.NewInvalidRequestErrorWithParam("name is required", "name")
	}
	if req.Instruction == "" {
		return core.NewInvalidRequestErrorWithParam("instruction is required", "instruction")
	}
	return nil
}

func (h *PersonasHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	personas, err := h.Store.ListPersonas(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]personaPayload, 0, len(personas))
	for _, persona := range personas {
		out = append(out, toPersonaPayload(persona))
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": out})
}

func (h *PersonasHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req personaRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	persona, err := h.Store.CreatePersona(r.Context(), store.Persona{
		UserID:      p.ID(),
		Name:        req.Name,
		Description: req.Description,
		Instruction: req.Instruction,
		Triggers:    req.Triggers,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonaPayload(persona))
}

func (h *PersonasHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req personaRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	persona, err := h.Store.UpdatePersona(r.Context(), store.Persona{
		ID:          r.PathValue("id"),
		UserID:      p.ID(),
		Name:        req.Name,
		Description: req.Description,
		Instruction: req.Instruction,
		Triggers:    req.Triggers,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonaPayload(persona))
}

func (h *PersonasHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.DeletePersona(r.Context(), p.ID(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
