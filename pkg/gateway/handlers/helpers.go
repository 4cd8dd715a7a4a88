// Package handlers implements the HTTP surface: auth, account, conversations
// and chat, personas, image generation, notifications, bug reports, billing,
// the admin endpoints, and the websocket entry point for live voice sessions.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/apierror"
	"github.com/hypley-ia/hypley-live/pkg/gateway/auth"
	"github.com/hypley-ia/hypley-live/pkg/gateway/mw"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

func requestID(r *http.Request) string {
	id, _ := mw.RequestIDFrom(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	coreErr, status := apierror.FromError(err, requestID(r))
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

// decodeJSON reads a bounded JSON body. maxBytes <= 0 means 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.NewInvalidRequestError("request body too large")
		}
		return core.NewDecodeError("invalid JSON body: " + err.Error())
	}
	return nil
}

// principal returns the authenticated account. Handlers behind the auth
// middleware can rely on it being present.
func principal(r *http.Request) (*auth.Principal, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || p == nil {
		return nil, core.NewAuthenticationError("not authenticated")
	}
	return p, nil
}

// Wire payloads. Store rows are not serialized directly so the JSON shape
// stays stable when columns change.

type userPayload struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	DisplayName     string  `json:"display_name"`
	IsAdmin         bool    `json:"is_admin"`
	Plan            string  `json:"plan"`
	RemainingTokens int64   `json:"remaining_tokens"`
	UsedTokens      int64   `json:"used_tokens"`
	UsedCost        float64 `json:"used_cost"`
	SummarizedMode  bool    `json:"summarized_mode"`
	CreatedAt       string  `json:"created_at"`
}

func toUserPayload(u store.User) userPayload {
	return userPayload{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		IsAdmin:         u.IsAdmin,
		Plan:            u.Plan,
		RemainingTokens: u.RemainingTokens,
		UsedTokens:      u.UsedTokens,
		UsedCost:        u.UsedCost,
		SummarizedMode:  u.SummarizedMode,
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type conversationPayload struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Title     string `json:"title"`
	Archived  bool   `json:"archived"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toConversationPayload(c store.Conversation) conversationPayload {
	return conversationPayload{
		ID:        c.ID,
		AgentID:   c.AgentID,
		Title:     c.Title,
		Archived:  c.Archived,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type messagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	AgentID        string `json:"agent_id,omitempty"`
	Kind           string `json:"kind"`
	Block          string `json:"block"`
	Content        string `json:"content"`
	Summary        string `json:"summary,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toMessagePayload(m store.Message) messagePayload {
	return messagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		AgentID:        m.AgentID,
		Kind:           m.Kind,
		Block:          m.Block,
		Content:        m.Content,
		Summary:        m.Summary,
		ImageURL:       m.ImageURL,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type personaPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Instruction string   `json:"instruction"`
	Triggers    []string `json:"triggers"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func toPersonaPayload(p store.Persona) personaPayload {
	triggers := p.Triggers
	if triggers == nil {
		triggers = []string{}
	}
	return personaPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Instruction: p.Instruction,
		Triggers:    triggers,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type notificationPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func toNotificationPayload(n store.Notification) notificationPayload {
	return notificationPayload{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type bugReportPayload struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id,omitempty"`
	Description   string `json:"description"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

func toBugReportPayload(b store.BugReport) bugReportPayload {
	return bugReportPayload{
		ID:            b.ID,
		UserID:        b.UserID,
		Description:   b.Description,
		ScreenshotURL: b.ScreenshotURL,
		Status:        b.Status,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
