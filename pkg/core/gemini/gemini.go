// Package gemini adapts the Google GenAI SDK to the live session core and
// the text/image endpoints. All SDK types stay inside this package; the rest
// of the tree works against pkg/core/live interfaces.
package gemini

import (
	"context"
	"log/slog"

	"google.golang.org/genai"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// Model ids.
const (
	// ModelLive is the realtime native-audio model behind voice sessions.
	ModelLive = "gemini-2.5-flash-native-audio-preview-12-2025"
	// ModelText serves non-streaming chat turns.
	ModelText = "gemini-3-flash-preview"
	// ModelImage serves image generation.
	ModelImage = "gemini-2.5-flash-image"
	// ModelTitle summarizes conversation titles; cheap text model.
	ModelTitle = ModelText
)

// Client wraps one GenAI API client.
type Client struct {
	api    *genai.Client
	logger *slog.Logger
}

// New builds a client against the Gemini API backend.
func New(ctx context.Context, apiKey string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, core.NewAuthenticationError("gemini api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewTransportError("failed to create gemini client", err)
	}
	return &Client{api: api, logger: logger}, nil
}
