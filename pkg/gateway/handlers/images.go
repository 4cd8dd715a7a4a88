package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/gemini"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req gemini.ImageRequest) (gemini.ImageResult, error)
}

// BlobUploader stores generated images and screenshots. Nil disables uploads;
// generated images then come back as data URLs.
type BlobUploader interface {
	Upload(ctx context.Context, prefix, ext, contentType string, data []byte) (string, error)
}

type ImageMessageStore interface {
	GetConversation(ctx context.Context, userID, id string) (store.Conversation, error)
	AppendMessage(ctx context.Context, m store.Message) (store.Message, error)
}

// ImagesHandler generates images on request. When the request names a
// conversation the result is appended there as an image message.
type ImagesHandler struct {
	Model  ImageGenerator
	Blob   BlobUploader
	Store  ImageMessageStore
	Config config.Config
	Logger *slog.Logger
}

func (h *ImagesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Prompt         string `json:"prompt"`
		AspectRatio    string `json:"aspect_ratio"`
		ConversationID string `json:"conversation_id"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Prompt == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt"))
		return
	}

	result, err := h.Model.GenerateImage(r.Context(), gemini.ImageRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	url := h.imageURL(r.Context(), result)

	if req.ConversationID != "" {
		if _, err := h.Store.GetConversation(r.Context(), p.ID(), req.ConversationID); err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := h.Store.AppendMessage(r.Context(), store.Message{
			ConversationID: req.ConversationID,
			Role:           store.RoleModel,
			Kind:           store.MessageKindImage,
			Content:        req.Prompt,
			ImageURL:       url,
		}); err != nil {
			h.Logger.Warn("generated image not persisted", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url":       url,
		"mime_type": result.MIMEType,
	})
}

func (h *ImagesHandler) imageURL(ctx context.Context, result gemini.ImageResult) string {
	if h.Blob != nil {
		url, err := h.Blob.Upload(ctx, "generated", extFromMIME(result.MIMEType), result.MIMEType, result.Data)
		if err == nil {
			return url
		}
		h.Logger.Warn("image upload failed, falling back to data url", "error", err)
	}
	return "data:" + result.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(result.Data)
}

func extFromMIME(mime string) string {
	switch {
	case strings.Contains(mime, "png"):
		return ".png"
	case strings.Contains(mime, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
