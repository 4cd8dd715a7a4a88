package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/live"
)

// ChatTurn is one prior turn of a text conversation.
type ChatTurn struct {
	// Role is "user" or "model".
	Role string
	Text string
}

// TextRequest is a non-streaming chat turn.
type TextRequest struct {
	SystemInstruction string
	History           []ChatTurn
	Prompt            string
	// Image is an optional inline attachment.
	Image     []byte
	ImageMIME string
}

// TextResponse carries the model reply and its token accounting.
type TextResponse struct {
	Text  string
	Usage live.Usage
}

// GenerateText runs one chat turn. Search grounding is attached unless an
// image is included; the upstream rejects the combination.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.RoleUser
		if turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mime, Data: req.Image},
		})
	}
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})

	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if len(req.Image) == 0 {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := withQuotaRetry(ctx, c.logger, "generate.text", quotaBaseDelay, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, ModelText, contents, cfg)
	})
	if err != nil {
		if core.IsType(err, core.ErrQuota) {
			return TextResponse{}, err
		}
		return TextResponse{}, core.NewTransportError("text generation failed", err)
	}

	out := TextResponse{Text: resp.Text()}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = live.Usage{
			PromptTokens:   int64(um.PromptTokenCount),
			ResponseTokens: int64(um.CandidatesTokenCount),
			TotalTokens:    int64(um.TotalTokenCount),
		}
	}
	return out, nil
}

// SummarizeTitle condenses the first user message into a short conversation
// title. Failures fall back to a prompt prefix; a title is never worth
// failing a conversation for.
func (c *Client) SummarizeTitle(ctx context.Context, firstMessage string) string {
	prompt := "Resuma a mensagem a seguir em um título curto de no máximo cinco palavras, sem aspas nem pontuação final:\n\n" + firstMessage
	resp, err := c.api.Models.GenerateContent(ctx, ModelTitle,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}}}, nil)
	if err != nil {
		c.logger.Warn("title summarization failed", "error", err)
		return fallbackTitle(firstMessage)
	}
	title := strings.TrimSpace(strings.Trim(resp.Text(), `"`))
	if title == "" {
		return fallbackTitle(firstMessage)
	}
	return title
}

func fallbackTitle(message string) string {
	const max = 40
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) <= max {
		return message
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

// ImageRequest asks for one generated image.
type ImageRequest struct {
	Prompt string
	// AspectRatio like "1:1", "16:9". Empty lets the model choose.
	AspectRatio string
}

// ImageResult is one generated image.
type ImageResult struct {
	Data     []byte
	MIMEType string
}

// GenerateImage produces an image for the prompt.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return ImageResult{}, core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if req.AspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := withQuotaRetry(ctx, c.logger, "generate.image", quotaBaseDelay, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, ModelImage,
			[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Prompt}}}}, cfg)
	})
	if err != nil {
		if core.IsType(err, core.ErrQuota) {
			return ImageResult{}, err
		}
		return ImageResult{}, core.NewTransportError("image generation failed", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return ImageResult{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}
	return ImageResult{}, core.NewTransportError("model returned no image", nil)
}
