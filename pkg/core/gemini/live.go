package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/audio"
	"github.com/hypley-ia/hypley-live/pkg/core/live"
)

// Dial opens one realtime stream. It implements live.Dialer. Quota failures
// during connect are retried with backoff before surfacing.
func (c *Client) Dial(ctx context.Context, cfg live.ConnectConfig) (live.Stream, error) {
	model := cfg.Model
	if model == "" {
		model = ModelLive
	}

	connect := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		},
		Tools:                    buildTools(cfg.Tools, cfg.EnableSearch),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	session, err := withQuotaRetry(ctx, c.logger, "live.connect", quotaBaseDelay, func() (*genai.Session, error) {
		return c.api.Live.Connect(ctx, model, connect)
	})
	if err != nil {
		return nil, err
	}
	return &liveStream{session: session}, nil
}

func buildTools(decls []live.ToolDeclaration, search bool) []*genai.Tool {
	var tools []*genai.Tool
	if search {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if len(decls) > 0 {
		fns := make([]*genai.FunctionDeclaration, 0, len(decls))
		for _, d := range decls {
			fns = append(fns, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schemaFromMap(d.Parameters),
			})
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: fns})
	}
	return tools
}

// schemaFromMap converts a JSON-schema object into the SDK schema type.
// Only the subset the builtin tools use is handled.
func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, _ := m["type"].(string); t != "" {
		s.Type = schemaType(t)
	}
	if d, _ := m["description"].(string); d != "" {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = schemaFromMap(sub)
			}
		}
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, r := range req {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaFromMap(items)
	}
	return s
}

func schemaType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "boolean":
		return genai.TypeBoolean
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}

// liveStream adapts one SDK session to live.Stream.
type liveStream struct {
	session *genai.Session
}

func (s *liveStream) SendAudio(ctx context.Context, encoded string) error {
	// The wire format is base64 PCM16; the SDK wants raw bytes.
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return core.NewDecodeError("audio frame is not valid base64")
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", audio.DefaultInput.SampleRate),
			Data:     raw,
		},
	})
}

func (s *liveStream) SendImage(ctx context.Context, jpeg []byte) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{MIMEType: "image/jpeg", Data: jpeg},
	})
}

func (s *liveStream) SendToolResponses(ctx context.Context, responses []live.ToolResponse) error {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Result,
		})
	}
	return s.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

func (s *liveStream) Recv() (live.ServerEvent, error) {
	msg, err := s.session.Receive()
	if err != nil {
		return live.ServerEvent{}, err
	}
	return flatten(msg), nil
}

func (s *liveStream) Close() error {
	return s.session.Close()
}

// flatten maps one server message onto the coordinator's event shape.
func flatten(msg *genai.LiveServerMessage) live.ServerEvent {
	var ev live.ServerEvent
	if sc := msg.ServerContent; sc != nil {
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
		if sc.InputTranscription != nil {
			ev.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					ev.Audio = append(ev.Audio, part.InlineData.Data...)
				}
			}
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			ev.ToolCalls = append(ev.ToolCalls, live.ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}
	if um := msg.UsageMetadata; um != nil {
		ev.Usage = &live.Usage{
			PromptTokens:   int64(um.PromptTokenCount),
			ResponseTokens: int64(um.ResponseTokenCount),
			TotalTokens:    int64(um.TotalTokenCount),
		}
	}
	return ev
}
