package live

import "context"

// ConnectConfig carries everything the upstream needs to open a realtime
// stream.
type ConnectConfig struct {
	Model             string
	SystemInstruction string
	// Voice selects the prebuilt voice for audio responses.
	Voice string
	Tools []ToolDeclaration
	// EnableSearch attaches the provider's search grounding tool.
	EnableSearch bool
}

// Dialer opens realtime streams. The provider adapter implements it; tests
// substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectConfig) (Stream, error)
}

// Stream is one open realtime connection.
type Stream interface {
	// SendAudio forwards one base64 PCM16 microphone frame.
	SendAudio(ctx context.Context, encoded string) error
	// SendImage forwards one JPEG vision frame (camera or screen capture).
	SendImage(ctx context.Context, jpeg []byte) error
	// SendToolResponses answers tool calls by id.
	SendToolResponses(ctx context.Context, responses []ToolResponse) error
	// Recv blocks for the next server event. It returns an error when the
	// stream closes or fails.
	Recv() (ServerEvent, error)
	Close() error
}

// ServerEvent is one message from the upstream stream, flattened to the
// fields the coordinator routes on. Zero-value fields are absent.
type ServerEvent struct {
	// Audio is raw PCM16 assistant audio in the output format.
	Audio []byte
	// InputTranscript is a user speech transcription delta.
	InputTranscript string
	// OutputTranscript is a model speech transcription delta.
	OutputTranscript string
	// TurnComplete marks the end of a model turn.
	TurnComplete bool
	// Interrupted means the user barged in; queued audio is stale.
	Interrupted bool
	// ToolCalls are function invocations awaiting responses.
	ToolCalls []ToolCall
	// Usage carries token accounting when the upstream reports it.
	Usage *Usage
}

// ToolCall is one function invocation from the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse answers one ToolCall.
type ToolResponse struct {
	ID     string
	Name   string
	Result map[string]any
}

// Usage is per-response token accounting.
type Usage struct {
	PromptTokens   int64
	ResponseTokens int64
	TotalTokens    int64
}
