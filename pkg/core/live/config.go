package live

import (
	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/audio"
)

// DefaultVoice is the prebuilt voice used when the client does not pick one.
const DefaultVoice = "Kore"

// SessionConfig describes one live session.
type SessionConfig struct {
	// Model is the realtime model id.
	Model string
	// AgentID names the active persona; it travels with transcripts so the
	// conversation history attributes turns correctly.
	AgentID string
	// SystemInstruction is the resolved persona instruction text.
	SystemInstruction string
	// Voice is the prebuilt voice name. Empty means DefaultVoice.
	Voice string
	// InputFormat is the microphone capture shape.
	InputFormat audio.Config
	// OutputFormat is the assistant playback shape.
	OutputFormat audio.Config
	// EnableSearch attaches search grounding to the stream.
	EnableSearch bool
}

// withDefaults fills unset fields.
func (c SessionConfig) withDefaults() SessionConfig {
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.InputFormat.SampleRate == 0 {
		c.InputFormat = audio.DefaultInput
	}
	if c.OutputFormat.SampleRate == 0 {
		c.OutputFormat = audio.DefaultOutput
	}
	return c
}

// Validate rejects configs that cannot open a stream.
func (c SessionConfig) Validate() error {
	if c.Model == "" {
		return core.NewInvalidRequestErrorWithParam("model is required", "model")
	}
	if c.SystemInstruction == "" {
		return core.NewInvalidRequestErrorWithParam("system instruction is required", "system_instruction")
	}
	return nil
}
