// Package protocol defines the JSON frames exchanged with browser clients
// over the live WebSocket. Inbound frames are validated here so the session
// code only ever sees well-formed messages.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ProtocolVersion1 = "1"

const (
	ImageSourceCamera = "camera"
	ImageSourceScreen = "screen"
)

const (
	ControlStopInput    = "stop_input"
	ControlStopPlayback = "stop_playback"
	ControlClose        = "close"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the PCM shape on one side of the stream.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientHello opens a live session. Everything except protocol_version is
// optional; the server fills defaults from the account and the agent roster.
type ClientHello struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ConversationID  string       `json:"conversation_id,omitempty"`
	AgentID         string       `json:"agent_id,omitempty"`
	Voice           string       `json:"voice,omitempty"`
	AudioIn         *AudioFormat `json:"audio_in,omitempty"`
	AudioOut        *AudioFormat `json:"audio_out,omitempty"`
	EnableSearch    bool         `json:"enable_search,omitempty"`
}

// ClientAudioFrame carries one base64 PCM frame captured by the browser.
type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

// ClientImageFrame carries one JPEG snapshot from the camera or a screen
// share, base64 encoded.
type ClientImageFrame struct {
	Type    string `json:"type"`
	Source  string `json:"source"`
	DataB64 string `json:"data_b64"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// DecodeClientMessage parses and validates one inbound frame. Errors are
// always *DecodeError.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "image_frame":
		var msg ClientImageFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid image_frame", "")
		}
		switch strings.TrimSpace(msg.Source) {
		case ImageSourceCamera, ImageSourceScreen:
		default:
			return nil, unsupported("unsupported image source", "source")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("image_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case ControlStopInput, ControlStopPlayback, ControlClose:
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	switch strings.TrimSpace(msg.ProtocolVersion) {
	case "":
		return badRequest("hello.protocol_version is required", "protocol_version")
	case ProtocolVersion1:
	default:
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if err := validateFormat(msg.AudioIn, "audio_in"); err != nil {
		return err
	}
	if err := validateFormat(msg.AudioOut, "audio_out"); err != nil {
		return err
	}
	return nil
}

func validateFormat(f *AudioFormat, param string) error {
	if f == nil {
		return nil
	}
	if strings.TrimSpace(f.Encoding) != "pcm_s16le" {
		return unsupported("unsupported audio encoding", param+".encoding")
	}
	if f.SampleRateHz <= 0 {
		return badRequest("sample_rate_hz must be > 0", param+".sample_rate_hz")
	}
	if f.Channels <= 0 {
		return badRequest("channels must be > 0", param+".channels")
	}
	return nil
}

// ServerReady acknowledges the hello once the upstream stream is open.
type ServerReady struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	ConversationID  string      `json:"conversation_id,omitempty"`
	AgentID         string      `json:"agent_id"`
	Voice           string      `json:"voice"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// ServerTranscriptDelta streams partial transcription text. Role is "user"
// for input speech and "model" for the assistant's own speech.
type ServerTranscriptDelta struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// ServerUtterance is a finalized turn half, persisted to history.
type ServerUtterance struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	AgentID string `json:"agent_id,omitempty"`
	Text    string `json:"text"`
}

// ServerAudioChunk carries one base64 PCM chunk of assistant speech.
type ServerAudioChunk struct {
	Type         string `json:"type"`
	Seq          int64  `json:"seq"`
	SampleRateHz int    `json:"sample_rate_hz"`
	DataB64      string `json:"data_b64"`
}

type ServerTurnComplete struct {
	Type string `json:"type"`
}

// ServerInterrupted tells the client to drop any buffered playback.
type ServerInterrupted struct {
	Type string `json:"type"`
}

// ServerToolAction asks the client to perform a device-side tool effect,
// like toggling the camera or a screen share.
type ServerToolAction struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Enabled bool   `json:"enabled"`
}

type ServerAgentSwitch struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
}

type ServerUsage struct {
	Type            string `json:"type"`
	PromptTokens    int64  `json:"prompt_tokens"`
	ResponseTokens  int64  `json:"response_tokens"`
	TotalTokens     int64  `json:"total_tokens"`
	RemainingTokens int64  `json:"remaining_tokens,omitempty"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}
