package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/audio"
)

// SessionState is the coordinator lifecycle state.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Deps are the session's collaborators. Handler and Output are required;
// Device is optional (nil when the caller feeds audio itself), Clock and
// Tools and Logger default sensibly.
type Deps struct {
	Handler Handler
	Output  audio.Output
	Clock   audio.Clock
	Device  audio.Device
	Tools   *ToolRegistry
	Logger  *slog.Logger
}

// Session coordinates one live conversation: the upstream stream, the
// capture pump, the playback scheduler, the transcript accumulator, and the
// tool registry. One Session maps to exactly one upstream stream.
type Session struct {
	cfg     SessionConfig
	dialer  Dialer
	handler Handler
	player  *audio.Player
	capture *audio.Capture
	tools   *ToolRegistry
	acc     *Accumulator
	logger  *slog.Logger

	mu      sync.Mutex
	state   SessionState
	agentID string
	stream  Stream
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSession builds an idle session. Start opens the stream.
func NewSession(cfg SessionConfig, dialer Dialer, deps Deps) *Session {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tools := deps.Tools
	if tools == nil {
		tools = NewToolRegistry(logger)
	}
	s := &Session{
		cfg:     cfg,
		dialer:  dialer,
		handler: deps.Handler,
		player:  audio.NewPlayer(deps.Clock, deps.Output),
		tools:   tools,
		acc:     NewAccumulator(),
		logger:  logger,
		agentID: cfg.AgentID,
	}
	if deps.Device != nil {
		s.capture = audio.NewCapture(deps.Device, s.sendFrame, logger)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveAgent returns the persona currently attributed with model turns.
func (s *Session) ActiveAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// Start validates the config, dials the upstream, and begins routing events.
// It fails when the session is not idle; callers tear down before retrying.
func (s *Session) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return core.NewInvalidRequestError("session already started (state " + state.String() + ")")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	stream, err := s.dialer.Dial(ctx, ConnectConfig{
		Model:             s.cfg.Model,
		SystemInstruction: s.cfg.SystemInstruction,
		Voice:             s.cfg.Voice,
		Tools:             s.tools.Declarations(),
		EnableSearch:      s.cfg.EnableSearch,
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateErrored
		s.mu.Unlock()
		if core.IsType(err, core.ErrQuota) {
			return err
		}
		return core.NewTransportError("failed to open live stream", err)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.stream = stream
	s.cancel = cancel
	s.done = done
	s.state = StateOpen
	s.mu.Unlock()

	if s.capture != nil {
		if err := s.capture.Start(ctx, audio.Constraints{
			SampleRate: s.cfg.InputFormat.SampleRate,
			Channels:   s.cfg.InputFormat.Channels,
		}); err != nil {
			cancel()
			stream.Close()
			s.mu.Lock()
			s.state = StateIdle
			s.stream = nil
			s.cancel = nil
			s.done = nil
			s.mu.Unlock()
			close(done)
			return err
		}
	}

	go s.recvLoop(recvCtx, stream, done)
	s.handler.OnReady()
	return nil
}

// sendFrame forwards one encoded microphone frame. Used by the capture pump
// and by callers that feed audio directly.
func (s *Session) sendFrame(encoded string) error {
	s.mu.Lock()
	stream := s.stream
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open || stream == nil {
		return core.NewTransportError("session not open", nil)
	}
	return stream.SendAudio(context.Background(), encoded)
}

// SendAudioFrame forwards a base64 PCM16 frame from an external source.
func (s *Session) SendAudioFrame(encoded string) error {
	return s.sendFrame(encoded)
}

// SendImageFrame forwards one JPEG vision frame.
func (s *Session) SendImageFrame(jpeg []byte) error {
	s.mu.Lock()
	stream := s.stream
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open || stream == nil {
		return core.NewTransportError("session not open", nil)
	}
	return stream.SendImage(context.Background(), jpeg)
}

// StopInput releases the microphone. No-op when capture never started or the
// session owns no device.
func (s *Session) StopInput() {
	if s.capture != nil {
		s.capture.Stop()
	}
}

// StopPlayback silences queued assistant audio. Safe in any state.
func (s *Session) StopPlayback() {
	s.player.Flush()
}

// Close tears the session down: stream, capture, playback. No-op when never
// connected. The session returns to Idle and may be started again.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	stream := s.stream
	cancel := s.cancel
	done := s.done
	s.state = StateClosing
	s.mu.Unlock()

	s.StopInput()
	s.player.Flush()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Close()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.state = StateIdle
	s.stream = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.handler.OnClosed("client")
	return nil
}

func (s *Session) recvLoop(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)
	for {
		ev, err := stream.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.state == StateClosing
			if !closing {
				s.state = StateErrored
			}
			s.mu.Unlock()
			if !closing {
				s.handler.OnError(core.NewTransportError("live stream failed", err))
			}
			return
		}
		s.route(ctx, stream, ev)
	}
}

// route applies one server event. Ordering matters: an interruption clears
// stale playback before any audio from the next turn is scheduled.
func (s *Session) route(ctx context.Context, stream Stream, ev ServerEvent) {
	if ev.Interrupted {
		s.player.Flush()
		discarded := s.acc.DiscardOutput()
		s.handler.OnInterrupted(discarded)
	}

	if len(ev.Audio) > 0 {
		buf, err := audio.DecodePCM(ev.Audio, s.cfg.OutputFormat.SampleRate, s.cfg.OutputFormat.Channels)
		if err != nil {
			// A ragged chunk is dropped; the session stays up.
			s.logger.Warn("dropping malformed audio chunk", "error", err)
		} else if _, err := s.player.Enqueue(buf); err != nil {
			s.logger.Warn("playback enqueue failed", "error", err)
		}
	}

	if ev.InputTranscript != "" {
		s.handler.OnInputTranscript(s.acc.AppendInput(ev.InputTranscript))
	}
	if ev.OutputTranscript != "" {
		s.handler.OnOutputTranscript(s.acc.AppendOutput(ev.OutputTranscript))
	}

	if len(ev.ToolCalls) > 0 {
		s.dispatchTools(ctx, stream, ev.ToolCalls)
	}

	if ev.TurnComplete {
		user, model := s.acc.TurnComplete()
		if user != "" {
			s.handler.OnUserUtterance(user)
		}
		if model != "" {
			s.handler.OnModelUtterance(model)
		}
	}

	if ev.Usage != nil {
		s.handler.OnUsage(*ev.Usage)
	}
}

func (s *Session) dispatchTools(ctx context.Context, stream Stream, calls []ToolCall) {
	responses := make([]ToolResponse, 0, len(calls))
	for _, call := range calls {
		resp := s.tools.Dispatch(ctx, call)
		responses = append(responses, resp)

		if call.Name == ToolSwitchActiveAgent && resp.Result["error"] == nil {
			if agentID, _ := call.Args["agent_id"].(string); agentID != "" {
				s.mu.Lock()
				s.agentID = agentID
				s.mu.Unlock()
				s.handler.OnAgentSwitch(agentID)
			}
		}
	}
	if err := stream.SendToolResponses(ctx, responses); err != nil {
		s.logger.Warn("tool response send failed", "error", err)
	}
}
