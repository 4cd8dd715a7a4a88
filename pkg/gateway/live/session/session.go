// Package session hosts one browser voice session over a WebSocket. It
// bridges the client protocol to the core live coordinator: inbound audio and
// vision frames go upstream, coordinator events come back as protocol frames,
// finalized utterances land in the conversation history, and token usage
// flows through the debounced recorder into the ledger.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/agents"
	"github.com/hypley-ia/hypley-live/pkg/core/audio"
	"github.com/hypley-ia/hypley-live/pkg/core/live"
	"github.com/hypley-ia/hypley-live/pkg/core/usage"
	"github.com/hypley-ia/hypley-live/pkg/gateway/live/protocol"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

// usdPerMillionTokens prices live audio tokens for the running cost column.
const usdPerMillionTokens = 3.0

const outboundPriorityQueueSize = 8

type wsConn interface {
	wsWriter
	ReadMessage() (int, []byte, error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
}

type Config struct {
	Model             string
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	MaxMessageBytes   int64
	OutboundQueueSize int
	UsageDebounce     time.Duration
	// ReconnectDelay is the single fixed-delay retry applied when the
	// upstream stream drops mid-conversation. Zero disables the retry.
	ReconnectDelay time.Duration
}

type Deps struct {
	Conn      wsConn
	Logger    *slog.Logger
	Dialer    live.Dialer
	Store     HistoryStore
	Ledger    usage.Ledger
	User      store.User
	Custom    []agents.Agent
	SessionID string
	Config    Config
}

// Host runs the session loop for one connected client.
type Host struct {
	conn      wsConn
	logger    *slog.Logger
	dialer    live.Dialer
	store     HistoryStore
	ledger    usage.Ledger
	user      store.User
	custom    []agents.Agent
	sessionID string
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	core     *live.Session
	recorder *usage.Recorder
	hist     *historyWriter

	mu      sync.Mutex
	agentID string
	ready   protocol.ServerReady

	audioSeq     atomic.Int64
	reconnecting atomic.Bool
	retried      atomic.Bool
}

func New(deps Deps) (*Host, error) {
	if deps.Conn == nil {
		return nil, core.NewInvalidRequestError("connection is required")
	}
	if deps.Dialer == nil {
		return nil, core.NewInvalidRequestError("dialer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		conn:             deps.Conn,
		logger:           deps.Logger,
		dialer:           deps.Dialer,
		store:            deps.Store,
		ledger:           deps.Ledger,
		user:             deps.User,
		custom:           deps.Custom,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
	}, nil
}

// Run drives the session until the client disconnects, asks to close, or the
// upstream fails beyond the one permitted retry.
func (h *Host) Run(ctx context.Context) error {
	defer h.cancel()

	if h.cfg.MaxMessageBytes > 0 {
		h.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}
	h.refreshReadDeadline()
	h.conn.SetPongHandler(func(string) error {
		h.refreshReadDeadline()
		return nil
	})

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:           h.conn,
			ctx:          h.ctx,
			pingInterval: h.cfg.PingInterval,
			writeTimeout: h.cfg.WriteTimeout,
			priority:     h.outboundPriority,
			normal:       h.outboundNormal,
		}
		writerErrCh <- w.Run()
	}()

	hello, err := h.readHello()
	if err != nil {
		h.sendFatal("bad_request", err.Error())
		return h.drainWriter(writerErrCh)
	}

	if err := h.setup(ctx, hello); err != nil {
		h.sendFatal(errorCode(err), errorMessage(err))
		return h.drainWriter(writerErrCh)
	}
	defer func() {
		_ = h.core.Close()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		h.recorder.Close(closeCtx)
		cancel()
	}()

	for {
		select {
		case err := <-writerErrCh:
			return err
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := h.conn.ReadMessage()
		if err != nil {
			return nil
		}
		h.refreshReadDeadline()

		msg, decErr := protocol.DecodeClientMessage(data)
		if decErr != nil {
			code := "bad_request"
			var de *protocol.DecodeError
			if errors.As(decErr, &de) {
				code = de.Code
			}
			h.sendError(code, decErr.Error(), false)
			continue
		}

		switch m := msg.(type) {
		case protocol.ClientHello:
			h.sendError("bad_request", "session already started", false)
		case protocol.ClientAudioFrame:
			if err := h.core.SendAudioFrame(m.DataB64); err != nil {
				h.logger.Debug("audio frame dropped", "error", err)
			}
		case protocol.ClientImageFrame:
			jpeg, err := base64.StdEncoding.DecodeString(m.DataB64)
			if err != nil {
				h.sendError("bad_request", "invalid image_frame.data_b64", false)
				continue
			}
			if err := h.core.SendImageFrame(jpeg); err != nil {
				h.logger.Debug("image frame dropped", "error", err, "source", m.Source)
			}
		case protocol.ClientControl:
			switch m.Op {
			case protocol.ControlStopInput:
				h.core.StopInput()
			case protocol.ControlStopPlayback:
				h.core.StopPlayback()
			case protocol.ControlClose:
				return nil
			}
		}
	}
}

func (h *Host) readHello() (protocol.ClientHello, error) {
	_, data, err := h.conn.ReadMessage()
	if err != nil {
		return protocol.ClientHello{}, core.NewTransportError("client closed before hello", err)
	}
	h.refreshReadDeadline()
	msg, decErr := protocol.DecodeClientMessage(data)
	if decErr != nil {
		return protocol.ClientHello{}, decErr
	}
	hello, ok := msg.(protocol.ClientHello)
	if !ok {
		return protocol.ClientHello{}, core.NewInvalidRequestError("first frame must be hello")
	}
	return hello, nil
}

// setup resolves the persona and conversation, wires the tool registry, and
// opens the upstream stream.
func (h *Host) setup(ctx context.Context, hello protocol.ClientHello) error {
	agent, err := agents.Resolve(hello.AgentID, h.custom)
	if err != nil {
		return err
	}

	conv, err := h.resolveConversation(ctx, hello, agent.ID)
	if err != nil {
		return err
	}
	h.hist = newHistoryWriter(h.store, h.logger, h.user.ID, conv.ID)
	h.recorder = usage.NewRecorder(h.ledgerOrNop(), h.user.ID, h.cfg.UsageDebounce, h.logger)

	sessionCfg := live.SessionConfig{
		Model:             h.cfg.Model,
		AgentID:           agent.ID,
		SystemInstruction: agents.Instruction(agent, h.user.SummarizedMode),
		Voice:             hello.Voice,
		InputFormat:       formatOrDefault(hello.AudioIn, audio.DefaultInput),
		OutputFormat:      formatOrDefault(hello.AudioOut, audio.DefaultOutput),
		EnableSearch:      hello.EnableSearch,
	}

	h.mu.Lock()
	h.agentID = agent.ID
	h.ready = protocol.ServerReady{
		Type:            "ready",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       h.sessionID,
		ConversationID:  conv.ID,
		AgentID:         agent.ID,
		Voice:           voiceOrDefault(hello.Voice),
		AudioIn:         wireFormat(sessionCfg.InputFormat),
		AudioOut:        wireFormat(sessionCfg.OutputFormat),
	}
	h.mu.Unlock()

	h.core = live.NewSession(sessionCfg, h.dialer, live.Deps{
		Handler: h,
		Output:  newWSOutput(h.sendAudioChunk),
		Tools:   h.buildTools(),
		Logger:  h.logger,
	})

	if err := h.core.Start(ctx); err != nil {
		if core.IsType(err, core.ErrQuota) || h.cfg.ReconnectDelay <= 0 {
			return err
		}
		// One fixed-delay retry covers transient upstream hiccups at dial
		// time; a second failure is the client's problem to surface.
		_ = h.core.Close()
		select {
		case <-time.After(h.cfg.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := h.core.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) resolveConversation(ctx context.Context, hello protocol.ClientHello, agentID string) (store.Conversation, error) {
	if h.store == nil {
		return store.Conversation{}, nil
	}
	if hello.ConversationID != "" {
		return h.store.GetConversation(ctx, h.user.ID, hello.ConversationID)
	}
	return h.store.CreateConversation(ctx, h.user.ID, agentID, "")
}

func (h *Host) buildTools() *live.ToolRegistry {
	reg := live.NewToolRegistry(h.logger)
	for _, decl := range live.BuiltinDeclarations() {
		switch decl.Name {
		case live.ToolDateTimeBrazil:
			reg.Register(decl, live.DateTimeBrazilHandler)
		case live.ToolSwitchActiveAgent:
			reg.Register(decl, h.handleSwitchAgent)
		case live.ToolToggleCamera:
			reg.Register(decl, h.toggleHandler("camera"))
		case live.ToolToggleScreenShare:
			reg.Register(decl, h.toggleHandler("screen_share"))
		}
	}
	return reg
}

func (h *Host) handleSwitchAgent(ctx context.Context, args map[string]any) (map[string]any, error) {
	agentID, _ := args["agent_id"].(string)
	agent, err := agents.Resolve(agentID, h.custom)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent_id": agent.ID, "name": agent.Name}, nil
}

// toggleHandler acknowledges a device toggle and tells the client to do the
// actual camera or screen work.
func (h *Host) toggleHandler(action string) live.ToolHandler {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		enabled, _ := args["enabled"].(bool)
		h.sendJSON(protocol.ServerToolAction{Type: "tool_action", Action: action, Enabled: enabled}, false)
		return map[string]any{"action": action, "enabled": enabled}, nil
	}
}

// OnReady acknowledges the hello once the upstream stream is open. It also
// fires after a successful mid-session reconnect.
func (h *Host) OnReady() {
	h.mu.Lock()
	ready := h.ready
	h.mu.Unlock()
	h.sendJSON(ready, true)
}

func (h *Host) OnInputTranscript(text string) {
	h.sendJSON(protocol.ServerTranscriptDelta{Type: "transcript_delta", Role: "user", Text: text}, false)
}

func (h *Host) OnOutputTranscript(text string) {
	h.sendJSON(protocol.ServerTranscriptDelta{Type: "transcript_delta", Role: "model", Text: text}, false)
}

func (h *Host) OnUserUtterance(text string) {
	h.hist.appendUser(text)
	h.sendJSON(protocol.ServerUtterance{Type: "utterance", Role: "user", Text: text}, false)
}

func (h *Host) OnModelUtterance(text string) {
	agentID := h.activeAgent()
	h.hist.appendModel(agentID, text)
	h.sendJSON(protocol.ServerUtterance{Type: "utterance", Role: "model", AgentID: agentID, Text: text}, false)
	h.sendJSON(protocol.ServerTurnComplete{Type: "turn_complete"}, false)
}

// OnInterrupted reaches the client ahead of queued audio so it can drop its
// playback buffer. The cut-off model utterance is discarded, not written to
// history; the next finalized turn is the record.
func (h *Host) OnInterrupted(discarded string) {
	h.sendJSON(protocol.ServerInterrupted{Type: "interrupted"}, true)
}

func (h *Host) OnAgentSwitch(agentID string) {
	h.mu.Lock()
	h.agentID = agentID
	h.mu.Unlock()

	name := agentID
	if agent, err := agents.Resolve(agentID, h.custom); err == nil {
		name = agent.Name
	}
	h.hist.appendSwitchMarker(agentID)
	h.sendJSON(protocol.ServerAgentSwitch{Type: "agent_switch", AgentID: agentID, Name: name}, false)
}

func (h *Host) OnUsage(u live.Usage) {
	cost := float64(u.TotalTokens) * usdPerMillionTokens / 1e6
	h.recorder.Record(u.TotalTokens, cost)
	h.sendJSON(protocol.ServerUsage{
		Type:           "usage",
		PromptTokens:   u.PromptTokens,
		ResponseTokens: u.ResponseTokens,
		TotalTokens:    u.TotalTokens,
	}, false)
}

// OnError handles an upstream stream failure. The first failure gets one
// fixed-delay reconnect; a second one is fatal for the session.
func (h *Host) OnError(err error) {
	if h.cfg.ReconnectDelay > 0 && !h.retried.Swap(true) {
		h.reconnecting.Store(true)
		h.sendError("transport", "live stream dropped, reconnecting", false)
		go h.reconnect()
		return
	}
	h.sendFatal(errorCode(err), errorMessage(err))
	h.cancel()
}

func (h *Host) reconnect() {
	defer h.reconnecting.Store(false)

	_ = h.core.Close()
	select {
	case <-time.After(h.cfg.ReconnectDelay):
	case <-h.ctx.Done():
		return
	}
	if err := h.core.Start(h.ctx); err != nil {
		h.logger.Warn("live reconnect failed", "error", err)
		h.sendFatal(errorCode(err), errorMessage(err))
		h.cancel()
	}
}

func (h *Host) OnClosed(reason string) {
	if h.reconnecting.Load() {
		return
	}
	h.logger.Info("live session closed", "reason", reason, "session_id", h.sessionID)
}

func (h *Host) activeAgent() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.agentID
}

func (h *Host) sendAudioChunk(sampleRate int, encoded string) error {
	return h.sendJSONErr(protocol.ServerAudioChunk{
		Type:         "audio_chunk",
		Seq:          h.audioSeq.Add(1),
		SampleRateHz: sampleRate,
		DataB64:      encoded,
	}, false)
}

func (h *Host) sendError(code, message string, close bool) {
	h.sendJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: close}, true)
}

func (h *Host) sendFatal(code, message string) {
	h.sendError(code, message, true)
}

func (h *Host) sendJSON(v any, priority bool) {
	if err := h.sendJSONErr(v, priority); err != nil {
		h.logger.Debug("outbound frame dropped", "error", err)
	}
}

func (h *Host) sendJSONErr(v any, priority bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := outboundFrame{payload: payload}
	if priority {
		select {
		case h.outboundPriority <- frame:
			return nil
		case <-h.ctx.Done():
			return h.ctx.Err()
		}
	}
	select {
	case h.outboundNormal <- frame:
		return nil
	default:
		return errors.New("outbound queue full")
	}
}

func (h *Host) drainWriter(writerErrCh <-chan error) error {
	h.cancel()
	select {
	case err := <-writerErrCh:
		return err
	case <-time.After(time.Second):
		return nil
	}
}

func (h *Host) refreshReadDeadline() {
	if h.cfg.ReadTimeout > 0 {
		_ = h.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
}

func (h *Host) ledgerOrNop() usage.Ledger {
	if h.ledger == nil {
		return nopLedger{}
	}
	return h.ledger
}

type nopLedger struct{}

func (nopLedger) Increment(ctx context.Context, userID string, tokens int64, cost float64) error {
	return nil
}

func formatOrDefault(f *protocol.AudioFormat, def audio.Config) audio.Config {
	if f == nil {
		return def
	}
	return audio.Config{SampleRate: f.SampleRateHz, Channels: f.Channels, BitsPerSample: 16}
}

func wireFormat(c audio.Config) protocol.AudioFormat {
	return protocol.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: c.SampleRate, Channels: c.Channels}
}

func voiceOrDefault(voice string) string {
	if strings.TrimSpace(voice) == "" {
		return live.DefaultVoice
	}
	return voice
}

func errorCode(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return string(ce.Type)
	}
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}

func errorMessage(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	if err == nil {
		return "internal error"
	}
	return err.Error()
}
