package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/audio"
)

type fakeStream struct {
	events chan ServerEvent
	once   sync.Once

	mu            sync.Mutex
	sentAudio     []string
	sentImages    int
	toolResponses [][]ToolResponse
	closed        bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan ServerEvent, 32)}
}

func (f *fakeStream) SendAudio(ctx context.Context, encoded string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentAudio = append(f.sentAudio, encoded)
	return nil
}

func (f *fakeStream) SendImage(ctx context.Context, jpeg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentImages++
	return nil
}

func (f *fakeStream) SendToolResponses(ctx context.Context, responses []ToolResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolResponses = append(f.toolResponses, responses)
	return nil
}

func (f *fakeStream) Recv() (ServerEvent, error) {
	ev, ok := <-f.events
	if !ok {
		return ServerEvent{}, io.EOF
	}
	return ev, nil
}

func (f *fakeStream) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

type fakeDialer struct {
	stream  *fakeStream
	dialErr error
	lastCfg ConnectConfig
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context, cfg ConnectConfig) (Stream, error) {
	d.dials++
	d.lastCfg = cfg
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.stream, nil
}

type recordingHandler struct {
	mu          sync.Mutex
	ready       int
	inputRuns   []string
	outputRuns  []string
	users       []string
	models      []string
	interrupted []string
	switches    []string
	usages      []Usage
	errs        []error
	closed      []string
}

func (h *recordingHandler) OnReady()                  { h.mu.Lock(); h.ready++; h.mu.Unlock() }
func (h *recordingHandler) OnInputTranscript(t string) {
	h.mu.Lock()
	h.inputRuns = append(h.inputRuns, t)
	h.mu.Unlock()
}
func (h *recordingHandler) OnOutputTranscript(t string) {
	h.mu.Lock()
	h.outputRuns = append(h.outputRuns, t)
	h.mu.Unlock()
}
func (h *recordingHandler) OnUserUtterance(t string) {
	h.mu.Lock()
	h.users = append(h.users, t)
	h.mu.Unlock()
}
func (h *recordingHandler) OnModelUtterance(t string) {
	h.mu.Lock()
	h.models = append(h.models, t)
	h.mu.Unlock()
}
func (h *recordingHandler) OnInterrupted(d string) {
	h.mu.Lock()
	h.interrupted = append(h.interrupted, d)
	h.mu.Unlock()
}
func (h *recordingHandler) OnAgentSwitch(id string) {
	h.mu.Lock()
	h.switches = append(h.switches, id)
	h.mu.Unlock()
}
func (h *recordingHandler) OnUsage(u Usage) { h.mu.Lock(); h.usages = append(h.usages, u); h.mu.Unlock() }
func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}
func (h *recordingHandler) OnClosed(r string) {
	h.mu.Lock()
	h.closed = append(h.closed, r)
	h.mu.Unlock()
}

type recordedVoice struct{ stopped bool }

func (v *recordedVoice) Stop() { v.stopped = true }

type recordingOutput struct {
	mu     sync.Mutex
	voices []*recordedVoice
}

func (o *recordingOutput) Start(buf audio.Buffer, at time.Time, done func()) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := &recordedVoice{}
	o.voices = append(o.voices, v)
	return v, nil
}

func (o *recordingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.voices)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func testConfig() SessionConfig {
	return SessionConfig{
		Model:             "realtime-test",
		AgentID:           "default",
		SystemInstruction: "be helpful",
	}
}

func newTestSession(t *testing.T) (*Session, *fakeDialer, *recordingHandler, *recordingOutput) {
	t.Helper()
	dialer := &fakeDialer{stream: newFakeStream()}
	handler := &recordingHandler{}
	output := &recordingOutput{}
	tools := NewToolRegistry(nil)
	tools.Register(ToolDeclaration{Name: ToolSwitchActiveAgent}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, nil
	})
	sess := NewSession(testConfig(), dialer, Deps{Handler: handler, Output: output, Tools: tools})
	return sess, dialer, handler, output
}

func TestSessionStartLifecycle(t *testing.T) {
	sess, dialer, handler, _ := newTestSession(t)

	if sess.State() != StateIdle {
		t.Fatalf("initial state = %v", sess.State())
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State() != StateOpen {
		t.Errorf("state after start = %v, want open", sess.State())
	}
	if handler.ready != 1 {
		t.Errorf("OnReady called %d times, want 1", handler.ready)
	}
	if dialer.lastCfg.Voice != DefaultVoice {
		t.Errorf("dial voice = %q, want default", dialer.lastCfg.Voice)
	}

	err := sess.Start(context.Background())
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Errorf("second start: got %v, want invalid request", err)
	}
	if dialer.dials != 1 {
		t.Errorf("dialed %d times, want 1", dialer.dials)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sess.State() != StateIdle {
		t.Errorf("state after close = %v, want idle", sess.State())
	}
	eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.closed) == 1
	})
}

func TestSessionCloseWhenIdleIsNoOp(t *testing.T) {
	sess, _, handler, _ := newTestSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sess.StopInput()
	sess.StopPlayback()
	if len(handler.closed) != 0 {
		t.Error("OnClosed fired for a session that never opened")
	}
}

func TestSessionDialFailure(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("upstream down")}
	sess := NewSession(testConfig(), dialer, Deps{Handler: &recordingHandler{}, Output: &recordingOutput{}})

	err := sess.Start(context.Background())
	if !core.IsType(err, core.ErrTransport) {
		t.Fatalf("got %v, want transport error", err)
	}
	if sess.State() != StateErrored {
		t.Errorf("state = %v, want errored", sess.State())
	}
}

func TestSessionRoutesAudioToPlayback(t *testing.T) {
	sess, dialer, _, output := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	pcm := make([]byte, 4800) // 100ms of 24kHz mono
	dialer.stream.events <- ServerEvent{Audio: pcm}

	eventually(t, func() bool { return output.count() == 1 })
}

func TestSessionDropsMalformedAudioChunk(t *testing.T) {
	sess, dialer, handler, output := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	dialer.stream.events <- ServerEvent{Audio: make([]byte, 3)} // ragged
	dialer.stream.events <- ServerEvent{Audio: make([]byte, 4)} // fine

	eventually(t, func() bool { return output.count() == 1 })
	if sess.State() != StateOpen {
		t.Errorf("state = %v after bad chunk, want open", sess.State())
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.errs) != 0 {
		t.Errorf("bad chunk surfaced as session error: %v", handler.errs)
	}
}

func TestSessionFinalizesTranscripts(t *testing.T) {
	sess, dialer, handler, _ := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	dialer.stream.events <- ServerEvent{InputTranscript: "Olá, "}
	dialer.stream.events <- ServerEvent{InputTranscript: "mundo"}
	dialer.stream.events <- ServerEvent{OutputTranscript: "Oi!"}
	dialer.stream.events <- ServerEvent{TurnComplete: true}
	dialer.stream.events <- ServerEvent{TurnComplete: true} // duplicate boundary

	eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.users) == 1 && len(handler.models) == 1
	})
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.users[0] != "Olá, mundo" {
		t.Errorf("user utterance = %q", handler.users[0])
	}
	if handler.models[0] != "Oi!" {
		t.Errorf("model utterance = %q", handler.models[0])
	}
	if len(handler.inputRuns) != 2 || handler.inputRuns[1] != "Olá, mundo" {
		t.Errorf("running input = %v", handler.inputRuns)
	}
}

func TestSessionInterruptFlushesPlaybackAndOutput(t *testing.T) {
	sess, dialer, handler, output := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	dialer.stream.events <- ServerEvent{Audio: make([]byte, 4800)}
	dialer.stream.events <- ServerEvent{OutputTranscript: "Bom di"}
	eventually(t, func() bool { return output.count() == 1 })

	dialer.stream.events <- ServerEvent{Interrupted: true}
	eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.interrupted) == 1
	})

	handler.mu.Lock()
	if handler.interrupted[0] != "Bom di" {
		t.Errorf("discarded = %q, want %q", handler.interrupted[0], "Bom di")
	}
	handler.mu.Unlock()

	output.mu.Lock()
	if !output.voices[0].stopped {
		t.Error("queued voice not stopped on interrupt")
	}
	output.mu.Unlock()

	// The discarded text must never be finalized.
	dialer.stream.events <- ServerEvent{TurnComplete: true}
	dialer.stream.events <- ServerEvent{OutputTranscript: "done"}
	dialer.stream.events <- ServerEvent{TurnComplete: true}
	eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.models) == 1
	})
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.models[0] != "done" {
		t.Errorf("finalized model = %q, want %q", handler.models[0], "done")
	}
}

func TestSessionAnswersToolCalls(t *testing.T) {
	sess, dialer, handler, _ := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	dialer.stream.events <- ServerEvent{ToolCalls: []ToolCall{
		{ID: "c1", Name: ToolSwitchActiveAgent, Args: map[string]any{"agent_id": "luzia"}},
		{ID: "c2", Name: "does_not_exist"},
	}}

	eventually(t, func() bool {
		dialer.stream.mu.Lock()
		defer dialer.stream.mu.Unlock()
		return len(dialer.stream.toolResponses) == 1
	})

	dialer.stream.mu.Lock()
	batch := dialer.stream.toolResponses[0]
	streamClosed := dialer.stream.closed
	dialer.stream.mu.Unlock()

	if len(batch) != 2 {
		t.Fatalf("answered %d calls, want 2", len(batch))
	}
	if batch[0].ID != "c1" || batch[0].Result["result"] != "ok" {
		t.Errorf("switch response = %+v", batch[0])
	}
	if batch[1].ID != "c2" || batch[1].Result["error"] == nil {
		t.Errorf("unknown-tool response = %+v", batch[1])
	}
	if streamClosed {
		t.Error("agent switch tore down the stream")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.switches) != 1 || handler.switches[0] != "luzia" {
		t.Errorf("switches = %v", handler.switches)
	}
	if got := sess.ActiveAgent(); got != "luzia" {
		t.Errorf("active agent = %q", got)
	}
}

func TestSessionReportsUsage(t *testing.T) {
	sess, dialer, handler, _ := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	dialer.stream.events <- ServerEvent{Usage: &Usage{TotalTokens: 42}}
	eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.usages) == 1 && handler.usages[0].TotalTokens == 42
	})
}

func TestSessionStreamFailureEntersErrored(t *testing.T) {
	sess, dialer, handler, _ := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	dialer.stream.Close() // upstream dies

	eventually(t, func() bool { return sess.State() == StateErrored })
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.errs) != 1 || !core.IsType(handler.errs[0], core.ErrTransport) {
		t.Errorf("errors = %v, want one transport error", handler.errs)
	}
}

func TestSessionSendAudioWhenNotOpen(t *testing.T) {
	sess, _, _, _ := newTestSession(t)
	err := sess.SendAudioFrame("AAAA")
	if !core.IsType(err, core.ErrTransport) {
		t.Errorf("got %v, want transport error", err)
	}
}
