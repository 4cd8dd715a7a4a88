package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeWS struct {
	mu       sync.Mutex
	messages [][]byte
	controls []int
	closed   bool
}

func (f *fakeWS) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWS) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.messages = append(f.messages, cp)
	return nil
}

func (f *fakeWS) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWS) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = string(m)
	}
	return out
}

func TestWriterDrainsBothQueues(t *testing.T) {
	ws := &fakeWS{}
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)

	normal <- outboundFrame{payload: []byte("n1")}
	priority <- outboundFrame{payload: []byte("p1")}
	close(priority)
	close(normal)

	w := outboundWriter{ws: ws, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := ws.snapshot()
	if len(got) != 2 {
		t.Fatalf("messages = %v", got)
	}
	if got[0] != "p1" {
		t.Errorf("priority frame not written first: %v", got)
	}
}

func TestWriterFlushesPriorityOnShutdown(t *testing.T) {
	ws := &fakeWS{}
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)
	priority <- outboundFrame{payload: []byte(`{"type":"error"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := outboundWriter{ws: ws, ctx: ctx, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := ws.snapshot()
	if len(got) != 1 || got[0] != `{"type":"error"}` {
		t.Errorf("priority frame lost on shutdown: %v", got)
	}

	ws.mu.Lock()
	closed := ws.closed
	sawClose := false
	for _, c := range ws.controls {
		if c == websocket.CloseMessage {
			sawClose = true
		}
	}
	ws.mu.Unlock()
	if !closed || !sawClose {
		t.Error("socket not closed cleanly")
	}
}

func TestWriterSkipsEmptyFrames(t *testing.T) {
	ws := &fakeWS{}
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame, 1)
	normal <- outboundFrame{}
	close(priority)
	close(normal)

	w := outboundWriter{ws: ws, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ws.snapshot()) != 0 {
		t.Error("empty frame written")
	}
}
