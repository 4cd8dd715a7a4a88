package session

import (
	"sync"
	"testing"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core/audio"
)

func TestWSOutputSendsChunkAndCompletes(t *testing.T) {
	var mu sync.Mutex
	var sentRates []int
	var sentData []string
	out := newWSOutput(func(rate int, encoded string) error {
		mu.Lock()
		defer mu.Unlock()
		sentRates = append(sentRates, rate)
		sentData = append(sentData, encoded)
		return nil
	})

	buf := audio.Buffer{SampleRate: 24000, Channels: [][]float32{{0.5, -0.5}}}
	doneCh := make(chan struct{})
	v, err := out.Start(buf, time.Now(), func() { close(doneCh) })
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if v == nil {
		t.Fatal("nil voice")
	}

	mu.Lock()
	if len(sentData) != 1 || sentRates[0] != 24000 {
		t.Fatalf("sent = %v %v", sentRates, sentData)
	}
	if sentData[0] != audio.EncodeFrame([]float32{0.5, -0.5}) {
		t.Error("chunk payload mismatch")
	}
	mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("done callback never fired")
	}
}

func TestWSOutputStopCancelsDone(t *testing.T) {
	out := newWSOutput(func(int, string) error { return nil })

	// A long buffer keeps the done timer pending so Stop can win the race.
	samples := make([]float32, 24000)
	buf := audio.Buffer{SampleRate: 24000, Channels: [][]float32{samples}}

	fired := make(chan struct{}, 1)
	v, err := out.Start(buf, time.Now(), func() { fired <- struct{}{} })
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	v.Stop()

	select {
	case <-fired:
		t.Error("done fired after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}
