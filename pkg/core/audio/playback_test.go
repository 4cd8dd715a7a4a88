package audio

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeVoice struct {
	stopped bool
	done    func()
}

func (v *fakeVoice) Stop() { v.stopped = true }

type fakeOutput struct {
	starts []time.Time
	voices []*fakeVoice
	err    error
}

func (o *fakeOutput) Start(buf Buffer, at time.Time, done func()) (Voice, error) {
	if o.err != nil {
		return nil, o.err
	}
	v := &fakeVoice{done: done}
	o.starts = append(o.starts, at)
	o.voices = append(o.voices, v)
	return v, nil
}

func monoBuffer(sampleRate, frames int) Buffer {
	return Buffer{SampleRate: sampleRate, Channels: [][]float32{make([]float32, frames)}}
}

func TestPlayerSchedulesBackToBack(t *testing.T) {
	t0 := time.Unix(1000, 0)
	clock := &fakeClock{now: t0}
	out := &fakeOutput{}
	p := NewPlayer(clock, out)

	// 12000 frames at 24kHz = 500ms each.
	buf := monoBuffer(24000, 12000)
	s1, err := p.Enqueue(buf)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	s2, err := p.Enqueue(buf)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if !s1.Equal(t0) {
		t.Errorf("first start = %v, want %v", s1, t0)
	}
	if want := t0.Add(500 * time.Millisecond); !s2.Equal(want) {
		t.Errorf("second start = %v, want %v", s2, want)
	}
}

func TestPlayerLateChunkStartsNow(t *testing.T) {
	t0 := time.Unix(1000, 0)
	clock := &fakeClock{now: t0}
	out := &fakeOutput{}
	p := NewPlayer(clock, out)

	buf := monoBuffer(24000, 2400) // 100ms
	if _, err := p.Enqueue(buf); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Clock moves well past the end of the queued audio.
	clock.now = t0.Add(3 * time.Second)
	s, err := p.Enqueue(buf)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !s.Equal(clock.now) {
		t.Errorf("late start = %v, want %v", s, clock.now)
	}
}

func TestPlayerFailedStartLeavesNoGap(t *testing.T) {
	t0 := time.Unix(1000, 0)
	clock := &fakeClock{now: t0}
	out := &fakeOutput{}
	p := NewPlayer(clock, out)

	buf := monoBuffer(24000, 12000) // 500ms
	out.err = errors.New("sink busy")
	if _, err := p.Enqueue(buf); err == nil {
		t.Fatal("enqueue with failing sink: want error")
	}
	if p.Pending() != 0 {
		t.Errorf("pending = %d after failed start, want 0", p.Pending())
	}

	// The failed buffer did not reserve timeline; the next one starts now.
	out.err = nil
	s, err := p.Enqueue(buf)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !s.Equal(t0) {
		t.Errorf("start after failure = %v, want %v", s, t0)
	}
}

func TestPlayerFlushStopsAndRewinds(t *testing.T) {
	t0 := time.Unix(1000, 0)
	clock := &fakeClock{now: t0}
	out := &fakeOutput{}
	p := NewPlayer(clock, out)

	buf := monoBuffer(24000, 24000) // 1s
	p.Enqueue(buf)
	p.Enqueue(buf)
	if p.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", p.Pending())
	}

	clock.now = t0.Add(200 * time.Millisecond)
	p.Flush()
	p.Flush() // idempotent

	for i, v := range out.voices {
		if !v.stopped {
			t.Errorf("voice %d not stopped", i)
		}
	}
	if p.Pending() != 0 {
		t.Errorf("pending = %d after flush, want 0", p.Pending())
	}

	// The next buffer starts immediately, not at the old queue tail.
	s, err := p.Enqueue(buf)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !s.Equal(clock.now) {
		t.Errorf("post-flush start = %v, want %v", s, clock.now)
	}
}

func TestPlayerNaturalCompletionRemovesVoice(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	out := &fakeOutput{}
	p := NewPlayer(clock, out)

	p.Enqueue(monoBuffer(24000, 2400))
	if p.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", p.Pending())
	}
	out.voices[0].done()
	if p.Pending() != 0 {
		t.Errorf("pending = %d after completion, want 0", p.Pending())
	}
}
