package audio

import (
	"sync"
	"time"
)

// Clock supplies the playback timeline. The realtime pipeline uses the wall
// clock; tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Voice is one scheduled buffer that can be stopped before it finishes.
type Voice interface {
	Stop()
}

// Output schedules decoded buffers on an audio sink. Start begins playing buf
// at the given time and invokes done when the buffer finishes naturally (not
// when stopped).
type Output interface {
	Start(buf Buffer, at time.Time, done func()) (Voice, error)
}

// Player schedules assistant audio gaplessly: each buffer starts at the later
// of the previous buffer's end and now, so chunks arriving faster than real
// time queue back to back while a late chunk starts immediately.
type Player struct {
	clock  Clock
	output Output

	mu       sync.Mutex
	nextFree time.Time
	nextID   uint64
	voices   map[uint64]Voice
}

// NewPlayer builds a playback scheduler over the given clock and sink.
func NewPlayer(clock Clock, output Output) *Player {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Player{clock: clock, output: output, voices: make(map[uint64]Voice)}
}

// Enqueue schedules buf after everything already queued. Returns the start
// time the buffer was scheduled at.
func (p *Player) Enqueue(buf Buffer) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.clock.Now()
	if p.nextFree.After(start) {
		start = p.nextFree
	}

	id := p.nextID
	p.nextID++
	voice, err := p.output.Start(buf, start, func() { p.remove(id) })
	if err != nil {
		// The buffer never made it onto the timeline; do not reserve its slot.
		return time.Time{}, err
	}
	p.nextFree = start.Add(buf.Duration())
	p.voices[id] = voice
	return start, nil
}

func (p *Player) remove(id uint64) {
	p.mu.Lock()
	delete(p.voices, id)
	p.mu.Unlock()
}

// Flush stops every live voice, clears the schedule, and rewinds the timeline
// to now. Used on interruption. Safe to call repeatedly.
func (p *Player) Flush() {
	p.mu.Lock()
	voices := p.voices
	p.voices = make(map[uint64]Voice)
	p.nextFree = p.clock.Now()
	p.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// Pending reports the number of live voices.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.voices)
}
