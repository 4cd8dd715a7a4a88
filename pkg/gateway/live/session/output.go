package session

import (
	"sync"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core/audio"
)

// wsOutput is the playback sink for a browser client. Chunks are shipped to
// the client as soon as they are scheduled; the client buffers and plays them
// itself. The done callback fires when the chunk would have finished playing,
// which keeps the player's gapless schedule honest.
type wsOutput struct {
	send func(sampleRate int, encoded string) error
}

func newWSOutput(send func(sampleRate int, encoded string) error) *wsOutput {
	return &wsOutput{send: send}
}

func (o *wsOutput) Start(buf audio.Buffer, at time.Time, done func()) (audio.Voice, error) {
	if len(buf.Channels) > 0 {
		if err := o.send(buf.SampleRate, audio.EncodeFrame(buf.Channels[0])); err != nil {
			return nil, err
		}
	}

	v := &wsVoice{}
	delay := time.Until(at) + buf.Duration()
	if delay < 0 {
		delay = 0
	}
	v.timer = time.AfterFunc(delay, func() {
		v.finish(done)
	})
	return v, nil
}

type wsVoice struct {
	mu    sync.Mutex
	timer *time.Timer
	dead  bool
}

// Stop cancels the pending done callback. The chunk may already be in flight
// to the client; the interrupted frame tells it to drop buffered audio.
func (v *wsVoice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dead = true
	if v.timer != nil {
		v.timer.Stop()
	}
}

func (v *wsVoice) finish(done func()) {
	v.mu.Lock()
	if v.dead {
		v.mu.Unlock()
		return
	}
	v.dead = true
	v.mu.Unlock()
	if done != nil {
		done()
	}
}
