package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// FrameSize is the number of samples per capture frame.
const FrameSize = 4096

// Constraints describe the capture format requested from a device.
type Constraints struct {
	SampleRate int
	Channels   int
}

// DefaultConstraints matches the upstream realtime input format.
var DefaultConstraints = Constraints{SampleRate: DefaultInput.SampleRate, Channels: DefaultInput.Channels}

// FrameSource yields fixed-size normalized sample frames from an open device.
// ReadFrame blocks until a frame is available; it returns io.EOF when the
// device is closed.
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]float32, error)
	Close() error
}

// Device acquires an audio input. Open fails when the device is unavailable
// or access is denied.
type Device interface {
	Open(constraints Constraints) (FrameSource, error)
}

// SendFunc forwards one encoded frame toward the upstream stream.
type SendFunc func(encoded string) error

// Capture pumps microphone frames from a Device through the wire codec into a
// send function. One Capture owns at most one open device at a time.
type Capture struct {
	device Device
	send   SendFunc
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	source  FrameSource
	done    chan struct{}
}

// NewCapture builds a capture pump. logger may be nil.
func NewCapture(device Device, send SendFunc, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{device: device, send: send, logger: logger}
}

// Start acquires the device and begins pumping frames. It fails with a device
// error when the device cannot be opened and with an invalid request error
// when capture is already running.
func (c *Capture) Start(ctx context.Context, constraints Constraints) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return core.NewInvalidRequestError("capture already running")
	}

	source, err := c.device.Open(constraints)
	if err != nil {
		return core.NewDeviceError("microphone unavailable", err)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.running = true
	c.cancel = cancel
	c.source = source
	c.done = done

	go c.pump(pumpCtx, source, done)
	return nil
}

func (c *Capture) pump(ctx context.Context, source FrameSource, done chan struct{}) {
	defer close(done)
	for {
		frame, err := source.ReadFrame(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				c.logger.Warn("capture read failed", "error", err)
			}
			return
		}
		if err := c.send(EncodeFrame(frame)); err != nil {
			// Dropping a frame is preferable to stalling the pump.
			c.logger.Debug("capture frame dropped", "error", err)
		}
	}
}

// Stop releases the device and halts the pump. Safe to call repeatedly and
// when capture was never started.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	source := c.source
	done := c.done
	c.running = false
	c.cancel = nil
	c.source = nil
	c.done = nil
	c.mu.Unlock()

	cancel()
	if err := source.Close(); err != nil {
		c.logger.Debug("capture source close failed", "error", err)
	}
	<-done
}

// Running reports whether the pump is active.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
