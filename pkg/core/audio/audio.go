// Package audio holds the realtime audio primitives of the live session core:
// the PCM16 wire codec, the microphone capture pump, and the gapless playback
// scheduler.
package audio

import (
	"math"
	"time"
)

// Config describes a PCM audio shape.
type Config struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultInput is the microphone capture format expected by the upstream
// realtime API.
var DefaultInput = Config{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// DefaultOutput is the assistant playback format produced by the upstream
// realtime API.
var DefaultOutput = Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// BytesPerSecond returns the PCM byte rate for this config.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * c.BitsPerSample / 8
}

// Duration returns the play time of n PCM bytes.
func (c Config) Duration(n int) time.Duration {
	bps := c.BytesPerSecond()
	if bps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// BytesFor returns the PCM byte count covering d.
func (c Config) BytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(c.BytesPerSecond()) * int64(d) / int64(time.Second))
}

// Buffer is a decoded audio buffer: per-channel normalized samples.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// FrameCount returns the number of samples per channel.
func (b Buffer) FrameCount() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the play time of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.FrameCount()) * time.Second / time.Duration(b.SampleRate)
}

// RMSEnergy computes the root-mean-square energy of a normalized sample frame.
// Returns a value in [0, 1].
func RMSEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
