package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// EncodeFrame converts a normalized float32 frame into base64 PCM16 little
// endian, the wire form the realtime API expects. Samples outside [-1, 1] are
// clamped. Negative samples scale by 2^15 and positive by 2^15-1 so that both
// extremes map onto representable int16 values.
func EncodeFrame(samples []float32) string {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePCM converts raw interleaved PCM16 little endian bytes into a
// per-channel normalized Buffer. Payloads whose length is not a whole number
// of interleaved frames are rejected with a decode error; the caller drops the
// chunk and keeps the session alive.
func DecodePCM(data []byte, sampleRate, channels int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, core.NewDecodeError(fmt.Sprintf("invalid sample rate %d", sampleRate))
	}
	if channels <= 0 {
		return Buffer{}, core.NewDecodeError(fmt.Sprintf("invalid channel count %d", channels))
	}
	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return Buffer{}, core.NewDecodeError(fmt.Sprintf("pcm payload of %d bytes is not a whole number of %d-byte frames", len(data), frameBytes))
	}

	frames := len(data) / frameBytes
	chans := make([][]float32, channels)
	for c := range chans {
		chans[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * frameBytes
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(data[base+c*2:]))
			chans[c][f] = float32(v) / 32768.0
		}
	}
	return Buffer{SampleRate: sampleRate, Channels: chans}, nil
}

// DecodeBase64PCM decodes a base64 payload and then the PCM inside it.
func DecodeBase64PCM(encoded string, sampleRate, channels int) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Buffer{}, core.NewDecodeError("pcm payload is not valid base64")
	}
	return DecodePCM(raw, sampleRate, channels)
}
