package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

func TestEncodeFrameScaling(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"zero", 0, 0},
		{"full negative", -1, -32768},
		{"full positive", 1, 32767},
		{"half negative", -0.5, -16384},
		{"clamped above", 2.5, 32767},
		{"clamped below", -3, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeFrame([]float32{tt.sample})
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				t.Fatalf("invalid base64: %v", err)
			}
			if len(raw) != 2 {
				t.Fatalf("expected 2 bytes, got %d", len(raw))
			}
			got := int16(binary.LittleEndian.Uint16(raw))
			if got != tt.want {
				t.Errorf("sample %v encoded to %d, want %d", tt.sample, got, tt.want)
			}
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.999, -0.999, 0.0001, -0.0001}
	encoded := EncodeFrame(in)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	buf, err := DecodePCM(raw, 16000, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.FrameCount() != len(in) {
		t.Fatalf("frame count %d, want %d", buf.FrameCount(), len(in))
	}
	for i, want := range in {
		got := buf.Channels[0][i]
		if math.Abs(float64(got-want)) > 1.0/16384 {
			t.Errorf("sample %d: got %v, want %v", i, got, want)
		}
	}
}

func TestDecodePCMDeinterleaves(t *testing.T) {
	// Two stereo frames: L=100 R=-200, L=300 R=-400.
	raw := make([]byte, 8)
	for i, sample := range []int16{100, -200, 300, -400} {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(sample))
	}

	buf, err := DecodePCM(raw, 24000, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(buf.Channels) != 2 || buf.FrameCount() != 2 {
		t.Fatalf("got %d channels x %d frames, want 2x2", len(buf.Channels), buf.FrameCount())
	}
	wantL := []float32{100.0 / 32768, 300.0 / 32768}
	wantR := []float32{-200.0 / 32768, -400.0 / 32768}
	for i := range wantL {
		if buf.Channels[0][i] != wantL[i] {
			t.Errorf("left[%d] = %v, want %v", i, buf.Channels[0][i], wantL[i])
		}
		if buf.Channels[1][i] != wantR[i] {
			t.Errorf("right[%d] = %v, want %v", i, buf.Channels[1][i], wantR[i])
		}
	}
}

func TestDecodePCMRejectsRaggedPayload(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		channels int
	}{
		{"odd byte count mono", make([]byte, 3), 1},
		{"half frame stereo", make([]byte, 6), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePCM(tt.data, 16000, tt.channels)
			if err == nil {
				t.Fatal("expected error")
			}
			if !core.IsType(err, core.ErrDecode) {
				t.Errorf("expected decode error, got %v", err)
			}
		})
	}
}

func TestDecodeBase64PCMBadEncoding(t *testing.T) {
	_, err := DecodeBase64PCM("not base64!!!", 16000, 1)
	if !core.IsType(err, core.ErrDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestBufferDuration(t *testing.T) {
	buf := Buffer{SampleRate: 24000, Channels: [][]float32{make([]float32, 12000)}}
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", got)
	}
}
