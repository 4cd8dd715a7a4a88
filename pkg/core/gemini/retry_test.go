package gemini

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status code in message", errors.New("rpc error: code 429 Too Many Requests"), true},
		{"grpc status", errors.New("RESOURCE_EXHAUSTED: rate limit"), true},
		{"quota word", errors.New("Quota exceeded for model"), true},
		{"plain failure", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isQuotaError(tt.err); got != tt.want {
				t.Errorf("isQuotaError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithQuotaRetryEventualSuccess(t *testing.T) {
	attempts := 0
	got, err := withQuotaRetry(context.Background(), slog.Default(), "test", time.Millisecond, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("quota exceeded")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Errorf("got %q after %d attempts", got, attempts)
	}
}

func TestWithQuotaRetryExhaustion(t *testing.T) {
	attempts := 0
	_, err := withQuotaRetry(context.Background(), slog.Default(), "test", time.Millisecond, func() (int, error) {
		attempts++
		return 0, errors.New("RESOURCE_EXHAUSTED")
	})
	if !core.IsType(err, core.ErrQuota) {
		t.Fatalf("got %v, want quota error", err)
	}
	if attempts != maxQuotaRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts, maxQuotaRetries+1)
	}
}

func TestWithQuotaRetryNonQuotaFailsFast(t *testing.T) {
	attempts := 0
	_, err := withQuotaRetry(context.Background(), slog.Default(), "test", time.Millisecond, func() (int, error) {
		attempts++
		return 0, errors.New("bad request")
	})
	if err == nil || attempts != 1 {
		t.Errorf("err = %v after %d attempts, want immediate failure", err, attempts)
	}
}

func TestWithQuotaRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := withQuotaRetry(ctx, slog.Default(), "test", time.Hour, func() (int, error) {
		return 0, errors.New("quota exceeded")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
