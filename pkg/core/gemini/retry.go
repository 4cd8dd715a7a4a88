package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

const (
	maxQuotaRetries = 3
	quotaBaseDelay  = 2 * time.Second
)

// isQuotaError reports whether err is a rate/quota exhaustion signal. The
// upstream is not consistent about the shape, so this matches the status
// code and the known marker strings.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota")
}

// withQuotaRetry runs fn, retrying quota failures with doubling backoff
// starting at baseDelay (2s, 4s, 8s in production). Other errors return
// immediately; exhausted retries surface as a quota error.
func withQuotaRetry[T any](ctx context.Context, logger *slog.Logger, op string, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !isQuotaError(err) {
			return zero, err
		}
		if attempt >= maxQuotaRetries {
			return zero, core.NewQuotaError("gemini quota exhausted after retries", err)
		}
		logger.Warn("gemini quota hit, retrying", "op", op, "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}
}
