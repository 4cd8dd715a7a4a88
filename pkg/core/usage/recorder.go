// Package usage bridges live token accounting to the persistent ledger.
// In-memory totals move instantly so the UI is never stale; ledger writes are
// debounced so a burst of per-response updates becomes one increment.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before pending deltas are written.
const DefaultDebounce = 3 * time.Second

// Ledger applies a usage delta to durable storage. Implementations must
// increment, never overwrite, so concurrent writers cannot lose updates.
type Ledger interface {
	Increment(ctx context.Context, userID string, tokens int64, cost float64) error
}

// Totals is the in-memory running usage for one session.
type Totals struct {
	Tokens int64
	Cost   float64
}

// Recorder accumulates usage deltas for one user. Deltas written between
// flushes coalesce into a single ledger increment. If the process dies
// before the debounce fires, the unflushed window is lost; that loss is
// bounded by the debounce interval and accepted.
type Recorder struct {
	ledger   Ledger
	userID   string
	debounce time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	totals        Totals
	pendingTokens int64
	pendingCost   float64
	timer         *time.Timer
	closed        bool
}

// NewRecorder builds a recorder for one user. debounce <= 0 means
// DefaultDebounce; logger may be nil.
func NewRecorder(ledger Ledger, userID string, debounce time.Duration, logger *slog.Logger) *Recorder {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ledger: ledger, userID: userID, debounce: debounce, logger: logger}
}

// Record adds a usage delta. Totals update immediately; the ledger write is
// deferred until the debounce window closes.
func (r *Recorder) Record(tokens int64, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.totals.Tokens += tokens
	r.totals.Cost += cost
	r.pendingTokens += tokens
	r.pendingCost += cost

	if r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, r.flushTimer)
	} else {
		r.timer.Reset(r.debounce)
	}
}

// Totals returns the running in-memory totals.
func (r *Recorder) Totals() Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

func (r *Recorder) flushTimer() {
	r.flush(context.Background())
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	tokens, cost := r.pendingTokens, r.pendingCost
	r.pendingTokens, r.pendingCost = 0, 0
	r.mu.Unlock()

	if tokens == 0 && cost == 0 {
		return
	}
	if err := r.ledger.Increment(ctx, r.userID, tokens, cost); err != nil {
		// A lost increment is bounded and non-fatal for the session.
		r.logger.Warn("usage ledger increment failed", "user_id", r.userID, "tokens", tokens, "error", err)
	}
}

// Close stops the timer and flushes pending deltas best-effort.
func (r *Recorder) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	r.flush(ctx)
}
