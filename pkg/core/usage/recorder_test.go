package usage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

type fakeLedger struct {
	mu     sync.Mutex
	writes []struct {
		userID string
		tokens int64
		cost   float64
	}
	err error
}

func (l *fakeLedger) Increment(ctx context.Context, userID string, tokens int64, cost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.writes = append(l.writes, struct {
		userID string
		tokens int64
		cost   float64
	}{userID, tokens, cost})
	return nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.writes)
}

func TestRecorderCoalescesBurst(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewRecorder(ledger, "u1", 30*time.Millisecond, nil)

	r.Record(10, 0.01)
	r.Record(10, 0.01)
	r.Record(10, 0.01)

	if got := r.Totals(); got.Tokens != 30 {
		t.Errorf("in-memory tokens = %d, want 30 immediately", got.Tokens)
	}
	if ledger.count() != 0 {
		t.Error("ledger written before debounce elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ledger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if len(ledger.writes) != 1 {
		t.Fatalf("ledger writes = %d, want 1", len(ledger.writes))
	}
	w := ledger.writes[0]
	if w.userID != "u1" || w.tokens != 30 || math.Abs(w.cost-0.03) > 1e-9 {
		t.Errorf("write = %+v, want u1/30/0.03", w)
	}
}

func TestRecorderCloseFlushesPending(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewRecorder(ledger, "u1", time.Hour, nil)

	r.Record(5, 0.005)
	r.Close(context.Background())

	if ledger.count() != 1 {
		t.Fatalf("ledger writes = %d, want 1 on close", ledger.count())
	}
	ledger.mu.Lock()
	if ledger.writes[0].tokens != 5 {
		t.Errorf("flushed tokens = %d, want 5", ledger.writes[0].tokens)
	}
	ledger.mu.Unlock()

	// Closed recorder drops further deltas and never writes again.
	r.Record(100, 1)
	r.Close(context.Background())
	if ledger.count() != 1 {
		t.Errorf("ledger writes = %d after close, want 1", ledger.count())
	}
}

func TestRecorderLedgerFailureKeepsTotals(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("db down")}
	r := NewRecorder(ledger, "u1", time.Hour, nil)

	r.Record(7, 0.007)
	r.Close(context.Background())

	if got := r.Totals(); got.Tokens != 7 {
		t.Errorf("totals = %+v, want tokens 7 despite ledger failure", got)
	}
}

func TestRecorderEmptyCloseWritesNothing(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewRecorder(ledger, "u1", time.Hour, nil)
	r.Close(context.Background())
	if ledger.count() != 0 {
		t.Errorf("ledger writes = %d, want 0", ledger.count())
	}
}
