// Package ratelimit is a per-user token bucket for the REST surface.
// Single-process, in-memory; the one-live-session-per-user rule is enforced
// separately by the session tracker.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	// Operational bounds for the in-memory map.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*bucket
}

type bucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{cfg: cfg, m: make(map[string]*bucket)}
}

type Decision struct {
	Allowed    bool
	RetryAfter int
}

// Allow spends one token for the user. Disabled config (zero RPS or burst)
// always allows.
func (l *Limiter) Allow(userID string, now time.Time) Decision {
	if l.cfg.RPS <= 0 || l.cfg.Burst <= 0 {
		return Decision{Allowed: true}
	}
	if userID == "" {
		userID = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getOrCreateLocked(userID, now)
	b.lastSeen = now

	capacity := float64(l.cfg.Burst)
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+elapsed*l.cfg.RPS)
		b.last = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return Decision{Allowed: true}
	}

	retryAfter := int(math.Ceil((1.0 - b.tokens) / l.cfg.RPS))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

func (l *Limiter) getOrCreateLocked(userID string, now time.Time) *bucket {
	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// Still full: drop an arbitrary entry. Bounded memory wins over
		// perfect fairness.
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}
	if b, ok := l.m[userID]; ok {
		return b
	}
	b := &bucket{tokens: float64(l.cfg.Burst), last: now, lastSeen: now}
	l.m[userID] = b
	return b
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}
