// Package sessions tracks live voice sessions per user. A user gets exactly
// one concurrent session: starting a new one tears the previous one down. The
// tracker also lets the server drain every session on shutdown.
package sessions

import (
	"context"
	"sync"
)

// Handle is what the tracker can do to a running session.
type Handle struct {
	SessionID string
	Cancel    func()
}

type Tracker struct {
	mu     sync.Mutex
	byUser map[string]*trackedSession
	wg     sync.WaitGroup
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{byUser: make(map[string]*trackedSession)}
}

// Register claims the user's session slot. Any previous session for the same
// user is canceled first. The returned func releases the slot; it is safe to
// call more than once.
func (t *Tracker) Register(userID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	old := t.byUser[userID]
	t.byUser[userID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		if old.handle.Cancel != nil {
			old.handle.Cancel()
		}
		t.unregister(userID, old)
	}

	return func() { t.unregister(userID, entry) }
}

func (t *Tracker) unregister(userID string, entry *trackedSession) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.byUser[userID] == entry {
			delete(t.byUser, userID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Active reports whether the user currently holds a session slot.
func (t *Tracker) Active(userID string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byUser[userID] != nil
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byUser)
}

// CancelAll asks every tracked session to stop. Used during shutdown.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.byUser {
		if entry.handle.Cancel != nil {
			cancels = append(cancels, entry.handle.Cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every session unregisters or ctx expires. Returns true
// when the tracker fully drained.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
