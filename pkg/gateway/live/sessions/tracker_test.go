package sessions

import (
	"context"
	"testing"
	"time"
)

func TestTrackerOneSessionPerUser(t *testing.T) {
	tr := NewTracker()

	firstCanceled := false
	un1 := tr.Register("u1", Handle{SessionID: "s1", Cancel: func() { firstCanceled = true }})

	un2 := tr.Register("u1", Handle{SessionID: "s2", Cancel: func() {}})
	if !firstCanceled {
		t.Error("previous session not canceled on re-register")
	}
	if tr.Count() != 1 {
		t.Errorf("count = %d, want 1", tr.Count())
	}

	// Releasing the superseded session must not free the new slot.
	un1()
	if !tr.Active("u1") {
		t.Error("active session lost when stale unregister ran")
	}

	un2()
	if tr.Active("u1") {
		t.Error("slot still held after unregister")
	}
}

func TestTrackerUnregisterIdempotent(t *testing.T) {
	tr := NewTracker()
	un := tr.Register("u1", Handle{SessionID: "s1"})
	un()
	un()
	if tr.Count() != 0 {
		t.Errorf("count = %d, want 0", tr.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !tr.Wait(ctx) {
		t.Error("Wait did not drain after double unregister")
	}
}

func TestTrackerUsersAreIndependent(t *testing.T) {
	tr := NewTracker()
	canceled := false
	tr.Register("u1", Handle{Cancel: func() { canceled = true }})
	tr.Register("u2", Handle{Cancel: func() {}})

	if canceled {
		t.Error("registering another user canceled an unrelated session")
	}
	if tr.Count() != 2 {
		t.Errorf("count = %d, want 2", tr.Count())
	}
}

func TestTrackerCancelAllAndWait(t *testing.T) {
	tr := NewTracker()

	var uns []func()
	canceled := 0
	for _, id := range []string{"u1", "u2", "u3"} {
		var un func()
		un = tr.Register(id, Handle{Cancel: func() { canceled++ }})
		uns = append(uns, un)
	}

	if got := tr.CancelAll(); got != 3 {
		t.Errorf("CancelAll = %d, want 3", got)
	}
	if canceled != 3 {
		t.Errorf("canceled = %d, want 3", canceled)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Error("Wait drained before sessions unregistered")
	}

	for _, un := range uns {
		un()
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if !tr.Wait(ctx2) {
		t.Error("Wait did not drain after unregister")
	}
}
