package session

import (
	"io"
	"log/slog"
	"testing"
)

func TestHistoryWriterWithoutStoreIsNoop(t *testing.T) {
	// A session may run without persistence (no conversation bound). Every
	// write path must tolerate the nil store.
	h := newHistoryWriter(nil, slog.New(slog.NewJSONHandler(io.Discard, nil)), "user1", "")
	h.appendUser("oi")
	h.appendModel("default", "olá")
	h.appendSwitchMarker("traffic_manager")
}
