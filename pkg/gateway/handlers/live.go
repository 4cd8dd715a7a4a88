package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hypley-ia/hypley-live/pkg/core/gemini"
	"github.com/hypley-ia/hypley-live/pkg/core/live"
	"github.com/hypley-ia/hypley-live/pkg/core/usage"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/gateway/live/session"
	"github.com/hypley-ia/hypley-live/pkg/gateway/live/sessions"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

// LiveHandler upgrades the websocket and hands the connection to a session
// host. One live session per user; a second connect bumps the first.
type LiveHandler struct {
	Store   *store.Store
	Dialer  live.Dialer
	Tracker *sessions.Tracker
	Config  config.Config
	Logger  *slog.Logger
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	custom, err := h.Store.CustomAgents(r.Context(), p.ID())
	if err != nil {
		writeError(w, r, err)
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.LiveHandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.Config.CORSAllowedOrigins) == 0 {
				return true
			}
			_, ok := h.Config.CORSAllowedOrigins[origin]
			return ok
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sessionID := "live_" + uuid.NewString()
	host, err := session.New(session.Deps{
		Conn:      conn,
		Logger:    h.Logger.With("session_id", sessionID),
		Dialer:    h.Dialer,
		Store:     h.Store,
		Ledger:    h.Store,
		User:      p.User,
		Custom:    custom,
		SessionID: sessionID,
		Config: session.Config{
			Model:           gemini.ModelLive,
			PingInterval:    h.Config.LiveWSPingInterval,
			WriteTimeout:    h.Config.LiveWSWriteTimeout,
			ReadTimeout:     h.Config.ReadTimeout,
			MaxMessageBytes: h.Config.LiveMaxJSONMessageBytes,
			UsageDebounce:   h.Config.UsageDebounce,
			ReconnectDelay:  h.Config.LiveReconnectDelay,
		},
	})
	if err != nil {
		_ = conn.Close()
		h.Logger.Error("session init failed", "error", err)
		return
	}

	ctx := context.Background()
	if h.Config.LiveMaxSessionDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.LiveMaxSessionDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unregister := h.Tracker.Register(p.ID(), sessions.Handle{SessionID: sessionID, Cancel: cancel})
	defer unregister()

	if err := host.Run(ctx); err != nil {
		h.Logger.Info("live session ended", "error", err)
	}
}

var _ usage.Ledger = (*store.Store)(nil)
