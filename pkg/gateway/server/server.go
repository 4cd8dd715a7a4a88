// Package server wires the HTTP surface: routes, middleware, and the
// dependency graph behind the handlers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/billing"
	"github.com/hypley-ia/hypley-live/pkg/blob"
	"github.com/hypley-ia/hypley-live/pkg/core/gemini"
	"github.com/hypley-ia/hypley-live/pkg/gateway/auth"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/gateway/handlers"
	"github.com/hypley-ia/hypley-live/pkg/gateway/lifecycle"
	"github.com/hypley-ia/hypley-live/pkg/gateway/live/sessions"
	"github.com/hypley-ia/hypley-live/pkg/gateway/mw"
	"github.com/hypley-ia/hypley-live/pkg/gateway/ratelimit"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

// Deps carries the services the routes depend on. Auth, Billing, and Blob
// are optional; their routes are not mounted when nil.
type Deps struct {
	Store     *store.Store
	Gemini    *gemini.Client
	Auth      *auth.Authenticator
	Billing   *billing.Service
	Blob      *blob.Uploader
	Tracker   *sessions.Tracker
	Lifecycle *lifecycle.Lifecycle
}

type Server struct {
	cfg     config.Config
	deps    Deps
	logger  *slog.Logger
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = sessions.NewTracker()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}

	var limiter *ratelimit.Limiter
	if cfg.LimitRPS > 0 && cfg.LimitBurst > 0 {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.LimitRPS, Burst: cfg.LimitBurst})
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger, mux: http.NewServeMux(), limiter: limiter}
	s.routes()
	return s
}

func (s *Server) routes() {
	st := s.deps.Store

	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Check: st.Ping, Lifecycle: s.deps.Lifecycle})
	s.mux.Handle("/", handlers.NotFoundHandler{})

	if s.deps.Auth != nil {
		ah := &handlers.AuthHandler{Auth: s.deps.Auth, Config: s.cfg}
		s.mux.HandleFunc("POST /v1/auth/signup", ah.Signup)
		s.mux.HandleFunc("POST /v1/auth/login", ah.Login)
		s.mux.HandleFunc("POST /v1/auth/password-reset", ah.PasswordReset)
		s.mux.HandleFunc("POST /v1/auth/logout", ah.Logout)
	}

	var bh *handlers.BillingHandler
	if s.deps.Billing != nil {
		bh = &handlers.BillingHandler{Billing: s.deps.Billing, Config: s.cfg}
		// Stripe authenticates the webhook with its signature header.
		s.mux.HandleFunc("POST /v1/billing/webhook", bh.Webhook)
	}

	authed := http.NewServeMux()
	authed.Handle("/", handlers.NotFoundHandler{})

	me := &handlers.MeHandler{Store: st, Config: s.cfg}
	authed.HandleFunc("GET /v1/me", me.Get)
	authed.HandleFunc("PATCH /v1/me", me.Update)

	convs := &handlers.ConversationsHandler{Store: st, Config: s.cfg}
	authed.HandleFunc("GET /v1/conversations", convs.List)
	authed.HandleFunc("POST /v1/conversations", convs.Create)
	authed.HandleFunc("GET /v1/conversations/{id}", convs.Get)
	authed.HandleFunc("PATCH /v1/conversations/{id}", convs.Update)
	authed.HandleFunc("DELETE /v1/conversations/{id}", convs.Delete)

	msgs := &handlers.MessagesHandler{Store: st, Model: s.deps.Gemini, Config: s.cfg, Logger: s.logger}
	authed.HandleFunc("GET /v1/conversations/{id}/messages", msgs.List)
	authed.HandleFunc("POST /v1/conversations/{id}/messages", msgs.Send)
	authed.HandleFunc("PATCH /v1/conversations/{id}/messages/{messageID}", msgs.SetSummary)

	authed.Handle("GET /v1/watch", &handlers.WatchHandler{Store: st, Logger: s.logger})

	personas := &handlers.PersonasHandler{Store: st, Config: s.cfg}
	authed.HandleFunc("GET /v1/personas", personas.List)
	authed.HandleFunc("POST /v1/personas", personas.Create)
	authed.HandleFunc("PUT /v1/personas/{id}", personas.Update)
	authed.HandleFunc("DELETE /v1/personas/{id}", personas.Delete)

	images := &handlers.ImagesHandler{Model: s.deps.Gemini, Blob: s.blobOrNil(), Store: st, Config: s.cfg, Logger: s.logger}
	authed.HandleFunc("POST /v1/images", images.Generate)

	notifs := &handlers.NotificationsHandler{Store: st}
	authed.HandleFunc("GET /v1/notifications", notifs.List)
	authed.HandleFunc("POST /v1/notifications/{id}/read", notifs.MarkRead)

	bugs := &handlers.BugReportsHandler{Store: st, Blob: s.blobOrNil(), Config: s.cfg, Logger: s.logger}
	authed.HandleFunc("POST /v1/bugreports", bugs.Create)

	if bh != nil {
		authed.HandleFunc("GET /v1/billing/packs", bh.ListPacks)
		authed.HandleFunc("POST /v1/billing/checkout", bh.CreateCheckout)
	}

	authed.Handle("GET /v1/live", &handlers.LiveHandler{
		Store:   st,
		Dialer:  s.deps.Gemini,
		Tracker: s.deps.Tracker,
		Config:  s.cfg,
		Logger:  s.logger,
	})

	admin := http.NewServeMux()
	admin.Handle("/", handlers.NotFoundHandler{})
	adm := &handlers.AdminHandler{Store: st, Config: s.cfg}
	admin.HandleFunc("GET /v1/admin/users", adm.ListUsers)
	admin.HandleFunc("POST /v1/admin/users/{id}/tokens", adm.GrantTokens)
	admin.HandleFunc("POST /v1/admin/notifications", adm.CreateNotification)
	admin.HandleFunc("GET /v1/admin/bugreports", adm.ListBugReports)
	admin.HandleFunc("PATCH /v1/admin/bugreports/{id}", adm.SetBugReportStatus)
	authed.Handle("/v1/admin/", mw.RequireAdmin(admin))

	// Everything else under /v1/ needs a bearer token. The specific public
	// patterns above win over this subtree mount.
	s.mux.Handle("/v1/", mw.Auth(st, authed))
}

// blobOrNil keeps the nil check in one place; a nil *Uploader inside a
// non-nil interface would dodge the handlers' enablement checks.
func (s *Server) blobOrNil() handlers.BlobUploader {
	if s.deps.Blob == nil {
		return nil
	}
	return s.deps.Blob
}

// Handler applies the middleware chain. Auth runs per-group inside the mux
// so public routes stay reachable.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
