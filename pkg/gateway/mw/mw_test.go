package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/auth"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/gateway/ratelimit"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type fakeResolver struct {
	users map[string]store.User
}

func (f *fakeResolver) ResolveSession(ctx context.Context, token string) (store.User, error) {
	u, ok := f.users[token]
	if !ok {
		return store.User{}, core.NewAuthenticationError("invalid or expired token")
	}
	return u, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("no request id in context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Error("header and context request id differ")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_custom")
	h.ServeHTTP(rec, req)
	if seen != "req_custom" {
		t.Errorf("client request id not honored: %q", seen)
	}
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &fakeResolver{users: map[string]store.User{
		"tok1": {ID: "u1", Email: "a@b.c"},
	}}

	var principal *auth.Principal
	h := Auth(resolver, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = auth.PrincipalFrom(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer tok1", http.StatusOK},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic tok1", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal = nil
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (principal == nil || principal.ID() != "u1") {
				t.Error("principal not attached")
			}
			if tt.wantStatus != http.StatusOK {
				var env errorEnvelope
				if err := json.NewDecoder(rec.Body).Decode(&env); err != nil || env.Error == nil {
					t.Errorf("error envelope missing: %v", err)
				}
			}
		})
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	resolver := &fakeResolver{users: map[string]store.User{"tok1": {ID: "u1"}}}
	h := Auth(resolver, okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/live?access_token=tok1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{User: store.User{ID: "u1"}}))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{User: store.User{ID: "u1", IsAdmin: true}}))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	h := RateLimit(limiter, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{User: store.User{ID: "u1"}}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
}

func TestRateLimitExemptsHealth(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	h := RateLimit(limiter, okHandler())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("health request %d limited", i)
		}
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	h := Recover(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: map[string]struct{}{"https://app.hypley.ai": {}}}
	h := CORS(cfg, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/conversations", nil)
	req.Header.Set("Origin", "https://app.hypley.ai")
	req.Header.Set("Access-Control-Request-Method", "POST")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.hypley.ai" {
		t.Error("allow-origin missing")
	}

	rec = httptest.NewRecorder()
	req.Header.Set("Origin", "https://evil.example")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign origin preflight status = %d, want 403", rec.Code)
	}
}
