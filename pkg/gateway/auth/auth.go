package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/hypley-ia/hypley-live/pkg/store"
)

// Principal is the authenticated account behind a request.
type Principal struct {
	User store.User
}

// ID returns the account id.
func (p *Principal) ID() string { return p.User.ID }

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// ParseBearer extracts the bearer token from the Authorization header, or
// from the access_token query parameter for surfaces that cannot set headers
// (WebSocket, EventSource).
func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(authz, prefix) {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
		return token, token != ""
	}
	if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
		return token, true
	}
	return "", false
}
