package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/workos/workos-go/v6/pkg/usermanagement"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

// Authenticator verifies credentials with WorkOS and mints store-backed
// bearer sessions. WorkOS owns passwords; the local users table owns the
// ledger and profile.
type Authenticator struct {
	clientID     string
	store        *store.Store
	signupTokens int64
	logger       *slog.Logger
}

// NewAuthenticator configures the WorkOS key once. logger may be nil.
func NewAuthenticator(apiKey, clientID string, st *store.Store, signupTokens int64, logger *slog.Logger) *Authenticator {
	usermanagement.SetAPIKey(apiKey)
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{clientID: clientID, store: st, signupTokens: signupTokens, logger: logger}
}

// Credentials is an email/password pair.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the login result handed to clients.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt string     `json:"expires_at"`
	User      store.User `json:"-"`
}

// Register creates the WorkOS identity and the local account with the
// signup token grant, then logs the user in.
func (a *Authenticator) Register(ctx context.Context, creds Credentials, displayName string) (Session, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || creds.Password == "" {
		return Session{}, core.NewInvalidRequestError("email and password are required")
	}

	wosUser, err := usermanagement.CreateUser(ctx, usermanagement.CreateUserOpts{
		Email:     email,
		Password:  creds.Password,
		FirstName: displayName,
	})
	if err != nil {
		return Session{}, core.NewAuthenticationError("signup rejected: " + err.Error())
	}

	user, err := a.store.CreateUser(ctx, email, displayName, wosUser.ID, a.signupTokens)
	if err != nil {
		return Session{}, err
	}
	return a.mint(ctx, user)
}

// Login verifies the password with WorkOS and returns a bearer session. An
// identity that verified upstream but has no local row yet is provisioned on
// the spot.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (Session, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || creds.Password == "" {
		return Session{}, core.NewInvalidRequestError("email and password are required")
	}

	resp, err := usermanagement.AuthenticateWithPassword(ctx, usermanagement.AuthenticateWithPasswordOpts{
		ClientID: a.clientID,
		Email:    email,
		Password: creds.Password,
	})
	if err != nil {
		return Session{}, core.NewAuthenticationError("invalid email or password")
	}

	user, err := a.store.GetUserByEmail(ctx, email)
	if core.IsType(err, core.ErrNotFound) {
		a.logger.Info("provisioning account on first login", "email", email)
		user, err = a.store.CreateUser(ctx, email, resp.User.FirstName, resp.User.ID, a.signupTokens)
	}
	if err != nil {
		return Session{}, err
	}
	return a.mint(ctx, user)
}

// RequestPasswordReset asks WorkOS to send the reset email. Always succeeds
// from the caller's view so addresses cannot be probed.
func (a *Authenticator) RequestPasswordReset(ctx context.Context, email, resetURL string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	_, err := usermanagement.CreatePasswordReset(ctx, usermanagement.CreatePasswordResetOpts{
		Email: email,
	})
	if err != nil {
		a.logger.Warn("password reset request failed", "error", err)
	}
}

// Logout revokes one bearer token.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	return a.store.DeleteSession(ctx, token)
}

func (a *Authenticator) mint(ctx context.Context, user store.User) (Session, error) {
	sess, err := a.store.CreateSession(ctx, user.ID, 0)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		User:      user,
	}, nil
}
