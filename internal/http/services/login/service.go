// Package login orchestrates the third-party login flow: redirect to the
// provider, exchange the callback proof, reconcile the account and issue the
// session. Controllers stay thin; every decision lives here.
package login

import (
	"context"
	"errors"

	"github.com/jxmono/login-providers/internal/account"
)

// Service drives the login lifecycle.
type Service interface {
	// Redirect computes the provider authorize URL and prepares the session
	// that must survive the round trip.
	Redirect(ctx context.Context, req RedirectRequest) (*RedirectResult, error)

	// Login processes the provider callback: exchange, account
	// reconciliation, role resolution and session issuance.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)

	// Logout ends an authenticated session.
	Logout(ctx context.Context, sessionID string) error

	// UserInfo returns the session payload of an authenticated session.
	// It never fails: an absent, anonymous or broken session reads as
	// "nobody logged in" (nil payload).
	UserInfo(ctx context.Context, sessionID string) *account.SessionPayload
}

// RedirectRequest contains the parameters for starting a login flow.
type RedirectRequest struct {
	Provider    string
	SecretsFile string
	SessionID   string // existing session to reuse, may be empty
	Locale      string
}

// RedirectResult tells the controller where to send the user.
type RedirectResult struct {
	URL       string
	SessionID string
}

// LoginRequest contains the callback parameters of a login attempt.
type LoginRequest struct {
	Provider    string
	SecretsFile string
	SessionID   string
	Locale      string
	Role        string

	Code     string // OAuth 2.0 authorization code
	Verifier string // OAuth 1.0a oauth_verifier
	State    string // OAuth 2.0 signed state, when present
}

// LoginResult is the outcome of a successful (or idempotent) login.
type LoginResult struct {
	SessionID string
	// AlreadyLoggedIn is set when the session was authenticated before the
	// call; nothing was exchanged or written.
	AlreadyLoggedIn bool
}

// Errors for the login service. Controllers map these onto HTTP responses.
var (
	ErrMissingProvider = errors.New("missing provider")
	ErrMissingRole     = errors.New("missing role")
	ErrNotLoggedIn     = errors.New("not logged in")
)
