// Package provider defines the pluggable login provider system.
//
// Each supported identity provider (GitHub, Bitbucket, ...) lives in its own
// sub-package and implements the Provider interface. Adapters normalize the
// different OAuth 1.0a / OAuth 2.0 responses into a common Identity so the
// rest of the login flow never sees provider-specific shapes.
package provider

import (
	"context"
	"errors"
)

// Kind indicates the authentication protocol a provider speaks.
type Kind string

const (
	KindOAuth1 Kind = "oauth1"
	KindOAuth2 Kind = "oauth2"
)

// Secrets holds the per-provider credentials loaded from the secrets file.
// Which fields are required depends on the provider's protocol; adapters
// validate before any network call.
type Secrets struct {
	ClientID    string   `yaml:"clientId"`
	SecretKey   string   `yaml:"secretKey"`
	LoginLink   string   `yaml:"loginLink,omitempty"`   // OAuth 1.0a callback URL
	RedirectURI string   `yaml:"redirectUri,omitempty"` // OAuth 2.0 redirect URL
	Scopes      []string `yaml:"scopes,omitempty"`
}

// CallbackData is the proof the provider sends back through the client.
type CallbackData struct {
	Code     string // OAuth 2.0 authorization code
	Verifier string // OAuth 1.0a oauth_verifier
	State    string // signed state parameter, OAuth 2.0 only
}

// HandshakeState is the intermediate secret an OAuth 1.0a provider hands out
// with the request token. It must survive the redirect round trip inside the
// caller's session; OAuth 2.0 providers never produce one.
type HandshakeState struct {
	RequestToken  string `json:"request_token"`
	RequestSecret string `json:"request_secret"`
}

// AuthMaterial carries the tokens obtained from a successful exchange.
type AuthMaterial struct {
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret,omitempty"` // OAuth 1.0a only
}

// Identity is the normalized output of a provider exchange.
// Constructed per login attempt, never persisted directly.
type Identity struct {
	Provider string
	// ExternalID is globally namespaced as "<provider>_<nativeID>" so that
	// providers sharing numeric id spaces cannot collide.
	ExternalID string
	Username   string
	FullName   string
	Email      string
	Auth       AuthMaterial
	Raw        map[string]any
}

// Provider is implemented once per external identity provider.
type Provider interface {
	Name() string
	Kind() Kind

	// AuthorizationURL computes the URL the user must be redirected to.
	// OAuth 1.0a providers first obtain a request token and return the
	// HandshakeState the caller must persist before redirecting.
	AuthorizationURL(ctx context.Context) (url string, hs *HandshakeState, err error)

	// Exchange turns the callback proof into a normalized Identity.
	// hs is required for OAuth 1.0a, ignored otherwise.
	Exchange(ctx context.Context, cb CallbackData, hs *HandshakeState) (*Identity, error)
}

// StateSetter is implemented by providers whose authorize URL carries an
// opaque state parameter (OAuth 2.0). The login service injects a signed
// state after constructing the provider.
type StateSetter interface {
	SetState(state string)
}

// Sentinel errors for the provider layer. Adapters wrap them with %w and
// provider-specific detail.
var (
	ErrInvalidConfiguration = errors.New("invalid provider configuration")
	ErrInvalidCallback      = errors.New("invalid callback data")
	ErrUpstreamProvider     = errors.New("upstream provider error")
	ErrUpstreamTimeout      = errors.New("upstream provider timeout")
	ErrInactiveAccount      = errors.New("provider account has no usable email")
)
