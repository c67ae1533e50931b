// Package bitbucket implements OAuth 1.0a authentication with Bitbucket.
//
// OAuth 1.0a needs a request token before the user can be redirected, and
// the matching token secret must survive the redirect round trip. The
// adapter surfaces that secret as HandshakeState; the login flow persists
// it in the pending session.
package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/jxmono/login-providers/internal/provider"
)

const ProviderName = "bitbucket"

const (
	requestTokenEndpoint = "https://bitbucket.org/api/1.0/oauth/request_token/"
	authorizeEndpoint    = "https://bitbucket.org/api/1.0/oauth/authenticate/"
	accessTokenEndpoint  = "https://bitbucket.org/api/1.0/oauth/access_token/"
	profileEndpoint      = "https://bitbucket.org/api/1.0/user"
	emailsEndpoint       = "https://bitbucket.org/api/1.0/emails"
)

// Provider is the Bitbucket OAuth 1.0a adapter.
type Provider struct {
	config *oauth1.Config

	profileURL string
	emailsURL  string

	timeout time.Duration
}

// Option tweaks a Provider. Used for tests.
type Option func(*Provider)

// WithTimeout bounds every outbound call to Bitbucket.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithEndpoints overrides the OAuth and API endpoints.
func WithEndpoints(requestToken, authorize, accessToken, profile, emails string) Option {
	return func(p *Provider) {
		p.config.Endpoint = oauth1.Endpoint{
			RequestTokenURL: requestToken,
			AuthorizeURL:    authorize,
			AccessTokenURL:  accessToken,
		}
		p.profileURL = profile
		p.emailsURL = emails
	}
}

// New creates a Bitbucket provider bound to the given secrets.
// The secrets must contain clientId, secretKey and loginLink (the OAuth
// 1.0a callback URL registered with Bitbucket).
func New(secrets provider.Secrets, opts ...Option) (*Provider, error) {
	if secrets.ClientID == "" || secrets.SecretKey == "" || secrets.LoginLink == "" {
		return nil, fmt.Errorf("%w: the bitbucket secrets must contain: clientId, secretKey, loginLink",
			provider.ErrInvalidConfiguration)
	}
	p := &Provider{
		config: &oauth1.Config{
			ConsumerKey:    secrets.ClientID,
			ConsumerSecret: secrets.SecretKey,
			CallbackURL:    secrets.LoginLink,
			Endpoint: oauth1.Endpoint{
				RequestTokenURL: requestTokenEndpoint,
				AuthorizeURL:    authorizeEndpoint,
				AccessTokenURL:  accessTokenEndpoint,
			},
		},
		profileURL: profileEndpoint,
		emailsURL:  emailsEndpoint,
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	// dghubble issues the request-token and access-token legs through the
	// config's client; without this override they hit http.DefaultClient,
	// which has no timeout.
	p.config.HTTPClient = &http.Client{Timeout: p.timeout}
	return p, nil
}

// Factory adapts New to the registry signature.
func Factory(secrets provider.Secrets) (provider.Provider, error) {
	return New(secrets)
}

func (p *Provider) Name() string        { return ProviderName }
func (p *Provider) Kind() provider.Kind { return provider.KindOAuth1 }

// AuthorizationURL obtains a request token and builds the authenticate URL.
// The returned HandshakeState must be stored in the session before the
// redirect happens; the access token exchange needs the request secret.
func (p *Provider) AuthorizationURL(ctx context.Context) (string, *provider.HandshakeState, error) {
	requestToken, requestSecret, err := p.config.RequestToken()
	if err != nil {
		return "", nil, upstreamErr(err)
	}
	u, err := p.config.AuthorizationURL(requestToken)
	if err != nil {
		return "", nil, upstreamErr(err)
	}
	hs := &provider.HandshakeState{
		RequestToken:  requestToken,
		RequestSecret: requestSecret,
	}
	return u.String(), hs, nil
}

type profileResponse struct {
	User struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	} `json:"user"`
}

type emailEntry struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
	Active  bool   `json:"active"`
}

// Exchange completes the OAuth 1.0a handshake and fetches the profile plus
// the email list. Email policy: the address marked both active and primary;
// an account without one is treated as inactive.
func (p *Provider) Exchange(ctx context.Context, cb provider.CallbackData, hs *provider.HandshakeState) (*provider.Identity, error) {
	if cb.Verifier == "" {
		return nil, fmt.Errorf("%w: the bitbucket auth data must contain: oauth_verifier", provider.ErrInvalidCallback)
	}
	if hs == nil || hs.RequestToken == "" || hs.RequestSecret == "" {
		return nil, fmt.Errorf("%w: missing oauth handshake state in session", provider.ErrInvalidCallback)
	}

	accessToken, accessSecret, err := p.config.AccessToken(hs.RequestToken, hs.RequestSecret, cb.Verifier)
	if err != nil {
		return nil, upstreamErr(err)
	}

	client := p.config.Client(ctx, oauth1.NewToken(accessToken, accessSecret))
	client.Timeout = p.timeout

	var profile profileResponse
	if err := p.apiGet(ctx, client, p.profileURL, &profile); err != nil {
		return nil, err
	}

	var emails []emailEntry
	if err := p.apiGet(ctx, client, p.emailsURL, &emails); err != nil {
		return nil, err
	}

	var email string
	for _, e := range emails {
		if e.Active && e.Primary {
			email = e.Email
			break
		}
	}
	if email == "" {
		return nil, fmt.Errorf("%w: this bitbucket user is not active", provider.ErrInactiveAccount)
	}

	raw := map[string]any{
		"username":     profile.User.Username,
		"display_name": profile.User.DisplayName,
	}

	// Bitbucket's user endpoint exposes no stable numeric id, so the
	// username is the native id here.
	return &provider.Identity{
		Provider:   ProviderName,
		ExternalID: ProviderName + "_" + profile.User.Username,
		Username:   profile.User.Username,
		FullName:   profile.User.DisplayName,
		Email:      email,
		Auth: provider.AuthMaterial{
			AccessToken:       accessToken,
			AccessTokenSecret: accessSecret,
		},
		Raw: raw,
	}, nil
}

func (p *Provider) apiGet(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUpstreamProvider, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return upstreamErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: bitbucket api returned %d", provider.ErrUpstreamProvider, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", provider.ErrUpstreamProvider, err)
	}
	return nil
}

func upstreamErr(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", provider.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", provider.ErrUpstreamProvider, err)
}
