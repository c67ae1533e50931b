// Package github implements OAuth 2.0 authentication with GitHub.
// GitHub uses plain OAuth 2.0 without ID tokens, so the profile and the
// email list require separate API calls after the code exchange.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jxmono/login-providers/internal/provider"
)

const ProviderName = "github"

const (
	authEndpoint  = "https://github.com/login/oauth/authorize"
	tokenEndpoint = "https://github.com/login/oauth/access_token"
	userEndpoint  = "https://api.github.com/user"
	emailEndpoint = "https://api.github.com/user/emails"
)

// Scopes requested when the secrets file does not name any.
var defaultScopes = []string{
	"repo",
	"user",
	"user:email",
	"user:follow",
	"public_repo",
	"repo:status",
	"delete_repo",
	"notifications",
	"gist",
}

// Provider is the GitHub OAuth 2.0 adapter.
type Provider struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	state        string

	// endpoint overrides, used by tests
	authURL  string
	tokenURL string
	userURL  string
	emailURL string

	http *http.Client
}

// Option tweaks a Provider. Used for tests and non-default deployments.
type Option func(*Provider)

// WithEndpoints overrides the GitHub endpoints.
func WithEndpoints(auth, token, user, email string) Option {
	return func(p *Provider) {
		p.authURL, p.tokenURL, p.userURL, p.emailURL = auth, token, user, email
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.http = c }
}

// WithState sets the signed state parameter carried on the authorize URL.
func WithState(state string) Option {
	return func(p *Provider) { p.state = state }
}

// New creates a GitHub provider bound to the given secrets.
// The secrets must contain clientId and secretKey.
func New(secrets provider.Secrets, opts ...Option) (*Provider, error) {
	if secrets.ClientID == "" || secrets.SecretKey == "" {
		return nil, fmt.Errorf("%w: the github secrets must contain: clientId, secretKey",
			provider.ErrInvalidConfiguration)
	}
	scopes := secrets.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	p := &Provider{
		clientID:     secrets.ClientID,
		clientSecret: secrets.SecretKey,
		redirectURI:  secrets.RedirectURI,
		scopes:       scopes,
		authURL:      authEndpoint,
		tokenURL:     tokenEndpoint,
		userURL:      userEndpoint,
		emailURL:     emailEndpoint,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Factory adapts New to the registry signature.
func Factory(secrets provider.Secrets) (provider.Provider, error) {
	return New(secrets)
}

func (p *Provider) Name() string        { return ProviderName }
func (p *Provider) Kind() provider.Kind { return provider.KindOAuth2 }

// SetState sets the signed state carried on the authorize URL.
func (p *Provider) SetState(state string) { p.state = state }

// AuthorizationURL builds the authorize URL by template. OAuth 2.0 needs no
// request token, so there is no network round trip and no handshake state.
func (p *Provider) AuthorizationURL(ctx context.Context) (string, *provider.HandshakeState, error) {
	u, err := url.Parse(p.authURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad authorize endpoint: %v", provider.ErrInvalidConfiguration, err)
	}
	q := u.Query()
	q.Set("client_id", p.clientID)
	if p.redirectURI != "" {
		q.Set("redirect_uri", p.redirectURI)
	}
	q.Set("scope", strings.Join(p.scopes, ","))
	if p.state != "" {
		q.Set("state", p.state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

type userInfo struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type emailInfo struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange turns the authorization code into a normalized identity.
// Email policy: the profile's own email field if present, else the first
// entry of the account's email list; with neither the account is treated
// as inactive.
func (p *Provider) Exchange(ctx context.Context, cb provider.CallbackData, _ *provider.HandshakeState) (*provider.Identity, error) {
	if cb.Code == "" {
		return nil, fmt.Errorf("%w: the github auth data must contain: code", provider.ErrInvalidCallback)
	}

	accessToken, err := p.exchangeCode(ctx, cb.Code)
	if err != nil {
		return nil, err
	}

	var info userInfo
	if err := p.apiGet(ctx, p.userURL, accessToken, &info); err != nil {
		return nil, err
	}

	var emails []emailInfo
	if err := p.apiGet(ctx, p.emailURL, accessToken, &emails); err != nil {
		return nil, err
	}

	email := info.Email
	if email == "" && len(emails) > 0 {
		email = emails[0].Email
	}
	if email == "" {
		return nil, fmt.Errorf("%w: this github user is not active", provider.ErrInactiveAccount)
	}

	raw := map[string]any{
		"id":    info.ID,
		"login": info.Login,
		"name":  info.Name,
		"email": info.Email,
	}

	return &provider.Identity{
		Provider:   ProviderName,
		ExternalID: ProviderName + "_" + strconv.FormatInt(info.ID, 10),
		Username:   info.Login,
		FullName:   info.Name,
		Email:      email,
		Auth:       provider.AuthMaterial{AccessToken: accessToken},
		Raw:        raw,
	}, nil
}

func (p *Provider) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("code", code)
	if p.redirectURI != "" {
		form.Set("redirect_uri", p.redirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrUpstreamProvider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", upstreamErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: github returned %d", provider.ErrUpstreamProvider, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", provider.ErrUpstreamProvider, err)
	}
	if tr.Error != "" {
		return "", fmt.Errorf("%w: %s %s", provider.ErrUpstreamProvider, tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: no access_token in response", provider.ErrUpstreamProvider)
	}
	return tr.AccessToken, nil
}

func (p *Provider) apiGet(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUpstreamProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return upstreamErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: github api returned %d", provider.ErrUpstreamProvider, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", provider.ErrUpstreamProvider, err)
	}
	return nil
}

// upstreamErr distinguishes timeouts from other transport failures.
func upstreamErr(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", provider.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", provider.ErrUpstreamProvider, err)
}
