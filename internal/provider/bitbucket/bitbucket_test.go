package bitbucket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jxmono/login-providers/internal/provider"
	"github.com/jxmono/login-providers/internal/provider/bitbucket"
)

func testSecrets() provider.Secrets {
	return provider.Secrets{
		ClientID:  "consumer-key",
		SecretKey: "consumer-secret",
		LoginLink: "https://app.example.com/callback",
	}
}

// newUpstream fakes the OAuth 1.0a endpoints plus the profile/email API.
func newUpstream(t *testing.T, emailsBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/request_token", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_consumer_key="consumer-key"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.Contains(auth, `oauth_token="req-token"`) || !strings.Contains(auth, `oauth_verifier="the-verifier"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=acc-token&oauth_token_secret=acc-secret"))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_token="acc-token"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"username":"octocat","display_name":"The Octocat"}}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(emailsBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server) *bitbucket.Provider {
	t.Helper()
	p, err := bitbucket.New(testSecrets(), bitbucket.WithEndpoints(
		srv.URL+"/request_token",
		srv.URL+"/authenticate",
		srv.URL+"/access_token",
		srv.URL+"/user",
		srv.URL+"/emails",
	))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestNew_RequiresCallbackURL(t *testing.T) {
	_, err := bitbucket.New(provider.Secrets{ClientID: "k", SecretKey: "s"})
	if !errors.Is(err, provider.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestAuthorizationURL_ProducesHandshake(t *testing.T) {
	srv := newUpstream(t, `[]`)
	p := newProvider(t, srv)

	raw, hs, err := p.AuthorizationURL(context.Background())
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	if hs == nil {
		t.Fatal("oauth1 must produce handshake state")
	}
	if hs.RequestToken != "req-token" || hs.RequestSecret != "req-secret" {
		t.Fatalf("handshake = %#v", hs)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Query().Get("oauth_token") != "req-token" {
		t.Fatalf("oauth_token = %q", u.Query().Get("oauth_token"))
	}
}

// newSlowUpstream answers every endpoint after the given delay.
func newSlowUpstream(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSlowProvider(t *testing.T, srv *httptest.Server, timeout time.Duration) *bitbucket.Provider {
	t.Helper()
	p, err := bitbucket.New(testSecrets(),
		bitbucket.WithTimeout(timeout),
		bitbucket.WithEndpoints(
			srv.URL+"/request_token",
			srv.URL+"/authenticate",
			srv.URL+"/access_token",
			srv.URL+"/user",
			srv.URL+"/emails",
		),
	)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestAuthorizationURL_RequestTokenTimesOut(t *testing.T) {
	srv := newSlowUpstream(t, 500*time.Millisecond)
	p := newSlowProvider(t, srv, 50*time.Millisecond)

	_, _, err := p.AuthorizationURL(context.Background())
	if !errors.Is(err, provider.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestExchange_AccessTokenTimesOut(t *testing.T) {
	srv := newSlowUpstream(t, 500*time.Millisecond)
	p := newSlowProvider(t, srv, 50*time.Millisecond)

	hs := &provider.HandshakeState{RequestToken: "req-token", RequestSecret: "req-secret"}
	_, err := p.Exchange(context.Background(), provider.CallbackData{Verifier: "the-verifier"}, hs)
	if !errors.Is(err, provider.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestExchange_FullHandshake(t *testing.T) {
	srv := newUpstream(t, `[
		{"email":"secondary@example.com","primary":false,"active":true},
		{"email":"primary@example.com","primary":true,"active":true}
	]`)
	p := newProvider(t, srv)

	hs := &provider.HandshakeState{RequestToken: "req-token", RequestSecret: "req-secret"}
	id, err := p.Exchange(context.Background(), provider.CallbackData{Verifier: "the-verifier"}, hs)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if id.ExternalID != "bitbucket_octocat" {
		t.Fatalf("external id = %q", id.ExternalID)
	}
	if id.Email != "primary@example.com" {
		t.Fatalf("must pick the active+primary email, got %q", id.Email)
	}
	if id.Auth.AccessToken != "acc-token" || id.Auth.AccessTokenSecret != "acc-secret" {
		t.Fatalf("auth = %#v", id.Auth)
	}
}

func TestExchange_NoPrimaryEmailMeansInactive(t *testing.T) {
	srv := newUpstream(t, `[{"email":"old@example.com","primary":true,"active":false}]`)
	p := newProvider(t, srv)

	hs := &provider.HandshakeState{RequestToken: "req-token", RequestSecret: "req-secret"}
	_, err := p.Exchange(context.Background(), provider.CallbackData{Verifier: "the-verifier"}, hs)
	if !errors.Is(err, provider.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestExchange_MissingVerifier(t *testing.T) {
	srv := newUpstream(t, `[]`)
	p := newProvider(t, srv)

	hs := &provider.HandshakeState{RequestToken: "req-token", RequestSecret: "req-secret"}
	_, err := p.Exchange(context.Background(), provider.CallbackData{}, hs)
	if !errors.Is(err, provider.ErrInvalidCallback) {
		t.Fatalf("expected ErrInvalidCallback, got %v", err)
	}
}

func TestExchange_MissingHandshake(t *testing.T) {
	srv := newUpstream(t, `[]`)
	p := newProvider(t, srv)

	_, err := p.Exchange(context.Background(), provider.CallbackData{Verifier: "the-verifier"}, nil)
	if !errors.Is(err, provider.ErrInvalidCallback) {
		t.Fatalf("expected ErrInvalidCallback, got %v", err)
	}
}
