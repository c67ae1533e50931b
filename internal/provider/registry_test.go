package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jxmono/login-providers/internal/provider"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string        { return s.name }
func (s *stubProvider) Kind() provider.Kind { return provider.KindOAuth2 }
func (s *stubProvider) AuthorizationURL(context.Context) (string, *provider.HandshakeState, error) {
	return "https://example.com/auth", nil, nil
}
func (s *stubProvider) Exchange(context.Context, provider.CallbackData, *provider.HandshakeState) (*provider.Identity, error) {
	return &provider.Identity{Provider: s.name}, nil
}

func TestRegistry_NewKnownProvider(t *testing.T) {
	r := provider.NewRegistry()
	r.Register("stub", func(secrets provider.Secrets) (provider.Provider, error) {
		if secrets.ClientID == "" {
			return nil, provider.ErrInvalidConfiguration
		}
		return &stubProvider{name: "stub"}, nil
	})

	p, err := r.New("stub", provider.Secrets{ClientID: "id"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Name() != "stub" {
		t.Fatalf("name = %q", p.Name())
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := provider.NewRegistry()

	_, err := r.New("nope", provider.Secrets{})
	if !errors.Is(err, provider.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := provider.NewRegistry()
	factory := func(provider.Secrets) (provider.Provider, error) { return &stubProvider{}, nil }
	r.Register("github", factory)
	r.Register("bitbucket", factory)

	names := r.Names()
	if len(names) != 2 || names[0] != "bitbucket" || names[1] != "github" {
		t.Fatalf("names = %v", names)
	}
}
