package login

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jxmono/login-providers/internal/account"
	"github.com/jxmono/login-providers/internal/provider"
	"github.com/jxmono/login-providers/internal/role"
	"github.com/jxmono/login-providers/internal/secrets"
	"github.com/jxmono/login-providers/internal/session"
	memstore "github.com/jxmono/login-providers/internal/store/memory"
)

// fakeProvider scripts both phases of the flow and records what it was
// handed, so tests can assert on the orchestration rather than on OAuth
// wire details.
type fakeProvider struct {
	kind     provider.Kind
	hs       *provider.HandshakeState
	authErr  error
	exchErr  error
	identity *provider.Identity

	state         string
	exchangeCalls int
	gotHandshake  *provider.HandshakeState
}

func (f *fakeProvider) Name() string          { return "fake" }
func (f *fakeProvider) Kind() provider.Kind   { return f.kind }
func (f *fakeProvider) SetState(state string) { f.state = state }
func (f *fakeProvider) AuthorizationURL(context.Context) (string, *provider.HandshakeState, error) {
	if f.authErr != nil {
		return "", nil, f.authErr
	}
	return "https://provider.example.com/authorize", f.hs, nil
}
func (f *fakeProvider) Exchange(_ context.Context, _ provider.CallbackData, hs *provider.HandshakeState) (*provider.Identity, error) {
	f.exchangeCalls++
	f.gotHandshake = hs
	if f.exchErr != nil {
		return nil, f.exchErr
	}
	return f.identity, nil
}

type fixture struct {
	svc      Service
	prov     *fakeProvider
	sessions *session.Manager
	file     string
}

func newFixture(t *testing.T, prov *fakeProvider, signer StateSigner) *fixture {
	t.Helper()

	file := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(file, []byte("fake:\n  clientId: id\n  secretKey: key\n"), 0o600))

	registry := provider.NewRegistry()
	registry.Register("fake", func(provider.Secrets) (provider.Provider, error) { return prov, nil })

	sessions := session.NewManager(session.NewMemoryStore(), time.Hour, 10*time.Minute)

	svc := NewService(Deps{
		Registry:    registry,
		Secrets:     secrets.NewLoader(),
		Accounts:    account.NewResolver(memstore.New()),
		Sessions:    sessions,
		Roles:       role.NewStaticResolver(map[string]string{"user": "role-1"}),
		StateSigner: signer,
	})
	return &fixture{svc: svc, prov: prov, sessions: sessions, file: file}
}

func identityFixture() *provider.Identity {
	return &provider.Identity{
		Provider:   "fake",
		ExternalID: "fake_42",
		Username:   "octocat",
		FullName:   "The Octocat",
		Email:      "octo@example.com",
		Auth:       provider.AuthMaterial{AccessToken: "tok"},
	}
}

func TestRedirect_OAuth2SignsState(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2}
	signer := NewHMACStateSigner([]byte("secret"), time.Minute)
	f := newFixture(t, prov, signer)

	result, err := f.svc.Redirect(context.Background(), RedirectRequest{
		Provider:    "fake",
		SecretsFile: f.file,
		Locale:      "en",
	})
	require.NoError(t, err)
	require.Equal(t, "https://provider.example.com/authorize", result.URL)
	require.NotEmpty(t, result.SessionID)
	require.NotEmpty(t, prov.state, "oauth2 provider must receive a signed state")

	claims, err := signer.ParseState(prov.state)
	require.NoError(t, err)
	require.Equal(t, "fake", claims.Provider)
	require.Equal(t, result.SessionID, claims.SessionID)

	sess, err := f.sessions.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, session.Anonymous, sess.State.Kind)
}

func TestRedirect_OAuth1StoresHandshake(t *testing.T) {
	prov := &fakeProvider{
		kind: provider.KindOAuth1,
		hs:   &provider.HandshakeState{RequestToken: "rt", RequestSecret: "rs"},
	}
	f := newFixture(t, prov, nil)

	result, err := f.svc.Redirect(context.Background(), RedirectRequest{
		Provider:    "fake",
		SecretsFile: f.file,
	})
	require.NoError(t, err)

	sess, err := f.sessions.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.Equal(t, session.PendingHandshake, sess.State.Kind)
	require.Equal(t, "fake", sess.State.Provider)
	require.Equal(t, "rs", sess.State.Handshake.RequestSecret)
}

func TestRedirect_FailureTearsDownStartedSession(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth1, authErr: provider.ErrUpstreamProvider}
	f := newFixture(t, prov, nil)

	_, err := f.svc.Redirect(context.Background(), RedirectRequest{
		Provider:    "fake",
		SecretsFile: f.file,
	})
	require.ErrorIs(t, err, provider.ErrUpstreamProvider)
}

func TestRedirect_MissingProvider(t *testing.T) {
	f := newFixture(t, &fakeProvider{kind: provider.KindOAuth2}, nil)

	_, err := f.svc.Redirect(context.Background(), RedirectRequest{SecretsFile: f.file})
	require.ErrorIs(t, err, ErrMissingProvider)
}

func TestLogin_FullFlow(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2, identity: identityFixture()}
	f := newFixture(t, prov, nil)
	ctx := context.Background()

	redirect, err := f.svc.Redirect(ctx, RedirectRequest{Provider: "fake", SecretsFile: f.file, Locale: "en"})
	require.NoError(t, err)

	result, err := f.svc.Login(ctx, LoginRequest{
		Provider:    "fake",
		SecretsFile: f.file,
		SessionID:   redirect.SessionID,
		Role:        "user",
		Code:        "the-code",
	})
	require.NoError(t, err)
	require.False(t, result.AlreadyLoggedIn)

	sess, err := f.sessions.Get(ctx, result.SessionID)
	require.NoError(t, err)
	require.True(t, sess.State.Authenticated())
	require.Equal(t, "role-1", sess.State.RoleID)
	require.NotEmpty(t, sess.State.UserID)
	require.Equal(t, "fake", sess.Data.Provider)
	require.Equal(t, "octo@example.com", sess.Data.Email)
	require.Equal(t, "en", sess.Locale)
}

func TestLogin_IdempotentWhenAuthenticated(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2, identity: identityFixture()}
	f := newFixture(t, prov, nil)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, LoginRequest{
		Provider: "fake", SecretsFile: f.file, Role: "user", Code: "the-code",
	})
	require.NoError(t, err)
	require.Equal(t, 1, prov.exchangeCalls)

	second, err := f.svc.Login(ctx, LoginRequest{
		Provider: "fake", SecretsFile: f.file, SessionID: first.SessionID, Role: "user", Code: "the-code",
	})
	require.NoError(t, err)
	require.True(t, second.AlreadyLoggedIn)
	require.Equal(t, first.SessionID, second.SessionID)
	require.Equal(t, 1, prov.exchangeCalls, "an authenticated session must not re-contact the provider")
}

func TestLogin_OAuth1HandshakeReachesExchange(t *testing.T) {
	prov := &fakeProvider{
		kind:     provider.KindOAuth1,
		hs:       &provider.HandshakeState{RequestToken: "rt", RequestSecret: "rs"},
		identity: identityFixture(),
	}
	f := newFixture(t, prov, nil)
	ctx := context.Background()

	redirect, err := f.svc.Redirect(ctx, RedirectRequest{Provider: "fake", SecretsFile: f.file})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{
		Provider:    "fake",
		SecretsFile: f.file,
		SessionID:   redirect.SessionID,
		Role:        "user",
		Verifier:    "the-verifier",
	})
	require.NoError(t, err)
	require.NotNil(t, prov.gotHandshake)
	require.Equal(t, "rs", prov.gotHandshake.RequestSecret)
}

func TestLogin_ExchangeFailureTearsDownSession(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2, exchErr: provider.ErrUpstreamTimeout}
	f := newFixture(t, prov, nil)
	ctx := context.Background()

	redirect, err := f.svc.Redirect(ctx, RedirectRequest{Provider: "fake", SecretsFile: f.file})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{
		Provider: "fake", SecretsFile: f.file, SessionID: redirect.SessionID, Role: "user", Code: "c",
	})
	require.ErrorIs(t, err, provider.ErrUpstreamTimeout)

	sess, err := f.sessions.Get(ctx, redirect.SessionID)
	require.NoError(t, err)
	require.Nil(t, sess, "a failed attempt must not leave a session behind")
}

func TestLogin_UnknownRoleTearsDownSession(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2, identity: identityFixture()}
	f := newFixture(t, prov, nil)
	ctx := context.Background()

	redirect, err := f.svc.Redirect(ctx, RedirectRequest{Provider: "fake", SecretsFile: f.file})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{
		Provider: "fake", SecretsFile: f.file, SessionID: redirect.SessionID, Role: "admin", Code: "c",
	})
	require.ErrorIs(t, err, role.ErrRoleNotFound)

	sess, err := f.sessions.Get(ctx, redirect.SessionID)
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestLogin_MissingRole(t *testing.T) {
	f := newFixture(t, &fakeProvider{kind: provider.KindOAuth2}, nil)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Provider: "fake", SecretsFile: f.file, Code: "c",
	})
	require.ErrorIs(t, err, ErrMissingRole)
}

func TestLogin_StateProviderMismatch(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2, identity: identityFixture()}
	signer := NewHMACStateSigner([]byte("secret"), time.Minute)
	f := newFixture(t, prov, signer)

	foreign, err := signer.SignState(StateClaims{Provider: "other", SessionID: "x"})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), LoginRequest{
		Provider: "fake", SecretsFile: f.file, Role: "user", Code: "c", State: foreign,
	})
	require.ErrorIs(t, err, ErrStateInvalid)
	require.Equal(t, 0, prov.exchangeCalls)
}

func TestLogin_StateRecoversLostSession(t *testing.T) {
	prov := &fakeProvider{
		kind:     provider.KindOAuth1,
		hs:       &provider.HandshakeState{RequestToken: "rt", RequestSecret: "rs"},
		identity: identityFixture(),
	}
	signer := NewHMACStateSigner([]byte("secret"), time.Minute)
	f := newFixture(t, prov, signer)
	ctx := context.Background()

	redirect, err := f.svc.Redirect(ctx, RedirectRequest{Provider: "fake", SecretsFile: f.file})
	require.NoError(t, err)

	state, err := signer.SignState(StateClaims{Provider: "fake", SessionID: redirect.SessionID})
	require.NoError(t, err)

	// No cookie: the session id only travels inside the state.
	_, err = f.svc.Login(ctx, LoginRequest{
		Provider: "fake", SecretsFile: f.file, Role: "user", Verifier: "v", State: state,
	})
	require.NoError(t, err)
	require.NotNil(t, prov.gotHandshake, "handshake must be recovered through the state session id")
}

func TestLogoutAndUserInfo(t *testing.T) {
	prov := &fakeProvider{kind: provider.KindOAuth2, identity: identityFixture()}
	f := newFixture(t, prov, nil)
	ctx := context.Background()

	require.Nil(t, f.svc.UserInfo(ctx, "no-such-session"))
	require.ErrorIs(t, f.svc.Logout(ctx, "no-such-session"), ErrNotLoggedIn)

	result, err := f.svc.Login(ctx, LoginRequest{
		Provider: "fake", SecretsFile: f.file, Role: "user", Code: "c",
	})
	require.NoError(t, err)

	info := f.svc.UserInfo(ctx, result.SessionID)
	require.NotNil(t, info)
	require.Equal(t, "octocat", info.Username)

	require.NoError(t, f.svc.Logout(ctx, result.SessionID))
	require.Nil(t, f.svc.UserInfo(ctx, result.SessionID))
	require.ErrorIs(t, f.svc.Logout(ctx, result.SessionID), ErrNotLoggedIn)
}
