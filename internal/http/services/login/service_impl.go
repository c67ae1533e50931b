package login

import (
	"context"
	"fmt"
	"strings"

	"github.com/jxmono/login-providers/internal/account"
	"github.com/jxmono/login-providers/internal/observability/logger"
	"github.com/jxmono/login-providers/internal/provider"
	"github.com/jxmono/login-providers/internal/role"
	"github.com/jxmono/login-providers/internal/secrets"
	"github.com/jxmono/login-providers/internal/session"
)

// Deps contains the dependencies of the login service.
type Deps struct {
	Registry    *provider.Registry
	Secrets     *secrets.Loader
	Accounts    *account.Resolver
	Sessions    *session.Manager
	Roles       role.Resolver
	StateSigner StateSigner // optional, OAuth 2.0 state signing
}

type service struct {
	registry    *provider.Registry
	secrets     *secrets.Loader
	accounts    *account.Resolver
	sessions    *session.Manager
	roles       role.Resolver
	stateSigner StateSigner
}

// NewService creates the login Service.
func NewService(d Deps) Service {
	return &service{
		registry:    d.Registry,
		secrets:     d.Secrets,
		accounts:    d.Accounts,
		sessions:    d.Sessions,
		roles:       d.Roles,
		stateSigner: d.StateSigner,
	}
}

// Redirect prepares a login attempt. Provider instances are constructed per
// call so no request-scoped material leaks between attempts.
func (s *service) Redirect(ctx context.Context, req RedirectRequest) (*RedirectResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("login.redirect"))

	if req.Provider == "" {
		return nil, ErrMissingProvider
	}

	sec, err := s.secrets.ForProvider(req.SecretsFile, req.Provider)
	if err != nil {
		log.Warn("secrets lookup failed", logger.Provider(req.Provider), logger.Err(err))
		return nil, err
	}
	prov, err := s.registry.New(req.Provider, sec)
	if err != nil {
		log.Warn("unknown provider", logger.Provider(req.Provider), logger.Err(err))
		return nil, err
	}

	// Reuse the caller's session when it still exists, otherwise open a
	// fresh one. The session must exist before the redirect so an OAuth
	// 1.0a handshake has somewhere to live.
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	started := false
	if sess == nil {
		sess, err = s.sessions.Start(ctx, req.Locale)
		if err != nil {
			return nil, err
		}
		started = true
	}

	if setter, ok := prov.(provider.StateSetter); ok && s.stateSigner != nil {
		state, err := s.stateSigner.SignState(StateClaims{Provider: req.Provider, SessionID: sess.ID})
		if err != nil {
			s.teardown(ctx, sess.ID, started)
			return nil, fmt.Errorf("sign state: %w", err)
		}
		setter.SetState(state)
	}

	url, hs, err := prov.AuthorizationURL(ctx)
	if err != nil {
		log.Error("authorize url failed", logger.Provider(req.Provider), logger.Err(err))
		s.teardown(ctx, sess.ID, started)
		return nil, err
	}
	if hs != nil {
		if err := s.sessions.SetHandshake(ctx, sess.ID, req.Provider, hs); err != nil {
			s.teardown(ctx, sess.ID, started)
			return nil, err
		}
	}

	log.Info("redirecting to provider",
		logger.Provider(req.Provider),
		logger.SessionID(sess.ID),
	)
	return &RedirectResult{URL: url, SessionID: sess.ID}, nil
}

// Login processes the provider callback. Any failure after the session came
// into play tears the session down before reporting, so a failed attempt
// never leaves a half-authenticated session behind.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("login.callback"))

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.State.Authenticated() {
		// Already logged in: the callback is replayed or the user went
		// through the flow twice. Nothing to exchange, nothing to write.
		log.Info("session already authenticated", logger.SessionID(sess.ID))
		return &LoginResult{SessionID: sess.ID, AlreadyLoggedIn: true}, nil
	}

	if req.Provider == "" {
		return nil, ErrMissingProvider
	}
	if req.Role == "" {
		return nil, ErrMissingRole
	}

	sec, err := s.secrets.ForProvider(req.SecretsFile, req.Provider)
	if err != nil {
		log.Warn("secrets lookup failed", logger.Provider(req.Provider), logger.Err(err))
		return nil, err
	}
	prov, err := s.registry.New(req.Provider, sec)
	if err != nil {
		log.Warn("unknown provider", logger.Provider(req.Provider), logger.Err(err))
		return nil, err
	}

	// Validate the signed state when the flow carries one. A state minted
	// for another provider is rejected outright; the session id embedded
	// in it recovers the pending session when the cookie got lost.
	if s.stateSigner != nil && req.State != "" {
		claims, err := s.stateSigner.ParseState(req.State)
		if err != nil {
			log.Warn("state validation failed", logger.Err(err))
			return nil, err
		}
		if !strings.EqualFold(claims.Provider, req.Provider) {
			log.Warn("state provider mismatch",
				logger.String("state_provider", claims.Provider),
				logger.Provider(req.Provider),
			)
			return nil, ErrStateInvalid
		}
		if sess == nil && claims.SessionID != "" {
			sess, err = s.sessions.Get(ctx, claims.SessionID)
			if err != nil {
				return nil, err
			}
		}
	}

	var hs *provider.HandshakeState
	if sess != nil && sess.State.Kind == session.PendingHandshake && sess.State.Provider == req.Provider {
		hs = sess.State.Handshake
	}

	sid := ""
	locale := req.Locale
	if sess != nil {
		sid = sess.ID
		if locale == "" {
			locale = sess.Locale
		}
	}

	identity, err := prov.Exchange(ctx, provider.CallbackData{
		Code:     req.Code,
		Verifier: req.Verifier,
		State:    req.State,
	}, hs)
	if err != nil {
		log.Warn("provider exchange failed", logger.Provider(req.Provider), logger.Err(err))
		s.teardown(ctx, sid, true)
		return nil, err
	}
	// The provider name the caller routed by is authoritative.
	identity.Provider = req.Provider

	user, err := s.accounts.Reconcile(ctx, identity)
	if err != nil {
		log.Error("account reconciliation failed", logger.Provider(req.Provider), logger.Err(err))
		s.teardown(ctx, sid, true)
		return nil, err
	}

	payload, err := s.accounts.Payload(user)
	if err != nil {
		log.Error("session payload failed", logger.UserID(user.ID), logger.Err(err))
		s.teardown(ctx, sid, true)
		return nil, err
	}

	rl, err := s.roles.GetRole(ctx, req.Role)
	if err != nil {
		log.Warn("role resolution failed", logger.String("role", req.Role), logger.Err(err))
		s.teardown(ctx, sid, true)
		return nil, err
	}

	authed, err := s.sessions.Renew(ctx, sid, rl.ID, user.ID, locale, payload)
	if err != nil {
		s.teardown(ctx, sid, true)
		return nil, err
	}

	log.Info("login completed",
		logger.Provider(req.Provider),
		logger.UserID(user.ID),
		logger.SessionID(authed.ID),
		logger.Email(payload.Email),
	)
	return &LoginResult{SessionID: authed.ID}, nil
}

// Logout ends an authenticated session.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || !sess.State.Authenticated() {
		return ErrNotLoggedIn
	}
	return s.sessions.End(ctx, sessionID)
}

// UserInfo reads the session payload. By contract it never fails; any
// backend trouble reads as an empty result.
func (s *service) UserInfo(ctx context.Context, sessionID string) *account.SessionPayload {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		logger.From(ctx).Warn("session read failed", logger.Err(err))
		return nil
	}
	if sess == nil || !sess.State.Authenticated() {
		return nil
	}
	return sess.Data
}

// teardown removes a session after a failed attempt. Best effort: the
// pending TTL reaps anything we fail to delete here.
func (s *service) teardown(ctx context.Context, sid string, owned bool) {
	if sid == "" || !owned {
		return
	}
	if err := s.sessions.End(ctx, sid); err != nil {
		logger.From(ctx).Warn("session teardown failed", logger.SessionID(sid), logger.Err(err))
	}
}
