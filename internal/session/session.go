// Package session manages the application sessions issued by the login
// flow.
//
// A session's state is always one of three tagged variants: Anonymous,
// PendingHandshake (bridging an OAuth 1.0a redirect round trip, carrying
// the request-token secret) or Authenticated (bound to a concrete user and
// role). There is no sentinel user id; the variant tag is the source of
// truth.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jxmono/login-providers/internal/account"
	"github.com/jxmono/login-providers/internal/provider"
)

// ErrSession wraps any backend failure of the session layer.
var ErrSession = errors.New("session error")

// StateKind tags the session state variant.
type StateKind string

const (
	Anonymous        StateKind = "anonymous"
	PendingHandshake StateKind = "pending_handshake"
	Authenticated    StateKind = "authenticated"
)

// State is the tagged session state. Fields are only meaningful for the
// variant named by Kind.
type State struct {
	Kind StateKind `json:"kind"`

	// PendingHandshake
	Provider  string                   `json:"provider,omitempty"`
	Handshake *provider.HandshakeState `json:"handshake,omitempty"`

	// Authenticated
	UserID string `json:"user_id,omitempty"`
	RoleID string `json:"role_id,omitempty"`
}

// Authenticated reports whether the session is bound to a real user.
func (s State) Authenticated() bool { return s.Kind == Authenticated }

// Session is the transient per-flow state owned by this service.
type Session struct {
	ID        string                  `json:"id"`
	State     State                   `json:"state"`
	Locale    string                  `json:"locale"`
	Data      *account.SessionPayload `json:"data,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// Store persists sessions. Implementations must treat a missing session as
// (nil, nil), not an error.
type Store interface {
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// Manager drives the session lifecycle on top of a Store.
type Manager struct {
	store      Store
	ttl        time.Duration // authenticated sessions
	pendingTTL time.Duration // anonymous / mid-handshake sessions
	now        func() time.Time
}

// NewManager creates a manager. Zero TTLs get sane defaults.
func NewManager(store Store, ttl, pendingTTL time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if pendingTTL <= 0 {
		pendingTTL = 10 * time.Minute
	}
	return &Manager{store: store, ttl: ttl, pendingTTL: pendingTTL, now: time.Now}
}

// Start opens a placeholder session. It exists to bridge the OAuth 1.0a
// redirect round trip, where the request-token secret must survive between
// the redirect and the callback.
func (m *Manager) Start(ctx context.Context, locale string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		State:     State{Kind: Anonymous},
		Locale:    locale,
		CreatedAt: now,
		ExpiresAt: now.Add(m.pendingTTL),
	}
	if err := m.store.Put(ctx, s, m.pendingTTL); err != nil {
		return nil, wrap(err)
	}
	return s, nil
}

// SetHandshake moves a session into PendingHandshake, persisting the
// provider's request token and secret.
func (m *Manager) SetHandshake(ctx context.Context, id, providerName string, hs *provider.HandshakeState) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return wrap(errors.New("no such session"))
	}
	s.State = State{Kind: PendingHandshake, Provider: providerName, Handshake: hs}
	return wrap(m.store.Put(ctx, s, m.pendingTTL))
}

// Renew upgrades a session to Authenticated, bound to the resolved role,
// user, locale and narrow payload. The previous state (anonymous or
// pending) is discarded wholesale.
func (m *Manager) Renew(ctx context.Context, id, roleID, userID, locale string, data *account.SessionPayload) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if s == nil {
		s = &Session{ID: id, CreatedAt: now}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
	}
	s.State = State{Kind: Authenticated, UserID: userID, RoleID: roleID}
	s.Locale = locale
	s.Data = data
	s.ExpiresAt = now.Add(m.ttl)
	if err := m.store.Put(ctx, s, m.ttl); err != nil {
		return nil, wrap(err)
	}
	return s, nil
}

// End removes the session. Ending an absent session is not an error.
func (m *Manager) End(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return wrap(m.store.Delete(ctx, id))
}

// Get returns the session, or nil when absent or expired.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	if s != nil && m.now().After(s.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return nil, nil
	}
	return s, nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSession, err)
}
