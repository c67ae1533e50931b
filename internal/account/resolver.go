package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jxmono/login-providers/internal/observability/logger"
	"github.com/jxmono/login-providers/internal/provider"
)

// Resolver-level sentinel errors.
var (
	ErrInvalidIdentity = errors.New("identity has neither external id nor email")
	ErrLookup          = errors.New("user lookup failed")
	ErrConflict        = errors.New("user record changed during reconcile")
	ErrRegistration    = errors.New("user registration failed")
	ErrInvariant       = errors.New("user record is missing its last-login record")
)

// SessionPayload is the narrow projection stored in the session. It only
// carries the auth material of the provider the user just logged in with,
// so session storage never accumulates historical tokens.
type SessionPayload struct {
	Provider string                `json:"provider"`
	Username string                `json:"username"`
	Email    string                `json:"email"`
	FullName string                `json:"fullname"`
	Auth     provider.AuthMaterial `json:"auth"`
}

// Resolver finds or creates the user record matching a provider identity.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// FindUser locates an existing user for the identity.
//
// Precedence: first by exact external id match against any stored login
// (the user has used this exact provider account before), then by email
// (the user logged in through another provider sharing the address).
// Returns nil when neither matches.
func (r *Resolver) FindUser(ctx context.Context, id *provider.Identity) (*UserRecord, error) {
	if id.ExternalID == "" && id.Email == "" {
		return nil, ErrInvalidIdentity
	}

	if id.ExternalID != "" {
		user, err := r.store.FindByLoginExternalID(ctx, id.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookup, err)
		}
		if user != nil {
			return user, nil
		}
	}

	if id.Email == "" {
		return nil, nil
	}
	user, err := r.store.FindByLoginEmail(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	return user, nil
}

// Reconcile turns an exchanged identity into a durable user record update:
// merge into the existing user when one matches, register a new one
// otherwise.
//
// Registration is hardened against the find-then-insert race: when the
// store rejects the insert with a uniqueness violation, a concurrent login
// just registered the same identity, so we re-resolve through FindUser
// instead of failing.
func (r *Resolver) Reconcile(ctx context.Context, id *provider.Identity) (*UserRecord, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("account.resolver"))

	user, err := r.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return r.update(ctx, user, id)
	}

	registered, err := r.register(ctx, id)
	if errors.Is(err, ErrDuplicate) {
		log.Info("concurrent registration detected, re-resolving",
			logger.Provider(id.Provider),
			logger.String("external_id", id.ExternalID),
		)
		user, ferr := r.FindUser(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		if user == nil {
			return nil, err
		}
		return r.update(ctx, user, id)
	}
	if err != nil {
		return nil, err
	}

	log.Info("user registered",
		logger.Provider(id.Provider),
		logger.UserID(registered.ID),
	)
	return registered, nil
}

// update replaces the matching-provider login in place, or appends a new
// one, and persists last_login alongside.
func (r *Resolver) update(ctx context.Context, user *UserRecord, id *provider.Identity) (*UserRecord, error) {
	logins := make([]LoginRecord, len(user.Logins))
	copy(logins, user.Logins)

	replaced := false
	for i := range logins {
		if logins[i].Provider == id.Provider {
			logins[i] = loginRecordFrom(id)
			replaced = true
			break
		}
	}
	if !replaced {
		logins = append(logins, loginRecordFrom(id))
	}

	last := LastLogin{At: r.now().UTC(), Provider: id.Provider}

	updated, err := r.store.UpdateLogins(ctx, user.ID, last, logins)
	if errors.Is(err, ErrNotFound) {
		// The record vanished between lookup and update; surfacing beats
		// silently retrying with stale data.
		return nil, fmt.Errorf("%w: user %s", ErrConflict, user.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	return updated, nil
}

func (r *Resolver) register(ctx context.Context, id *provider.Identity) (*UserRecord, error) {
	user := &UserRecord{
		Email:     id.Email,
		LastLogin: LastLogin{At: r.now().UTC(), Provider: id.Provider},
		Logins:    []LoginRecord{loginRecordFrom(id)},
		Projects:  []string{},
	}
	stored, err := r.store.Insert(ctx, user)
	if errors.Is(err, ErrDuplicate) {
		return nil, fmt.Errorf("%w: %w", ErrRegistration, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	if stored == nil || stored.ID == "" {
		return nil, fmt.Errorf("%w: insert yielded no stored record", ErrRegistration)
	}
	return stored, nil
}

// Payload projects the login matching last_login into the narrow session
// payload. Reconcile always updates both fields together, so a missing
// match signals a corrupted record.
func (r *Resolver) Payload(user *UserRecord) (*SessionPayload, error) {
	for i := range user.Logins {
		if user.Logins[i].Provider == user.LastLogin.Provider {
			l := &user.Logins[i]
			return &SessionPayload{
				Provider: l.Provider,
				Username: l.Username,
				Email:    l.Email,
				FullName: l.FullName,
				Auth:     l.Auth,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s, provider %s", ErrInvariant, user.ID, user.LastLogin.Provider)
}
