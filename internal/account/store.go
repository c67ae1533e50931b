package account

import (
	"context"
	"errors"
)

// Store-level sentinel errors. Implementations map their driver errors to
// these so the resolver stays storage-agnostic.
var (
	// ErrNotFound is returned by UpdateLogins when the target record
	// vanished between lookup and update.
	ErrNotFound = errors.New("user record not found")

	// ErrDuplicate is returned by Insert when a uniqueness constraint on a
	// login external id rejects the record. The resolver treats it as
	// "someone else just registered this identity" and re-resolves.
	ErrDuplicate = errors.New("duplicate login identity")
)

// Store is the persistence contract for user records. Queries mirror the
// three lookups the login flow needs: by embedded login external id, by
// embedded login email, and by record id (implicit in UpdateLogins).
type Store interface {
	// FindByLoginExternalID returns the user owning a login with the given
	// external id, or nil when no user matches.
	FindByLoginExternalID(ctx context.Context, externalID string) (*UserRecord, error)

	// FindByLoginEmail returns the first user owning a login with the given
	// email, or nil when no user matches.
	FindByLoginEmail(ctx context.Context, email string) (*UserRecord, error)

	// UpdateLogins atomically replaces last_login and logins on the record
	// with the given id and returns the post-update record.
	// Returns ErrNotFound when the record no longer exists.
	UpdateLogins(ctx context.Context, id string, last LastLogin, logins []LoginRecord) (*UserRecord, error)

	// Insert stores a new user record and returns the stored copy with its
	// assigned id. Returns ErrDuplicate on a login uniqueness violation.
	Insert(ctx context.Context, user *UserRecord) (*UserRecord, error)
}
