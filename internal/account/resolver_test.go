package account_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jxmono/login-providers/internal/account"
	"github.com/jxmono/login-providers/internal/provider"
)

// fakeStore is a minimal in-memory account.Store for resolver tests. It lets
// individual calls be overridden to simulate races and backend failures.
type fakeStore struct {
	users  map[string]*account.UserRecord
	nextID int

	findByExternalID func(ctx context.Context, externalID string) (*account.UserRecord, error)
	insert           func(ctx context.Context, user *account.UserRecord) (*account.UserRecord, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*account.UserRecord{}}
}

func (f *fakeStore) FindByLoginExternalID(ctx context.Context, externalID string) (*account.UserRecord, error) {
	if f.findByExternalID != nil {
		return f.findByExternalID(ctx, externalID)
	}
	for _, u := range f.users {
		for _, l := range u.Logins {
			if l.ExternalID == externalID {
				return u, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByLoginEmail(_ context.Context, email string) (*account.UserRecord, error) {
	for _, u := range f.users {
		for _, l := range u.Logins {
			if l.Email == email {
				return u, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateLogins(_ context.Context, id string, last account.LastLogin, logins []account.LoginRecord) (*account.UserRecord, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	u.LastLogin = last
	u.Logins = logins
	return u, nil
}

func (f *fakeStore) Insert(ctx context.Context, user *account.UserRecord) (*account.UserRecord, error) {
	if f.insert != nil {
		return f.insert(ctx, user)
	}
	for _, u := range f.users {
		for _, l := range u.Logins {
			for _, nl := range user.Logins {
				if l.ExternalID == nl.ExternalID {
					return nil, account.ErrDuplicate
				}
			}
		}
	}
	f.nextID++
	stored := *user
	stored.ID = fmt.Sprintf("user-%d", f.nextID)
	f.users[stored.ID] = &stored
	return &stored, nil
}

func githubIdentity() *provider.Identity {
	return &provider.Identity{
		Provider:   "github",
		ExternalID: "github_12345",
		Username:   "octocat",
		FullName:   "The Octocat",
		Email:      "octo@example.com",
		Auth:       provider.AuthMaterial{AccessToken: "gh-token"},
	}
}

func bitbucketIdentity() *provider.Identity {
	return &provider.Identity{
		Provider:   "bitbucket",
		ExternalID: "bitbucket_octocat",
		Username:   "octocat",
		FullName:   "The Octocat",
		Email:      "octo@example.com",
		Auth: provider.AuthMaterial{
			AccessToken:       "bb-token",
			AccessTokenSecret: "bb-secret",
		},
	}
}

func TestReconcile_FirstLoginRegisters(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)

	user, err := r.Reconcile(context.Background(), githubIdentity())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected a persistent id")
	}
	if len(user.Logins) != 1 {
		t.Fatalf("expected exactly one login record, got %d", len(user.Logins))
	}
	if user.LastLogin.Provider != "github" {
		t.Fatalf("last login provider = %q", user.LastLogin.Provider)
	}
	if user.Projects == nil || len(user.Projects) != 0 {
		t.Fatalf("expected empty (non-nil) projects, got %#v", user.Projects)
	}
}

func TestReconcile_RepeatLoginReplacesInPlace(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, githubIdentity()); err != nil {
		t.Fatalf("first login: %v", err)
	}

	again := githubIdentity()
	again.Auth.AccessToken = "gh-token-2"
	user, err := r.Reconcile(ctx, again)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if len(user.Logins) != 1 {
		t.Fatalf("re-login must not append, got %d records", len(user.Logins))
	}
	if user.Logins[0].Auth.AccessToken != "gh-token-2" {
		t.Fatalf("login record not refreshed: %q", user.Logins[0].Auth.AccessToken)
	}
}

func TestReconcile_EmailFallbackAppendsSecondProvider(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, githubIdentity())
	if err != nil {
		t.Fatalf("github login: %v", err)
	}

	user, err := r.Reconcile(ctx, bitbucketIdentity())
	if err != nil {
		t.Fatalf("bitbucket login: %v", err)
	}
	if user.ID != first.ID {
		t.Fatalf("shared email must resolve to the same user: %q vs %q", user.ID, first.ID)
	}
	if len(user.Logins) != 2 {
		t.Fatalf("expected two login records, got %d", len(user.Logins))
	}
	if user.LastLogin.Provider != "bitbucket" {
		t.Fatalf("last login provider = %q", user.LastLogin.Provider)
	}
}

func TestReconcile_ExternalIDWinsOverEmail(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, githubIdentity()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Same github account, different email now. Must match by external id,
	// not create a second user.
	changed := githubIdentity()
	changed.Email = "renamed@example.com"
	user, err := r.Reconcile(ctx, changed)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(store.users) != 1 {
		t.Fatalf("expected a single user, got %d", len(store.users))
	}
	if user.Logins[0].Email != "renamed@example.com" {
		t.Fatalf("login email not refreshed: %q", user.Logins[0].Email)
	}
}

func TestReconcile_DuplicateInsertReResolves(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)
	ctx := context.Background()

	// Simulate a concurrent registration: the lookup misses, the insert
	// collides, and the second lookup finds the racer's record.
	raced := false
	store.findByExternalID = func(ctx context.Context, externalID string) (*account.UserRecord, error) {
		if !raced {
			return nil, nil
		}
		store.findByExternalID = nil
		return store.FindByLoginExternalID(ctx, externalID)
	}
	store.insert = func(ctx context.Context, user *account.UserRecord) (*account.UserRecord, error) {
		raced = true
		store.insert = nil
		if _, err := store.Insert(ctx, user); err != nil {
			return nil, err
		}
		return nil, account.ErrDuplicate
	}

	user, err := r.Reconcile(ctx, githubIdentity())
	if err != nil {
		t.Fatalf("reconcile should survive the race: %v", err)
	}
	if user == nil || user.ID == "" {
		t.Fatal("expected the concurrently registered user")
	}
	if len(store.users) != 1 {
		t.Fatalf("expected a single user after the race, got %d", len(store.users))
	}
}

func TestReconcile_RecordVanishedBetweenLookupAndUpdate(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)
	ctx := context.Background()

	seeded, err := r.Reconcile(ctx, githubIdentity())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The lookup still returns the record, but it is gone by the time the
	// update runs, as if a concurrent deletion slipped in between.
	stale := *seeded
	store.findByExternalID = func(context.Context, string) (*account.UserRecord, error) {
		return &stale, nil
	}
	delete(store.users, seeded.ID)

	_, err = r.Reconcile(ctx, githubIdentity())
	if !errors.Is(err, account.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestReconcile_InvalidIdentity(t *testing.T) {
	r := account.NewResolver(newFakeStore())

	_, err := r.Reconcile(context.Background(), &provider.Identity{Provider: "github"})
	if !errors.Is(err, account.ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestPayload_OnlyCurrentProviderAuth(t *testing.T) {
	store := newFakeStore()
	r := account.NewResolver(store)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, githubIdentity()); err != nil {
		t.Fatalf("github login: %v", err)
	}
	user, err := r.Reconcile(ctx, bitbucketIdentity())
	if err != nil {
		t.Fatalf("bitbucket login: %v", err)
	}

	payload, err := r.Payload(user)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Provider != "bitbucket" {
		t.Fatalf("payload provider = %q", payload.Provider)
	}
	if payload.Auth.AccessToken != "bb-token" || payload.Auth.AccessTokenSecret != "bb-secret" {
		t.Fatalf("payload must carry the current provider's auth: %#v", payload.Auth)
	}
}

func TestPayload_MissingLastLoginRecord(t *testing.T) {
	r := account.NewResolver(newFakeStore())

	corrupted := &account.UserRecord{
		ID:        "u1",
		LastLogin: account.LastLogin{Provider: "github"},
		Logins:    []account.LoginRecord{{Provider: "bitbucket"}},
	}
	_, err := r.Payload(corrupted)
	if !errors.Is(err, account.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}
