// Package memory implements the account store in process memory.
// Used for development and tests; mirrors the pg store's semantics,
// including the uniqueness constraint on login external ids.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jxmono/login-providers/internal/account"
)

type Store struct {
	mu    sync.RWMutex
	users map[string]*account.UserRecord // by record id
	index map[string]string              // login external id -> record id
}

func New() *Store {
	return &Store{
		users: make(map[string]*account.UserRecord),
		index: make(map[string]string),
	}
}

func (s *Store) FindByLoginExternalID(_ context.Context, externalID string) (*account.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.index[externalID]
	if !ok {
		return nil, nil
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) FindByLoginEmail(_ context.Context, email string) (*account.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		for _, l := range u.Logins {
			if l.Email == email {
				return copyUser(u), nil
			}
		}
	}
	return nil, nil
}

func (s *Store) UpdateLogins(_ context.Context, id string, last account.LastLogin, logins []account.LoginRecord) (*account.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}

	for _, l := range u.Logins {
		delete(s.index, l.ExternalID)
	}
	u.LastLogin = last
	u.Logins = copyLogins(logins)
	for _, l := range u.Logins {
		s.index[l.ExternalID] = id
	}
	return copyUser(u), nil
}

func (s *Store) Insert(_ context.Context, user *account.UserRecord) (*account.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range user.Logins {
		if _, taken := s.index[l.ExternalID]; taken {
			return nil, fmt.Errorf("%w: %s", account.ErrDuplicate, l.ExternalID)
		}
	}

	stored := copyUser(user)
	stored.ID = uuid.NewString()
	s.users[stored.ID] = stored
	for _, l := range stored.Logins {
		s.index[l.ExternalID] = stored.ID
	}
	return copyUser(stored), nil
}

func copyUser(u *account.UserRecord) *account.UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	c.Logins = copyLogins(u.Logins)
	c.Projects = append([]string(nil), u.Projects...)
	return &c
}

func copyLogins(logins []account.LoginRecord) []account.LoginRecord {
	out := make([]account.LoginRecord, len(logins))
	copy(out, logins)
	return out
}
