// Package role resolves role names into role ids.
// The login flow only needs the name-to-id mapping; permission semantics
// belong to the host platform.
package role

import (
	"context"
	"errors"
	"fmt"
)

// ErrRoleNotFound is returned when no role carries the requested name.
var ErrRoleNotFound = errors.New("role not found")

// Role is the resolved role binding.
type Role struct {
	ID   string
	Name string
}

// Resolver maps role names to roles.
type Resolver interface {
	GetRole(ctx context.Context, name string) (*Role, error)
}

// StaticResolver serves roles from a fixed name-to-id map, typically loaded
// from configuration at startup.
type StaticResolver struct {
	roles map[string]string
}

func NewStaticResolver(roles map[string]string) *StaticResolver {
	m := make(map[string]string, len(roles))
	for name, id := range roles {
		m[name] = id
	}
	return &StaticResolver{roles: m}
}

func (r *StaticResolver) GetRole(_ context.Context, name string) (*Role, error) {
	id, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	return &Role{ID: id, Name: name}, nil
}
