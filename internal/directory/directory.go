// Package directory resolves user ids to display names and avatars.
// The user directory belongs to the surrounding suite; the messaging
// core only consumes it through the Resolver interface.
package directory

import (
	"context"
	"sync"
)

// User is a directory entry.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Resolver looks up display information for a user id. Unknown users
// resolve to their raw id so a missing directory never breaks the
// conversation list.
type Resolver interface {
	Resolve(ctx context.Context, uid string) User
}

// Static serves a fixed set of users, typically seeded from config.
type Static struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStatic creates a resolver over the given users.
func NewStatic(users []User) *Static {
	m := make(map[string]User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &Static{users: m}
}

// Resolve implements Resolver.
func (s *Static) Resolve(_ context.Context, uid string) User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[uid]; ok {
		return u
	}
	return User{ID: uid, Name: uid}
}

// Remote resolves against chatd's directory endpoint, falling back to
// the raw id when the lookup fails for any reason.
type Remote struct {
	Fetch func(ctx context.Context, uid string) (User, error)
}

// Resolve implements Resolver.
func (r Remote) Resolve(ctx context.Context, uid string) User {
	u, err := r.Fetch(ctx, uid)
	if err != nil || u.ID == "" {
		return User{ID: uid, Name: uid}
	}
	if u.Name == "" {
		u.Name = u.ID
	}
	return u
}
