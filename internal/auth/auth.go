// Package auth defines the authorization gate the ledger consults before
// every operation. Authentication itself happens upstream; callers attach an
// already-verified identity to the request context and the gate only answers
// "who is calling and in what role".
package auth

import (
	"context"
	"errors"

	"demobank/internal/models"
)

// ErrUnauthenticated is returned when no identity is attached to the context.
var ErrUnauthenticated = errors.New("no authenticated identity")

// Identity is the caller the upstream authentication layer vouched for.
type Identity struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleAdmin
}

// Gate supplies the current caller identity. The ledger engine branches on
// role and ownership through it but never mutates anything itself.
type Gate interface {
	CurrentIdentity(ctx context.Context) (Identity, error)
}

type identityContextKey struct{}

// WithIdentity attaches an identity to a context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// ContextGate reads the identity previously attached by WithIdentity.
// It is the production gate: HTTP middleware resolves the session and stores
// the identity on the request context.
type ContextGate struct{}

// CurrentIdentity implements Gate.
func (ContextGate) CurrentIdentity(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}
