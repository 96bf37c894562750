// Package session maps opaque session tokens to usernames.
//
// The token is what goes into the "sid" cookie. It carries no information of
// its own; everything about the session lives server-side in a Store, which is
// what makes logout immediate: revoking the token is enough.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Resolve when the token is unknown or expired.
var ErrNotFound = errors.New("session: not found")

// Store is the session registry. Implementations must be safe for concurrent
// use by many request goroutines.
type Store interface {
	// Create starts a session for username and returns its token.
	Create(ctx context.Context, username string) (string, error)
	// Resolve returns the username a token belongs to, or ErrNotFound.
	Resolve(ctx context.Context, token string) (string, error)
	// Revoke ends a session. Revoking an unknown token is not an error.
	Revoke(ctx context.Context, token string) error
	// Close releases the store's connections. The store is unusable after.
	Close() error
}

// newToken returns a random UUIDv4 string. 122 random bits are plenty for an
// unguessable bearer value.
func newToken() string {
	return uuid.NewString()
}
