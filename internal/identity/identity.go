package identity

import (
	"context"
	"errors"
)

// Identity is the verified user bound to one connection.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
}

// Verifier turns an opaque credential into an Identity.
// Any failure that should keep the connection out wraps ErrUnauthorized.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserNotFound = errors.New("user not found")
)
