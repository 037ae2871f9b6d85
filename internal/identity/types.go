package identity

import (
	"context"
	"errors"
)

// Persisted keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

var ErrIncompleteSession = errors.New("identity: login response missing token or user")

// Storage is durable key-value storage for the signed-in identity. Put and
// Delete apply all of their keys or none.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
