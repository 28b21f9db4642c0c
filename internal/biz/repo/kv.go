package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or record does not exist
var ErrNotFound = errors.New("not found")

// KVStore is the external key-value store.
// It offers no transactions and no compare-and-swap.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SessionIdentityKey holds the bot identity of the last platform session
const SessionIdentityKey = "session:identity"
