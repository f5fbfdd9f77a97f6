package conversation

import "context"

// Store keeps per-session history. Keys are opaque to the store.
type Store interface {
	Get(ctx context.Context, key string) ([]Turn, error)
	Put(ctx context.Context, key string, turns []Turn) error
}
