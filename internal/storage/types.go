package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default for a real deployment)
//   - "memory": in-process map, not durable
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the reminder engine.
type Store interface {
	// Get returns the value for key, reporting absence via ok=false.
	// Expired records read as absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes key=value. ttl > 0 makes the record expire that far in the
	// future; ttl <= 0 stores it without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan returns up to limit keys with the given prefix, strictly after
	// cursor in lexicographic order. An empty next cursor means the walk is
	// finished. Expired records are skipped.
	Scan(ctx context.Context, prefix, cursor string, limit int) (keys []string, next string, err error)

	Close() error
}
