// Package backend provides read access to the document roots served by the
// static handler.
package backend

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey is returned for keys that would resolve outside the root.
	ErrInvalidKey = errors.New("invalid key")
)

// Backend defines read access to a tree of files addressed by slash
// separated keys. Implementations must be safe for concurrent use.
type Backend interface {
	// Read retrieves data at the given key.
	// Returns ErrNotFound if the key does not exist.
	// The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Size returns the size in bytes of the regular file at the given key.
	// Returns ErrNotFound if the key does not exist.
	Size(ctx context.Context, key string) (int64, error)
}
