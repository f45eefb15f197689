// Package storage holds rendered artifacts and exposes them at a public URL.
package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get for keys that were never written.
var ErrNotExist = errors.New("storage: object does not exist")

// ArtifactStore is a write-once-per-key blob store with public URLs.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
