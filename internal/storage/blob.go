package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a BlobStore when no value exists for a key.
var ErrNotFound = errors.New("blob not found")

// BlobStore is a minimal key/value capability holding whole serialized
// documents. Implementations must make Put atomic per key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
