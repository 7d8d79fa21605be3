// Package store defines the key-value bucket boundary and its backends.
package store

import (
	"context"
	"errors"
)

// ErrBucketName is returned by Open when the bucket name is unusable.
var ErrBucketName = errors.New("invalid bucket name")

// Store is the interface that all backing stores must implement.
// It hands out named buckets, each an independent flat key space.
type Store interface {
	// Open returns a handle on the named bucket. Buckets are created lazily.
	Open(ctx context.Context, name string) (Bucket, error)

	// Close releases the resources held by the store.
	Close() error
}

// Bucket is a single named key-value namespace. Each call is atomic on its
// own key; nothing spans more than one key.
type Bucket interface {
	// Get returns the value stored under key, or nil if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
