// Package cachestore persists serialized token cache blobs keyed by session id.
package cachestore

import "context"

// Store is a durable key-value store of opaque cache blobs.
type Store interface {
	// Get returns the blob for key. The bool is false when no blob is stored.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	// RetainOnly deletes every stored key not in keys and returns how many were removed.
	RetainOnly(ctx context.Context, keys []string) (int, error)
}
