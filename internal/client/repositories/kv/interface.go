// Package kv is the client's local key/value store. Values are opaque
// bytes; callers own their encoding.
package kv

import (
	"context"
)

// Repository is a get/set/remove store. Get returns nil, nil for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
