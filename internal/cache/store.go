// Package cache memoizes catalog scrapes. Values are stored as JSON in
// per-bucket stores, each with its own TTL and entry limit.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Store for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// Store holds encoded values with an expiry. Reading an expired key
// evicts it and returns ErrMiss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
