// Package cache provides a small byte-value cache with in-memory and
// Redis backends. History pages and vote mirrors are stored as JSON
// blobs under derived keys.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is the read-through surface used by the history paginator and
// the vote mirror.
type Cache interface {
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. ttl = 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
