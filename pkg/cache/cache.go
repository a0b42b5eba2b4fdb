// Package cache provides the caching layer backing the provisioning
// components. Resolved remote resources are immutable, so entries are
// written once and never invalidated; the interface still carries Delete
// and Flush for tests and operational tooling.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not present in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Cache defines the operations for a caching system. Get decodes the stored
// value into the supplied pointer; Set serializes the value. A ttl of zero
// means no expiry.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
}
