package core

import (
	"context"
	"time"
)

// CacheRepository is the key/value store live progress is kept in.
type CacheRepository interface {
	// Set stores value for ttl; a zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil without error when the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
}
