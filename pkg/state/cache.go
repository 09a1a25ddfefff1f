// Package state provides the TTL cache used to keep hot lookups (group
// metadata, per-chat settings) off the wire and out of the database.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the interface for TTL cache backends.
type Cache interface {
	// Get retrieves a value. The second result reports presence.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a time-to-live. A zero ttl uses the
	// backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Clear removes all cached data.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// BackendType represents the cache backend type.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"
)

// Config configures the cache.
type Config struct {
	Backend    BackendType
	DefaultTTL time.Duration

	// Redis backend config
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// GetJSON retrieves and decodes a cached JSON value into out.
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decoding cached value %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes and caches a value as JSON.
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value %q: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
