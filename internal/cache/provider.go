// Package cache backs webhook deduplication and checkout idempotency.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Provider is a string key/value store with per-key expiry.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
	// RedisKeyPrefix defaults to "storefront:".
	RedisKeyPrefix        string
	MemorySize            int
}

func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	// Typed nil pointers must not escape as non-nil providers.
	switch cfg.Provider {
	case "memory", "":
		provider, err := NewMemoryProvider(cfg.MemorySize)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "redis":
		provider, err := NewRedisProvider(ctx, cfg.RedisConnectionString, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// IdempotencyKey scopes a client supplied Idempotency-Key to one user and
// operation.
func IdempotencyKey(operation, userID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", operation, userID, key)
}
