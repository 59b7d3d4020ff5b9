// Package cache provides short-lived key storage, used to deduplicate
// channel webhook deliveries and to hold pending OAuth states.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("key not found")

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

// NewProvider builds the configured cache backend. An empty provider name
// selects the in-process LRU.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey is the dedupe key for one webhook delivery.
func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// OAuthStateKey is the one-time key for a pending channel connect flow.
func OAuthStateKey(state string) string {
	return fmt.Sprintf("oauth:state:%s", state)
}
