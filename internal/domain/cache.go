package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for fraud-check velocity within a time window.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// SessionStore keeps the behavior event stream of live sessions.
// Tracking is a side-effect owned by the caller, never engine state.
type SessionStore interface {
	// AppendEvents adds events to a session and refreshes its TTL.
	AppendEvents(ctx context.Context, tenantID string, userID string, sessionID string, events []BehaviorEvent) error

	// LoadSession returns the stored session. A missing session has no events.
	LoadSession(ctx context.Context, tenantID string, userID string, sessionID string) (*BehaviorSession, error)
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `mapstructure:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `mapstructure:"localTTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDB"`

	// Two-phase settings
	EnableTwoPhase bool `mapstructure:"enableTwoPhase"` // If true, check local first, then Redis

	// Behavior session settings
	SessionTTL       time.Duration `mapstructure:"sessionTTL"`
	SessionMaxEvents int           `mapstructure:"sessionMaxEvents"`
}
