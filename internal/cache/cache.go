package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Store is a cache that also keeps behavior sessions.
type Store interface {
	domain.Cache
	domain.SessionStore
}

// SessionLimits bounds stored behavior sessions.
type SessionLimits struct {
	TTL       time.Duration
	MaxEvents int
}

func (l SessionLimits) withDefaults() SessionLimits {
	if l.TTL <= 0 {
		l.TTL = 30 * time.Minute
	}
	if l.MaxEvents <= 0 {
		l.MaxEvents = 500
	}
	return l
}

func sessionKey(userID, sessionID string) string {
	return "session:" + userID + ":" + sessionID
}

// New creates a store from configuration.
// "memory" returns an LRU cache; "redis" returns Redis, wrapped in a
// two-phase cache when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (Store, error) {
	limits := SessionLimits{TTL: cfg.SessionTTL, MaxEvents: cfg.SessionMaxEvents}

	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize, limits), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, limits)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2).
// Counters and sessions live in Redis only so every node sees the same values.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	limits := SessionLimits{TTL: cfg.SessionTTL, MaxEvents: cfg.SessionMaxEvents}

	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, limits)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize, limits),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get reads L1 first and populates it on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L1 with the shorter TTL and L2 with the full TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// IncrementCounter uses Redis only.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// AppendEvents uses Redis only.
func (c *TwoPhaseCache) AppendEvents(ctx context.Context, tenantID, userID, sessionID string, events []domain.BehaviorEvent) error {
	return c.remote.AppendEvents(ctx, tenantID, userID, sessionID, events)
}

// LoadSession uses Redis only.
func (c *TwoPhaseCache) LoadSession(ctx context.Context, tenantID, userID, sessionID string) (*domain.BehaviorSession, error) {
	return c.remote.LoadSession(ctx, tenantID, userID, sessionID)
}

// Ping checks both levels.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both levels.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
