package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache and SessionStore on Redis.
// It backs the pro tier and is L2 of the two-phase cache.
type RedisCache struct {
	client   *redis.Client
	sessions SessionLimits
}

// incrementScript starts the window on the first increment only.
var incrementScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int, sessions SessionLimits) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, sessions: sessions.withDefaults()}, nil
}

// Get retrieves a value. A miss returns nil, nil.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	val, err := c.client.Get(ctx, c.makeKey(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value with TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Set(ctx, c.makeKey(tenantID, key), value, ttl).Err()
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Del(ctx, c.makeKey(tenantID, key)).Err()
}

// IncrementCounter atomically increments a fixed-window counter.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, "counter:"+key)
	return incrementScript.Run(ctx, c.client, []string{fullKey}, window.Milliseconds()).Int64()
}

// AppendEvents pushes events onto the session list, trims it to the most
// recent MaxEvents and refreshes its TTL in one transaction.
func (c *RedisCache) AppendEvents(ctx context.Context, tenantID, userID, sessionID string, events []domain.BehaviorEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if len(events) == 0 {
		return nil
	}

	values := make([]any, len(events))
	for i, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		values[i] = raw
	}

	fullKey := c.makeKey(tenantID, sessionKey(userID, sessionID))
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, fullKey, values...)
		pipe.LTrim(ctx, fullKey, int64(-c.sessions.MaxEvents), -1)
		pipe.PExpire(ctx, fullKey, c.sessions.TTL)
		return nil
	})
	return err
}

// LoadSession returns the stored session. Unknown sessions have no events.
func (c *RedisCache) LoadSession(ctx context.Context, tenantID, userID, sessionID string) (*domain.BehaviorSession, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	raw, err := c.client.LRange(ctx, c.makeKey(tenantID, sessionKey(userID, sessionID)), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	session := &domain.BehaviorSession{
		UserID:    userID,
		SessionID: sessionID,
		Events:    make([]domain.BehaviorEvent, 0, len(raw)),
	}
	for _, item := range raw {
		var e domain.BehaviorEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		session.Events = append(session.Events, e)
	}
	return session, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(tenantID, key string) string {
	return "kestrel:" + tenantID + ":" + key
}
