// Package cache provides the in-process and Redis backed caches and
// behavior session stores.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// It backs the community tier and is L1 of the two-phase cache.
type LRUCache struct {
	mu       sync.RWMutex
	maxSize  int
	sessions SessionLimits
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counterEntry
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int, sessions SessionLimits) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		sessions: sessions.withDefaults(),
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counterEntry),
	}
}

// Get retrieves a value. A miss returns nil, nil.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(c.makeKey(tenantID, key)), nil
}

// Set stores a value with TTL.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(c.makeKey(tenantID, key), value, ttl)
	return nil
}

// Delete removes a value.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[c.makeKey(tenantID, key)]; ok {
		c.removeElement(elem)
	}
	return nil
}

// IncrementCounter increments a fixed-window counter.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.counters[fullKey]
	if !ok || now.After(entry.expiresAt) {
		c.counters[fullKey] = &counterEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// AppendEvents appends events to a stored session, keeping the most recent
// MaxEvents, and refreshes the session TTL.
func (c *LRUCache) AppendEvents(ctx context.Context, tenantID, userID, sessionID string, events []domain.BehaviorEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if len(events) == 0 {
		return nil
	}

	fullKey := c.makeKey(tenantID, sessionKey(userID, sessionID))

	c.mu.Lock()
	defer c.mu.Unlock()

	var stored []domain.BehaviorEvent
	if raw := c.getLocked(fullKey); raw != nil {
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
	}

	stored = append(stored, events...)
	if over := len(stored) - c.sessions.MaxEvents; over > 0 {
		stored = stored[over:]
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	c.setLocked(fullKey, raw, c.sessions.TTL)
	return nil
}

// LoadSession returns the stored session. Unknown sessions have no events.
func (c *LRUCache) LoadSession(ctx context.Context, tenantID, userID, sessionID string) (*domain.BehaviorSession, error) {
	raw, err := c.Get(ctx, tenantID, sessionKey(userID, sessionID))
	if err != nil {
		return nil, err
	}

	session := &domain.BehaviorSession{UserID: userID, SessionID: sessionID}
	if raw == nil {
		return session, nil
	}
	if err := json.Unmarshal(raw, &session.Events); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns the current size and capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) getLocked(fullKey string) []byte {
	elem, ok := c.items[fullKey]
	if !ok {
		return nil
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil
	}

	c.order.MoveToFront(elem)
	return entry.value
}

func (c *LRUCache) setLocked(fullKey string, value []byte, ttl time.Duration) {
	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	c.items[fullKey] = elem

	for c.order.Len() > c.maxSize {
		c.removeOldest()
	}
}

func (c *LRUCache) makeKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *LRUCache) removeOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}
