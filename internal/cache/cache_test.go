package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100, SessionLimits{})
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetGetDelete", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "quote:1", []byte("13167"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "quote:1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "13167" {
			t.Errorf("expected '13167', got '%s'", string(val))
		}

		_ = cache.Delete(ctx, tenantID, "quote:1")
		if val, _ := cache.Get(ctx, tenantID, "quote:1"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3, SessionLimits{})

		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)
		_, _ = small.Get(ctx, tenantID, "a")
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}

		size, capacity := small.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected stats 3/3, got %d/%d", size, capacity)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-a", "shared", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "tenant-b", "shared", []byte("b"), time.Minute)

		a, _ := cache.Get(ctx, "tenant-a", "shared")
		b, _ := cache.Get(ctx, "tenant-b", "shared")
		if string(a) != "a" || string(b) != "b" {
			t.Errorf("tenant values leaked: a=%s b=%s", a, b)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.IncrementCounter(ctx, "", "k", time.Second); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := cache.AppendEvents(ctx, "", "u", "s", []domain.BehaviorEvent{{Type: "x", TimestampMillis: 1}}); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := 100 * time.Millisecond

		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, "fraud-checks:user-1", window)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		time.Sleep(150 * time.Millisecond)

		if got, _ := cache.IncrementCounter(ctx, tenantID, "fraud-checks:user-1", window); got != 1 {
			t.Errorf("expected count 1 after window reset, got %d", got)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(10, SessionLimits{})
		_ = c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestLRUSessionStore(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	events := func(start int64, n int) []domain.BehaviorEvent {
		out := make([]domain.BehaviorEvent, n)
		for i := range out {
			out[i] = domain.BehaviorEvent{Type: "click", TimestampMillis: start + int64(i)*100}
		}
		return out
	}

	t.Run("UnknownSessionIsEmpty", func(t *testing.T) {
		store := NewLRUCache(100, SessionLimits{})

		session, err := store.LoadSession(ctx, tenantID, "user-1", "missing")
		if err != nil {
			t.Fatalf("LoadSession failed: %v", err)
		}
		if session.UserID != "user-1" || session.SessionID != "missing" || len(session.Events) != 0 {
			t.Errorf("unexpected session: %+v", session)
		}
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		store := NewLRUCache(100, SessionLimits{})

		_ = store.AppendEvents(ctx, tenantID, "user-1", "sess-1", events(1000, 2))
		_ = store.AppendEvents(ctx, tenantID, "user-1", "sess-1", events(2000, 2))

		session, err := store.LoadSession(ctx, tenantID, "user-1", "sess-1")
		if err != nil {
			t.Fatalf("LoadSession failed: %v", err)
		}
		want := []int64{1000, 1100, 2000, 2100}
		if len(session.Events) != len(want) {
			t.Fatalf("expected %d events, got %d", len(want), len(session.Events))
		}
		for i, ts := range want {
			if session.Events[i].TimestampMillis != ts {
				t.Errorf("event %d: expected ts %d, got %d", i, ts, session.Events[i].TimestampMillis)
			}
		}
	})

	t.Run("KeepsMostRecentEvents", func(t *testing.T) {
		store := NewLRUCache(100, SessionLimits{MaxEvents: 3})

		_ = store.AppendEvents(ctx, tenantID, "user-1", "sess-1", events(1000, 5))

		session, _ := store.LoadSession(ctx, tenantID, "user-1", "sess-1")
		if len(session.Events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(session.Events))
		}
		if session.Events[0].TimestampMillis != 1200 {
			t.Errorf("expected oldest kept ts 1200, got %d", session.Events[0].TimestampMillis)
		}
	})

	t.Run("SessionExpires", func(t *testing.T) {
		store := NewLRUCache(100, SessionLimits{TTL: 10 * time.Millisecond})

		_ = store.AppendEvents(ctx, tenantID, "user-1", "sess-1", events(1000, 1))
		time.Sleep(20 * time.Millisecond)

		session, _ := store.LoadSession(ctx, tenantID, "user-1", "sess-1")
		if len(session.Events) != 0 {
			t.Errorf("expected expired session, got %d events", len(session.Events))
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		store := NewLRUCache(100, SessionLimits{MaxEvents: 1000})

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.AppendEvents(ctx, tenantID, "user-1", "sess-1", events(int64(i*1000+1), 5))
			}(i)
		}
		wg.Wait()

		session, _ := store.LoadSession(ctx, tenantID, "user-1", "sess-1")
		if len(session.Events) != 100 {
			t.Errorf("expected 100 events, got %d", len(session.Events))
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		store, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100, SessionMaxEvents: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer store.Close()

		lru, ok := store.(*LRUCache)
		if !ok {
			t.Fatal("expected LRUCache for memory type")
		}
		if lru.sessions.MaxEvents != 10 || lru.sessions.TTL != 30*time.Minute {
			t.Errorf("unexpected session limits: %+v", lru.sessions)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
