package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

type failingCache struct {
	domain.Cache
}

func (failingCache) IncrementCounter(context.Context, string, string, time.Duration) (int64, error) {
	return 0, errors.New("redis unavailable")
}

func TestVelocityService(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	t.Run("CacheCounter", func(t *testing.T) {
		svc := NewService(repo, cache.NewLRUCache(100, cache.SessionLimits{}), time.Minute)

		for want := int64(1); want <= 3; want++ {
			got, err := svc.Record(ctx, tenantID, "user-001")
			if err != nil {
				t.Fatalf("Record failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		other, _ := svc.Record(ctx, tenantID, "user-002")
		if other != 1 {
			t.Errorf("expected independent count per user, got %d", other)
		}
	})

	t.Run("RepositoryFallback", func(t *testing.T) {
		for _, id := range []string{"c-1", "c-2"} {
			check := &domain.FraudCheckResult{
				ID:        id,
				UserID:    "user-003",
				Fraud:     &domain.FraudAssessment{RiskLevel: domain.RiskLow},
				Timestamp: time.Now().UTC(),
			}
			if err := repo.SaveFraudCheck(ctx, tenantID, check); err != nil {
				t.Fatalf("SaveFraudCheck failed: %v", err)
			}
		}

		svc := NewService(repo, failingCache{}, time.Hour)
		got, err := svc.Record(ctx, tenantID, "user-003")
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if got != 3 {
			t.Errorf("expected 2 stored checks plus this one, got %d", got)
		}
	})

	t.Run("NoSource", func(t *testing.T) {
		if _, err := NewService(nil, nil, 0).Record(ctx, tenantID, "user-001"); err == nil {
			t.Error("expected error without a data source")
		}
		if _, err := NewService(nil, failingCache{}, 0).Record(ctx, tenantID, "user-001"); err == nil {
			t.Error("expected cache error without a repository")
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		svc := NewService(repo, nil, 0)
		if _, err := svc.Record(ctx, "", "user-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if svc.Window() != DefaultWindow {
			t.Errorf("expected default window, got %s", svc.Window())
		}
	})
}
