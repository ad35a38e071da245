// Package velocity counts recent fraud checks per user.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultWindow is used when no window is configured.
const DefaultWindow = time.Hour

// Service counts fraud checks per user in a fixed window.
// Counting is a side effect of the caller; the fraud scorer only sees the number.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
}

// NewService creates a velocity service. Either source may be nil.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{repo: repo, cache: cache, window: window}
}

// Window returns the counting window.
func (s *Service) Window() time.Duration {
	return s.window
}

// Record counts one more check for userID and returns the number of checks
// in the current window, including this one. The cache counter is preferred;
// without a cache the persisted checks are counted instead.
func (s *Service) Record(ctx context.Context, tenantID, userID string) (int64, error) {
	if tenantID == "" || userID == "" {
		return 0, fmt.Errorf("tenantID and userID are required")
	}

	if s.cache != nil {
		count, err := s.cache.IncrementCounter(ctx, tenantID, counterKey(userID), s.window)
		if err == nil {
			return count, nil
		}
		if s.repo == nil {
			return 0, fmt.Errorf("failed to increment velocity counter: %w", err)
		}
	}

	if s.repo != nil {
		count, err := s.repo.CountFraudChecks(ctx, tenantID, userID, time.Now().Add(-s.window))
		if err != nil {
			return 0, fmt.Errorf("failed to count fraud checks: %w", err)
		}
		return count + 1, nil
	}

	return 0, fmt.Errorf("no data source available")
}

func counterKey(userID string) string {
	return "fraud-checks:" + userID
}
