// Package worker plans collection cases that arrive on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// GlobalTenantID is the pseudo-tenant of the shared intake subscription.
// Cases published there must name their tenant in the payload.
const GlobalTenantID = "_global"

// Planner computes and records a collection plan.
type Planner interface {
	PlanCollection(ctx context.Context, tenantID string, c domain.CollectionCase) (*domain.CollectionPlan, error)
}

// Worker consumes collection cases and hands them to the planner, which
// persists the plan and publishes it on the planned topic.
type Worker struct {
	bus     domain.EventBus
	planner Planner

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs to consume. Empty subscribes to the global intake only.
	TenantIDs []string
}

// NewWorker creates a collection case worker.
func NewWorker(bus domain.EventBus, planner Planner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		planner: planner,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the case topic for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenantID}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("collection workers started",
		"tenant_count", started,
		"topic", domain.TopicCollectionCase,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCollectionCase, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// CaseMessage is the payload of the case topic.
type CaseMessage struct {
	CaseID   string `json:"caseId,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	domain.CollectionCase
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	err := w.processCase(ctx, msg)
	switch {
	case err == nil:
		w.processed.Add(1)
	case errors.Is(err, domain.ErrValidation):
		// Malformed cases are dropped, not retried.
		w.rejected.Add(1)
		slog.Warn("collection case rejected",
			"message_id", msg.ID,
			"tenant_id", msg.TenantID,
			"error", err,
		)
	default:
		w.failed.Add(1)
	}
	return err
}

// processCase plans one case. A tenant subscription only accepts cases for
// its own tenant; the global intake takes the tenant from the payload.
func (w *Worker) processCase(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var cm CaseMessage
	if err := json.Unmarshal(msg.Payload, &cm); err != nil {
		return domain.NewValidationError("payload", "malformed case message: %v", err)
	}

	tenantID := msg.TenantID
	if tenantID == GlobalTenantID {
		tenantID = cm.TenantID
	} else if cm.TenantID != "" && cm.TenantID != tenantID {
		return domain.NewValidationError("tenantId", "case for %q published on tenant %q", cm.TenantID, tenantID)
	}

	caseID := cm.CaseID
	if caseID == "" {
		caseID = msg.ID
	}

	slog.Debug("processing collection case",
		"case_id", caseID,
		"tenant_id", tenantID,
		"loan_id", cm.LoanID,
	)

	plan, err := w.planner.PlanCollection(ctx, tenantID, cm.CollectionCase)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			slog.Error("collection planning failed",
				"case_id", caseID,
				"tenant_id", tenantID,
				"error", err,
			)
		}
		return err
	}

	slog.Info("collection case planned",
		"case_id", caseID,
		"tenant_id", tenantID,
		"loan_id", cm.LoanID,
		"plan_id", plan.ID,
		"priority", plan.Strategy.Priority,
		"channel", plan.Strategy.CommunicationChannel,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes every tenant.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("collection workers stopped")
	return nil
}

// Stats holds worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Rejected          int64    `json:"rejected"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Rejected:          w.rejected.Load(),
		Failed:            w.failed.Load(),
	}
}
