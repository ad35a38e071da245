// Package decision composes the four decision engines into request-level
// operations and owns their side-effects: session tracking, velocity,
// persistence, events and metrics.
package decision

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/amortization"
	"github.com/opensource-finance/kestrel/internal/behavior"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/collection"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/validation"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrUnavailable is returned when an operation needs a port that is not configured.
var ErrUnavailable = errors.New("dependency not configured")

var tracer = otel.Tracer("kestrel-decision")

// Orchestrator holds the engines and the optional ports. The engines are
// immutable after construction, so one Orchestrator serves concurrent calls.
type Orchestrator struct {
	calculator *amortization.Calculator
	scorer     *fraud.Scorer
	detector   *behavior.Detector
	planner    *collection.Planner

	repo     domain.Repository
	bus      domain.EventBus
	sessions domain.SessionStore
	velocity *velocity.Service
	metrics  *metrics.Metrics
}

// Option configures an Orchestrator port.
type Option func(*Orchestrator)

// WithRepository persists checks, alerts, quotes, plans and outcomes.
func WithRepository(repo domain.Repository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// WithEventBus publishes decision events.
func WithEventBus(b domain.EventBus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithSessionStore tracks behavior events across requests.
func WithSessionStore(s domain.SessionStore) Option {
	return func(o *Orchestrator) { o.sessions = s }
}

// WithVelocity fills in the velocity signal when the caller omits it.
func WithVelocity(v *velocity.Service) Option {
	return func(o *Orchestrator) { o.velocity = v }
}

// WithMetrics records decision metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds the engines from cfg. Any inconsistency is a *domain.ConfigurationError.
func New(cfg domain.EngineConfig, opts ...Option) (*Orchestrator, error) {
	calculator, err := amortization.NewCalculator(cfg.Amortization)
	if err != nil {
		return nil, err
	}
	scorer, err := fraud.NewScorer(cfg.Fraud)
	if err != nil {
		return nil, err
	}
	detector, err := behavior.NewDetector(cfg.Behavior)
	if err != nil {
		return nil, err
	}
	planner, err := collection.NewPlanner(cfg.Collection)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		calculator: calculator,
		scorer:     scorer,
		detector:   detector,
		planner:    planner,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ShouldAlert reports whether an assessment raises a fraud alert.
func ShouldAlert(a *domain.FraudAssessment) bool {
	return a != nil && (a.RiskLevel == domain.RiskHigh || a.IsFraudulent)
}

// FraudCheck scores the transaction and, when events or a session are
// given, analyzes the session alongside it.
func (o *Orchestrator) FraudCheck(ctx context.Context, req *domain.FraudCheckRequest) (result *domain.FraudCheckResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "decision.FraudCheck",
		trace.WithAttributes(
			attribute.String("tenant.id", req.TenantID),
			attribute.String("user.id", req.UserID),
		),
	)
	defer func() { o.finish(span, metrics.KindFraudCheck, start, err, result != nil && result.Alert) }()

	if err := requireTenant(req.TenantID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	signal := req.Signal
	if signal.UserID == "" {
		signal.UserID = req.UserID
	}
	if err := o.scorer.Validate(signal); err != nil {
		return nil, err
	}
	inline, err := o.inlineSession(req)
	if err != nil {
		return nil, err
	}

	// Only checks that passed validation count towards velocity.
	o.applyVelocity(ctx, req.TenantID, &signal)
	session := o.resolveSession(ctx, req, inline)

	var assessment *domain.FraudAssessment
	var anomaly *domain.AnomalyAssessment

	var g errgroup.Group
	g.Go(func() error {
		a, err := o.scorer.Score(signal)
		assessment = a
		return err
	})
	if session != nil {
		g.Go(func() error {
			a, err := o.detector.Detect(*session)
			anomaly = a
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result = &domain.FraudCheckResult{
		ID:        uuid.New().String(),
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Fraud:     assessment,
		Behavior:  anomaly,
		Alert:     ShouldAlert(assessment),
		TraceID:   traceID(span),
		Timestamp: time.Now().UTC(),
	}

	var alert *domain.FraudAlert
	if result.Alert {
		alert = newAlert(result)
		result.AlertID = alert.ID
	}

	o.metrics.ObserveFraud(assessment)
	o.metrics.ObserveAnomaly(anomaly)
	span.SetAttributes(
		attribute.Int("fraud.risk_score", assessment.RiskScore),
		attribute.String("fraud.risk_level", string(assessment.RiskLevel)),
		attribute.Bool("fraud.alert", result.Alert),
	)

	if o.repo != nil {
		if err := o.repo.SaveFraudCheck(ctx, req.TenantID, result); err != nil {
			o.sideEffectFailed(ctx, metrics.ComponentRepository, "failed to save fraud check", err, "check_id", result.ID)
		}
		if alert != nil {
			if err := o.repo.SaveFraudAlert(ctx, req.TenantID, alert); err != nil {
				o.sideEffectFailed(ctx, metrics.ComponentRepository, "failed to save fraud alert", err, "alert_id", alert.ID)
			}
		}
	}
	o.publish(ctx, req.TenantID, domain.TopicFraudChecked, result)
	if alert != nil {
		o.publish(ctx, req.TenantID, domain.TopicFraudAlert, alert)
		slog.WarnContext(ctx, "fraud alert raised",
			"tenant_id", req.TenantID,
			"user_id", req.UserID,
			"alert_id", alert.ID,
			"risk_score", assessment.RiskScore,
			"is_fraudulent", assessment.IsFraudulent,
		)
	}

	return result, nil
}

// inlineSession validates the events sent with a check and returns them as
// a session, or nil when there is nothing to analyze. Without a session ID,
// inline events are analyzed as a one-off session.
func (o *Orchestrator) inlineSession(req *domain.FraudCheckRequest) (*domain.BehaviorSession, error) {
	if req.SessionID == "" && len(req.Events) == 0 {
		return nil, nil
	}
	inline := &domain.BehaviorSession{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Events:    req.Events,
	}
	if inline.SessionID == "" {
		inline.SessionID = "inline-" + uuid.New().String()
	}
	if err := o.detector.Validate(*inline); err != nil {
		return nil, err
	}
	return inline, nil
}

// resolveSession records inline events against a tracked session and returns
// the session to analyze. A failing session store degrades to the inline events.
func (o *Orchestrator) resolveSession(ctx context.Context, req *domain.FraudCheckRequest, inline *domain.BehaviorSession) *domain.BehaviorSession {
	if inline == nil || req.SessionID == "" || o.sessions == nil {
		return inline
	}

	if len(req.Events) > 0 {
		if err := o.sessions.AppendEvents(ctx, req.TenantID, req.UserID, req.SessionID, req.Events); err != nil {
			o.sideEffectFailed(ctx, metrics.ComponentSessions, "failed to record session events", err, "session_id", req.SessionID)
			return inline
		}
	}

	stored, err := o.sessions.LoadSession(ctx, req.TenantID, req.UserID, req.SessionID)
	if err != nil {
		o.sideEffectFailed(ctx, metrics.ComponentSessions, "failed to load session", err, "session_id", req.SessionID)
		return inline
	}
	sortByTime(stored.Events)
	return stored
}

// applyVelocity counts this check and fills in VelocityCount when absent.
func (o *Orchestrator) applyVelocity(ctx context.Context, tenantID string, signal *domain.TransactionSignal) {
	if o.velocity == nil || signal.UserID == "" {
		return
	}
	count, err := o.velocity.Record(ctx, tenantID, signal.UserID)
	if err != nil {
		o.sideEffectFailed(ctx, metrics.ComponentVelocity, "failed to record velocity", err, "user_id", signal.UserID)
		return
	}
	if signal.VelocityCount == nil {
		n := int(count)
		signal.VelocityCount = &n
	}
}

// AnalyzeSession scores a session. A session sent without events is loaded
// from the session store.
func (o *Orchestrator) AnalyzeSession(ctx context.Context, tenantID string, session domain.BehaviorSession) (result *domain.AnomalyAssessment, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "decision.AnalyzeSession",
		trace.WithAttributes(attribute.String("session.id", session.SessionID)),
	)
	defer func() { o.finish(span, metrics.KindBehavior, start, err, result != nil && result.IsAnomalous) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	if len(session.Events) == 0 && o.sessions != nil {
		if err := validation.Struct(session); err != nil {
			return nil, err
		}
		stored, err := o.sessions.LoadSession(ctx, tenantID, session.UserID, session.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", session.SessionID, err)
		}
		sortByTime(stored.Events)
		session = *stored
	}

	result, err = o.detector.Detect(session)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveAnomaly(result)
	return result, nil
}

// RecordEvents appends events to a tracked session and returns the number
// of events the session now holds.
func (o *Orchestrator) RecordEvents(ctx context.Context, tenantID string, session domain.BehaviorSession) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	if o.sessions == nil {
		return 0, fmt.Errorf("%w: session store", ErrUnavailable)
	}
	if len(session.Events) == 0 {
		return 0, domain.NewValidationError("events", "at least one event is required")
	}
	if err := o.detector.Validate(session); err != nil {
		return 0, err
	}

	if err := o.sessions.AppendEvents(ctx, tenantID, session.UserID, session.SessionID, session.Events); err != nil {
		return 0, fmt.Errorf("failed to record events: %w", err)
	}
	stored, err := o.sessions.LoadSession(ctx, tenantID, session.UserID, session.SessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load session: %w", err)
	}
	return len(stored.Events), nil
}

// QuoteLoan computes an EMI quote. scheduleMonths of 0 uses the configured horizon.
func (o *Orchestrator) QuoteLoan(ctx context.Context, tenantID string, terms domain.LoanTerms, scheduleMonths int) (quote *domain.LoanQuote, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "decision.QuoteLoan")
	defer func() { o.finish(span, metrics.KindLoanQuote, start, err, false) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var result *domain.AmortizationResult
	if scheduleMonths == 0 {
		result, err = o.calculator.Compute(terms)
	} else {
		result, err = o.calculator.ComputeWithHorizon(terms, scheduleMonths)
	}
	if err != nil {
		return nil, err
	}

	quote = &domain.LoanQuote{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Terms:     terms,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}

	if o.repo != nil {
		if err := o.repo.SaveLoanQuote(ctx, tenantID, quote); err != nil {
			o.sideEffectFailed(ctx, metrics.ComponentRepository, "failed to save loan quote", err, "quote_id", quote.ID)
		}
	}
	o.publish(ctx, tenantID, domain.TopicLoanQuoted, quote)
	return quote, nil
}

// PlanCollection computes and records the strategy for an overdue loan.
func (o *Orchestrator) PlanCollection(ctx context.Context, tenantID string, c domain.CollectionCase) (plan *domain.CollectionPlan, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "decision.PlanCollection",
		trace.WithAttributes(attribute.String("loan.id", c.LoanID)),
	)
	defer func() { o.finish(span, metrics.KindCollection, start, err, false) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	strategy, err := o.planner.Plan(c)
	if err != nil {
		return nil, err
	}

	plan = &domain.CollectionPlan{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    c.UserID,
		LoanID:    c.LoanID,
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("collection.priority", string(strategy.Priority)))

	if o.repo != nil {
		if err := o.repo.SaveCollectionPlan(ctx, tenantID, plan); err != nil {
			o.sideEffectFailed(ctx, metrics.ComponentRepository, "failed to save collection plan", err, "loan_id", c.LoanID)
		}
	}
	o.publish(ctx, tenantID, domain.TopicCollectionPlanned, plan)
	return plan, nil
}

// RecordContactOutcome stores an agent's contact outcome for a loan.
// Unlike decision persistence, a storage failure fails the call.
func (o *Orchestrator) RecordContactOutcome(ctx context.Context, tenantID, loanID string, outcome domain.ContactOutcome) (result *domain.ContactOutcome, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "decision.RecordContactOutcome",
		trace.WithAttributes(attribute.String("loan.id", loanID)),
	)
	defer func() { o.finish(span, metrics.KindOutcome, start, err, false) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if loanID == "" {
		return nil, domain.NewValidationError("loanId", "is required")
	}
	if err := validation.Struct(outcome); err != nil {
		return nil, err
	}
	if outcome.PromisedAmt != nil && !outcome.PromisedAmt.IsPositive() {
		return nil, domain.NewValidationError("promisedAmount", "must be positive")
	}
	if o.repo == nil {
		return nil, fmt.Errorf("%w: repository", ErrUnavailable)
	}

	outcome.ID = uuid.New().String()
	outcome.TenantID = tenantID
	outcome.LoanID = loanID
	if outcome.ContactedAt.IsZero() {
		outcome.ContactedAt = time.Now().UTC()
	}

	if err := o.repo.SaveContactOutcome(ctx, tenantID, &outcome); err != nil {
		return nil, fmt.Errorf("failed to save contact outcome: %w", err)
	}
	return &outcome, nil
}

// ContactHistory returns a loan's recorded outcomes, oldest first.
func (o *Orchestrator) ContactHistory(ctx context.Context, tenantID, loanID string) ([]*domain.ContactOutcome, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if o.repo == nil {
		return nil, fmt.Errorf("%w: repository", ErrUnavailable)
	}
	return o.repo.ListContactOutcomes(ctx, tenantID, loanID)
}

func (o *Orchestrator) publish(ctx context.Context, tenantID, topic string, v any) {
	if o.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, o.bus, tenantID, topic, v); err != nil {
		o.sideEffectFailed(ctx, metrics.ComponentBus, "failed to publish event", err, "topic", topic)
	}
}

func (o *Orchestrator) sideEffectFailed(ctx context.Context, component, msg string, err error, args ...any) {
	o.metrics.SideEffectFailed(component)
	slog.ErrorContext(ctx, msg, append(args, "error", err)...)
}

// finish ends the span and records the decision outcome.
func (o *Orchestrator) finish(span trace.Span, kind string, start time.Time, err error, alert bool) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, domain.ErrValidation):
		outcome = metrics.OutcomeInvalid
	case err != nil:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case alert:
		outcome = metrics.OutcomeAlert
	}
	o.metrics.ObserveDecision(kind, outcome, start)
	span.End()
}

func newAlert(r *domain.FraudCheckResult) *domain.FraudAlert {
	alert := &domain.FraudAlert{
		ID:           uuid.New().String(),
		TenantID:     r.TenantID,
		CheckID:      r.ID,
		UserID:       r.UserID,
		RiskScore:    r.Fraud.RiskScore,
		RiskLevel:    r.Fraud.RiskLevel,
		IsFraudulent: r.Fraud.IsFraudulent,
		Indicators:   r.Fraud.Indicators,
		Status:       domain.AlertStatusOpen,
		CreatedAt:    r.Timestamp,
	}
	if r.Behavior != nil {
		alert.AnomalyScore = r.Behavior.AnomalyScore
		alert.Patterns = r.Behavior.Patterns
	}
	return alert
}

// sortByTime orders stored events; batches from separate requests may interleave.
func sortByTime(events []domain.BehaviorEvent) {
	slices.SortStableFunc(events, func(a, b domain.BehaviorEvent) int {
		return cmp.Compare(a.TimestampMillis, b.TimestampMillis)
	})
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return domain.NewValidationError("tenantId", "is required")
	}
	return nil
}

func traceID(span trace.Span) string {
	if sc := span.SpanContext(); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
