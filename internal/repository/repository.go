// Package repository persists decision outputs in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Alert listing limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New opens the configured database and runs migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveFraudCheck stores a combined fraud check result.
func (r *SQLRepository) SaveFraudCheck(ctx context.Context, tenantID string, check *domain.FraudCheckResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if check == nil || check.Fraud == nil {
		return fmt.Errorf("%w: fraud assessment is required", ErrInvalidInput)
	}

	result, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("failed to encode fraud check: %w", err)
	}

	anomalyScore := 0
	if check.Behavior != nil {
		anomalyScore = check.Behavior.AnomalyScore
	}

	query := `
		INSERT INTO fraud_checks (
			id, tenant_id, user_id, session_id, risk_score, risk_level,
			is_fraudulent, anomaly_score, alert, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		check.ID, tenantID, check.UserID, check.SessionID,
		check.Fraud.RiskScore, string(check.Fraud.RiskLevel),
		boolInt(check.Fraud.IsFraudulent), anomalyScore, boolInt(check.Alert),
		string(result), check.Timestamp.UTC(),
	)
	return err
}

// GetFraudCheck retrieves a fraud check by ID.
func (r *SQLRepository) GetFraudCheck(ctx context.Context, tenantID string, checkID string) (*domain.FraudCheckResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT result FROM fraud_checks WHERE tenant_id = ? AND id = ?`

	var raw string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, checkID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var check domain.FraudCheckResult
	if err := json.Unmarshal([]byte(raw), &check); err != nil {
		return nil, fmt.Errorf("failed to decode fraud check %s: %w", checkID, err)
	}
	return &check, nil
}

// CountFraudChecks counts a user's checks since the given time.
func (r *SQLRepository) CountFraudChecks(ctx context.Context, tenantID string, userID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM fraud_checks
		WHERE tenant_id = ? AND user_id = ? AND created_at >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, userID, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count fraud checks: %w", err)
	}
	return count, nil
}

// SaveFraudAlert stores an alert raised by a fraud check.
func (r *SQLRepository) SaveFraudAlert(ctx context.Context, tenantID string, alert *domain.FraudAlert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	indicators, _ := json.Marshal(nonNil(alert.Indicators))
	patterns, _ := json.Marshal(nonNil(alert.Patterns))

	status := alert.Status
	if status == "" {
		status = domain.AlertStatusOpen
	}

	query := `
		INSERT INTO fraud_alerts (
			id, tenant_id, check_id, user_id, risk_score, risk_level,
			is_fraudulent, indicators, anomaly_score, patterns, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.CheckID, alert.UserID,
		alert.RiskScore, string(alert.RiskLevel), boolInt(alert.IsFraudulent),
		string(indicators), alert.AnomalyScore, string(patterns),
		status, alert.CreatedAt.UTC(),
	)
	return err
}

const alertColumns = `id, tenant_id, check_id, user_id, risk_score, risk_level,
	is_fraudulent, indicators, anomaly_score, patterns, status, created_at`

// GetFraudAlert retrieves an alert by ID.
func (r *SQLRepository) GetFraudAlert(ctx context.Context, tenantID string, alertID string) (*domain.FraudAlert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE tenant_id = ? AND id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return alert, err
}

// ListFraudAlerts returns the newest alerts, optionally filtered by status.
func (r *SQLRepository) ListFraudAlerts(ctx context.Context, tenantID string, status string, limit int) ([]*domain.FraudAlert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*domain.FraudAlert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var level, indicators string
	var patterns sql.NullString
	var fraudulent int

	if err := row.Scan(
		&a.ID, &a.TenantID, &a.CheckID, &a.UserID,
		&a.RiskScore, &level, &fraudulent,
		&indicators, &a.AnomalyScore, &patterns,
		&a.Status, &a.CreatedAt,
	); err != nil {
		return nil, err
	}

	a.RiskLevel = domain.RiskLevel(level)
	a.IsFraudulent = fraudulent == 1
	if err := json.Unmarshal([]byte(indicators), &a.Indicators); err != nil {
		return nil, fmt.Errorf("failed to parse indicators for alert %s: %w", a.ID, err)
	}
	if patterns.Valid && patterns.String != "" {
		if err := json.Unmarshal([]byte(patterns.String), &a.Patterns); err != nil {
			return nil, fmt.Errorf("failed to parse patterns for alert %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

// SaveLoanQuote stores an amortization quote. The schedule is not persisted;
// it is recomputed from the terms on demand.
func (r *SQLRepository) SaveLoanQuote(ctx context.Context, tenantID string, quote *domain.LoanQuote) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	t := quote.Terms
	if quote.Result == nil || t.Principal == nil || t.AnnualRatePercent == nil || t.TenureMonths == nil {
		return fmt.Errorf("%w: quote terms and result are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO loan_quotes (
			id, tenant_id, principal, annual_rate_percent, tenure_months, emi,
			total_payment, total_interest, effective_rate_percent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		quote.ID, tenantID,
		t.Principal.String(), t.AnnualRatePercent.String(), *t.TenureMonths,
		quote.Result.EMI,
		quote.Result.TotalPayment.String(), quote.Result.TotalInterest.String(),
		quote.Result.EffectiveRatePercent.String(),
		quote.CreatedAt.UTC(),
	)
	return err
}

// SaveCollectionPlan stores a planned strategy for a loan.
func (r *SQLRepository) SaveCollectionPlan(ctx context.Context, tenantID string, plan *domain.CollectionPlan) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if plan.Strategy == nil {
		return fmt.Errorf("%w: strategy is required", ErrInvalidInput)
	}

	strategy, err := json.Marshal(plan.Strategy)
	if err != nil {
		return fmt.Errorf("failed to encode strategy: %w", err)
	}

	query := `
		INSERT INTO collection_plans (
			id, tenant_id, user_id, loan_id, priority, channel,
			estimated_recovery, strategy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		plan.ID, tenantID, plan.UserID, plan.LoanID,
		string(plan.Strategy.Priority), string(plan.Strategy.CommunicationChannel),
		plan.Strategy.EstimatedRecovery.String(), string(strategy),
		plan.CreatedAt.UTC(),
	)
	return err
}

// GetLatestCollectionPlan returns the most recent plan for a loan.
func (r *SQLRepository) GetLatestCollectionPlan(ctx context.Context, tenantID string, loanID string) (*domain.CollectionPlan, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, user_id, loan_id, strategy, created_at
		FROM collection_plans
		WHERE tenant_id = ? AND loan_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var plan domain.CollectionPlan
	var strategy string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, loanID).Scan(
		&plan.ID, &plan.TenantID, &plan.UserID, &plan.LoanID, &strategy, &plan.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	plan.Strategy = &domain.CollectionStrategy{}
	if err := json.Unmarshal([]byte(strategy), plan.Strategy); err != nil {
		return nil, fmt.Errorf("failed to parse strategy for plan %s: %w", plan.ID, err)
	}
	return &plan, nil
}

// SaveContactOutcome stores an agent-recorded contact outcome.
func (r *SQLRepository) SaveContactOutcome(ctx context.Context, tenantID string, outcome *domain.ContactOutcome) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if strings.TrimSpace(outcome.LoanID) == "" {
		return fmt.Errorf("%w: loanID is required", ErrInvalidInput)
	}

	var promised sql.NullString
	if outcome.PromisedAmt != nil {
		promised = sql.NullString{String: outcome.PromisedAmt.String(), Valid: true}
	}

	query := `
		INSERT INTO contact_outcomes (
			id, tenant_id, loan_id, agent_id, channel, outcome,
			promised_amount, notes, contacted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		outcome.ID, tenantID, outcome.LoanID, outcome.AgentID,
		string(outcome.Channel), outcome.Outcome, promised, outcome.Notes,
		outcome.ContactedAt.UTC(),
	)
	return err
}

// ListContactOutcomes returns a loan's contact history, oldest first.
func (r *SQLRepository) ListContactOutcomes(ctx context.Context, tenantID string, loanID string) ([]*domain.ContactOutcome, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, loan_id, agent_id, channel, outcome, promised_amount, notes, contacted_at
		FROM contact_outcomes
		WHERE tenant_id = ? AND loan_id = ?
		ORDER BY contacted_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := []*domain.ContactOutcome{}
	for rows.Next() {
		var o domain.ContactOutcome
		var channel string
		var promised, notes sql.NullString

		if err := rows.Scan(
			&o.ID, &o.TenantID, &o.LoanID, &o.AgentID,
			&channel, &o.Outcome, &promised, &notes, &o.ContactedAt,
		); err != nil {
			return nil, err
		}

		o.Channel = domain.Channel(channel)
		o.Notes = notes.String
		if promised.Valid {
			amt, err := decimal.NewFromString(promised.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse promised amount for outcome %s: %w", o.ID, err)
			}
			o.PromisedAmt = &amt
		}
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
