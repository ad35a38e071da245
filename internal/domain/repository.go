// Package domain defines the core value objects, configuration and ports of Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository persists decision outputs. The engines never call it;
// the orchestrator and API layer do.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Fraud checks and alerts
	SaveFraudCheck(ctx context.Context, tenantID string, check *FraudCheckResult) error
	GetFraudCheck(ctx context.Context, tenantID string, checkID string) (*FraudCheckResult, error)
	SaveFraudAlert(ctx context.Context, tenantID string, alert *FraudAlert) error
	GetFraudAlert(ctx context.Context, tenantID string, alertID string) (*FraudAlert, error)
	ListFraudAlerts(ctx context.Context, tenantID string, status string, limit int) ([]*FraudAlert, error)
	CountFraudChecks(ctx context.Context, tenantID string, userID string, since time.Time) (int64, error)

	// Loan quotes
	SaveLoanQuote(ctx context.Context, tenantID string, quote *LoanQuote) error

	// Collections
	SaveCollectionPlan(ctx context.Context, tenantID string, plan *CollectionPlan) error
	GetLatestCollectionPlan(ctx context.Context, tenantID string, loanID string) (*CollectionPlan, error)
	SaveContactOutcome(ctx context.Context, tenantID string, outcome *ContactOutcome) error
	ListContactOutcomes(ctx context.Context, tenantID string, loanID string) ([]*ContactOutcome, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDB"`
	PostgresSSLMode  string `mapstructure:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
