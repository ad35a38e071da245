package repository

// Schema definitions for the Kestrel decision store.
// Compatible with both SQLite and PostgreSQL. Money is stored as decimal text.

const schemaFraudChecks = `
CREATE TABLE IF NOT EXISTS fraud_checks (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    session_id TEXT,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    is_fraudulent INTEGER NOT NULL DEFAULT 0,
    anomaly_score INTEGER NOT NULL DEFAULT 0,
    alert INTEGER NOT NULL DEFAULT 0,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_checks_user ON fraud_checks(tenant_id, user_id, created_at);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    check_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    is_fraudulent INTEGER NOT NULL DEFAULT 0,
    indicators TEXT NOT NULL,
    anomaly_score INTEGER NOT NULL DEFAULT 0,
    patterns TEXT,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status ON fraud_alerts(tenant_id, status, created_at);
`

const schemaLoanQuotes = `
CREATE TABLE IF NOT EXISTS loan_quotes (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    principal TEXT NOT NULL,
    annual_rate_percent TEXT NOT NULL,
    tenure_months INTEGER NOT NULL,
    emi INTEGER NOT NULL,
    total_payment TEXT NOT NULL,
    total_interest TEXT NOT NULL,
    effective_rate_percent TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loan_quotes_tenant ON loan_quotes(tenant_id, created_at);
`

const schemaCollectionPlans = `
CREATE TABLE IF NOT EXISTS collection_plans (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    loan_id TEXT NOT NULL,
    priority TEXT NOT NULL,
    channel TEXT NOT NULL,
    estimated_recovery TEXT NOT NULL,
    strategy TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_collection_plans_loan ON collection_plans(tenant_id, loan_id, created_at);
`

const schemaContactOutcomes = `
CREATE TABLE IF NOT EXISTS contact_outcomes (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    loan_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    channel TEXT NOT NULL,
    outcome TEXT NOT NULL,
    promised_amount TEXT,
    notes TEXT,
    contacted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contact_outcomes_loan ON contact_outcomes(tenant_id, loan_id, contacted_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFraudChecks,
		schemaFraudAlerts,
		schemaLoanQuotes,
		schemaCollectionPlans,
		schemaContactOutcomes,
	}
}
