package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the transaction kinds accepted by the fraud scorer.
type TransactionType string

const (
	TxTransfer         TransactionType = "transfer"
	TxPayment          TransactionType = "payment"
	TxWithdrawal       TransactionType = "withdrawal"
	TxDeposit          TransactionType = "deposit"
	TxLoanDisbursement TransactionType = "loan_disbursement"
	TxLoanRepayment    TransactionType = "loan_repayment"
)

// TransactionSignal carries the raw signals of one transaction.
// Device and behavior metrics are optional; rules whose signal is absent do not apply.
type TransactionSignal struct {
	UserID          string           `json:"userId,omitempty"`
	Amount          *decimal.Decimal `json:"amount" validate:"required"`
	Type            TransactionType  `json:"type" validate:"required,oneof=transfer payment withdrawal deposit loan_disbursement loan_repayment"`
	DeviceInfo      *DeviceInfo      `json:"deviceInfo,omitempty"`
	BehaviorMetrics *BehaviorMetrics `json:"behaviorMetrics,omitempty"`

	// VelocityCount is the number of recent checks for the same user, supplied by the caller.
	VelocityCount *int `json:"velocityCount,omitempty" validate:"omitempty,gte=0"`
}

// DeviceInfo describes the device a transaction originated from.
type DeviceInfo struct {
	DeviceID string `json:"deviceId" validate:"required"`
	Platform string `json:"platform" validate:"required"`
	IsVPN    *bool  `json:"isVPN,omitempty"`
}

// BehaviorMetrics are client-side interaction metrics.
type BehaviorMetrics struct {
	RapidClicks *int   `json:"rapidClicks,omitempty" validate:"omitempty,gte=0"`
	IPAddress   string `json:"ipAddress,omitempty" validate:"omitempty,ip"`
	UserAgent   string `json:"userAgent,omitempty"`
}

// RiskLevel is the fraud risk tier.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FraudAssessment is the scorer output for one signal.
type FraudAssessment struct {
	RiskScore        int       `json:"riskScore"`
	RiskLevel        RiskLevel `json:"riskLevel"`
	IsFraudulent     bool      `json:"isFraudulent"`
	Indicators       []string  `json:"indicators"`
	SuggestedActions []string  `json:"suggestedActions"`
}

// FraudCheckRequest is the orchestrator input for a combined fraud check.
type FraudCheckRequest struct {
	TenantID  string            `json:"-"`
	UserID    string            `json:"userId" validate:"required"`
	SessionID string            `json:"sessionId,omitempty"`
	Signal    TransactionSignal `json:"signal"`
	Events    []BehaviorEvent   `json:"events,omitempty" validate:"dive"`
}

// FraudCheckResult combines the fraud and behavior assessments of a check.
type FraudCheckResult struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	UserID    string             `json:"userId"`
	SessionID string             `json:"sessionId,omitempty"`
	Fraud     *FraudAssessment   `json:"fraud"`
	Behavior  *AnomalyAssessment `json:"behavior,omitempty"`
	Alert     bool               `json:"alert"`
	AlertID   string             `json:"alertId,omitempty"`
	TraceID   string             `json:"traceId,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// FraudAlert is persisted when a check is high risk or fraudulent.
type FraudAlert struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	CheckID      string    `json:"checkId"`
	UserID       string    `json:"userId"`
	RiskScore    int       `json:"riskScore"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	IsFraudulent bool      `json:"isFraudulent"`
	Indicators   []string  `json:"indicators"`
	AnomalyScore int       `json:"anomalyScore"`
	Patterns     []string  `json:"patterns,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Alert statuses.
const (
	AlertStatusOpen     = "open"
	AlertStatusReviewed = "reviewed"
)
