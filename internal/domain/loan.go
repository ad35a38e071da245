package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanTerms are the inputs of an amortization quote.
type LoanTerms struct {
	Principal         *decimal.Decimal `json:"principal" validate:"required"`
	AnnualRatePercent *decimal.Decimal `json:"annualRatePercent" validate:"required"`
	TenureMonths      *int             `json:"tenureMonths" validate:"required"`
}

// AmortizationResult is an EMI quote with its repayment schedule.
type AmortizationResult struct {
	EMI                  int64           `json:"emi"`
	TotalPayment         decimal.Decimal `json:"totalPayment"`
	TotalInterest        decimal.Decimal `json:"totalInterest"`
	EffectiveRatePercent decimal.Decimal `json:"effectiveRatePercent"`
	Schedule             []ScheduleEntry `json:"schedule"`
}

// ScheduleEntry is one month of an amortization schedule.
type ScheduleEntry struct {
	Month            int             `json:"month"`
	EMI              decimal.Decimal `json:"emi"`
	PrincipalPortion decimal.Decimal `json:"principalPortion"`
	InterestPortion  decimal.Decimal `json:"interestPortion"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
}

// LoanQuote is a persisted amortization quote.
type LoanQuote struct {
	ID        string              `json:"id"`
	TenantID  string              `json:"tenantId"`
	Terms     LoanTerms           `json:"terms"`
	Result    *AmortizationResult `json:"result"`
	CreatedAt time.Time           `json:"createdAt"`
}
