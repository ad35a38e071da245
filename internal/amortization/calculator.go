// Package amortization computes EMI quotes and reducing-balance schedules.
package amortization

import (
	"iter"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/validation"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculator quotes loans within configured bounds.
// It is immutable after construction and safe for concurrent use.
type Calculator struct {
	cfg          domain.AmortizationConfig
	minPrincipal decimal.Decimal
	maxPrincipal decimal.Decimal
	maxRate      decimal.Decimal
}

// NewCalculator creates a calculator from cfg.
func NewCalculator(cfg domain.AmortizationConfig) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		cfg:          cfg,
		minPrincipal: decimal.NewFromFloat(cfg.MinPrincipal),
		maxPrincipal: decimal.NewFromFloat(cfg.MaxPrincipal),
		maxRate:      decimal.NewFromFloat(cfg.MaxAnnualRatePercent),
	}, nil
}

// Compute quotes terms with the configured schedule horizon.
func (c *Calculator) Compute(terms domain.LoanTerms) (*domain.AmortizationResult, error) {
	return c.ComputeWithHorizon(terms, c.cfg.ScheduleMonths)
}

// ComputeWithHorizon quotes terms and materializes the first months of the schedule.
// A horizon of 0, or one beyond the tenure, returns the full schedule.
// TotalPayment is EMI × tenure, so it can differ from the sum of the schedule
// by the rounding the final month settles.
func (c *Calculator) ComputeWithHorizon(terms domain.LoanTerms, months int) (*domain.AmortizationResult, error) {
	if months < 0 {
		return nil, domain.NewValidationError("scheduleMonths", "cannot be negative")
	}
	if err := c.validate(terms); err != nil {
		return nil, err
	}

	principal := *terms.Principal
	tenure := *terms.TenureMonths
	emi := EMI(principal, *terms.AnnualRatePercent, tenure)

	emiDec := decimal.NewFromInt(emi)
	totalPayment := emiDec.Mul(decimal.NewFromInt(int64(tenure)))
	totalInterest := totalPayment.Sub(principal)
	effective := totalInterest.Div(principal).Mul(hundred).Round(c.cfg.RatePrecision)

	if months == 0 || months > tenure {
		months = tenure
	}

	schedule := make([]domain.ScheduleEntry, 0, months)
	for entry := range Schedule(terms, emi) {
		schedule = append(schedule, entry)
		if entry.Month >= months {
			break
		}
	}

	return &domain.AmortizationResult{
		EMI:                  emi,
		TotalPayment:         totalPayment,
		TotalInterest:        totalInterest,
		EffectiveRatePercent: effective,
		Schedule:             schedule,
	}, nil
}

func (c *Calculator) validate(terms domain.LoanTerms) error {
	if err := validation.Struct(terms); err != nil {
		return err
	}

	p := *terms.Principal
	if p.LessThan(c.minPrincipal) || p.GreaterThan(c.maxPrincipal) {
		return domain.NewValidationError("principal", "must be within [%s, %s]", c.minPrincipal, c.maxPrincipal)
	}

	rate := *terms.AnnualRatePercent
	if rate.IsNegative() || rate.GreaterThan(c.maxRate) {
		return domain.NewValidationError("annualRatePercent", "must be within [0, %s]", c.maxRate)
	}

	n := *terms.TenureMonths
	if n < c.cfg.MinTenureMonths || n > c.cfg.MaxTenureMonths {
		return domain.NewValidationError("tenureMonths", "must be within [%d, %d]", c.cfg.MinTenureMonths, c.cfg.MaxTenureMonths)
	}
	return nil
}

// MonthlyRate converts an annual percentage to a monthly fraction.
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(decimal.NewFromInt(12)).Div(hundred)
}

// EMI returns the equated monthly installment rounded to the nearest currency unit.
// A zero rate degenerates to principal / tenure.
func EMI(principal, annualRatePercent decimal.Decimal, tenure int) int64 {
	if tenure <= 0 {
		return 0
	}
	if annualRatePercent.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(tenure))).Round(0).IntPart()
	}

	p := principal.InexactFloat64()
	r := MonthlyRate(annualRatePercent).InexactFloat64()
	growth := math.Pow(1+r, float64(tenure))
	return int64(math.Round(p * r * growth / (growth - 1)))
}

// Schedule yields the amortization schedule one month at a time.
// Interest is rounded to the currency unit each month and the final month
// settles whatever balance the rounding left, so the balance ends at zero.
func Schedule(terms domain.LoanTerms, emi int64) iter.Seq[domain.ScheduleEntry] {
	return func(yield func(domain.ScheduleEntry) bool) {
		if terms.Principal == nil || terms.AnnualRatePercent == nil || terms.TenureMonths == nil {
			return
		}

		r := MonthlyRate(*terms.AnnualRatePercent)
		tenure := *terms.TenureMonths
		installment := decimal.NewFromInt(emi)
		balance := *terms.Principal

		for month := 1; month <= tenure; month++ {
			interest := balance.Mul(r).Round(0)
			principal := installment.Sub(interest)
			payment := installment

			if month == tenure || principal.GreaterThan(balance) {
				principal = balance
				payment = principal.Add(interest)
			}
			if principal.IsNegative() {
				principal = decimal.Zero
			}

			balance = balance.Sub(principal)
			if balance.IsNegative() {
				balance = decimal.Zero
			}

			entry := domain.ScheduleEntry{
				Month:            month,
				EMI:              payment,
				PrincipalPortion: principal,
				InterestPortion:  interest,
				RemainingBalance: balance,
			}
			if !yield(entry) {
				return
			}
			if balance.IsZero() {
				return
			}
		}
	}
}
