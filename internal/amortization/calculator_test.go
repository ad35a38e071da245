package amortization

import (
	"errors"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terms(principal, rate string, tenure int) domain.LoanTerms {
	p := decimal.RequireFromString(principal)
	r := decimal.RequireFromString(rate)
	return domain.LoanTerms{Principal: &p, AnnualRatePercent: &r, TenureMonths: &tenure}
}

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(domain.DefaultEngineConfig().Amortization)
	require.NoError(t, err)
	return calc
}

func TestEMIRegressionOracle(t *testing.T) {
	calc := newCalculator(t)

	result, err := calc.Compute(terms("500000", "12.0", 48))
	require.NoError(t, err)

	assert.Equal(t, int64(13167), result.EMI)
	assert.True(t, result.TotalPayment.Equal(decimal.NewFromInt(632016)), "total payment %s", result.TotalPayment)
	assert.True(t, result.TotalInterest.Equal(decimal.NewFromInt(132016)), "total interest %s", result.TotalInterest)
	assert.Equal(t, "26.4", result.EffectiveRatePercent.String())
	assert.Len(t, result.Schedule, 12)

	first := result.Schedule[0]
	assert.Equal(t, 1, first.Month)
	assert.Equal(t, "5000", first.InterestPortion.String())
	assert.Equal(t, "8167", first.PrincipalPortion.String())
	assert.Equal(t, "491833", first.RemainingBalance.String())
}

func TestEMIDeterministic(t *testing.T) {
	calc := newCalculator(t)
	in := terms("250000", "10.5", 36)

	a, err := calc.Compute(in)
	require.NoError(t, err)
	b, err := calc.Compute(in)
	require.NoError(t, err)

	assert.Equal(t, a.EMI, b.EMI)
	assert.Equal(t, a.Schedule, b.Schedule)
}

func TestZeroRateLoan(t *testing.T) {
	calc := newCalculator(t)

	result, err := calc.ComputeWithHorizon(terms("120000", "0", 12), 0)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), result.EMI)
	assert.True(t, result.TotalInterest.IsZero())
	assert.True(t, result.EffectiveRatePercent.IsZero())
	for _, e := range result.Schedule {
		assert.True(t, e.InterestPortion.IsZero())
	}
	assert.True(t, result.Schedule[len(result.Schedule)-1].RemainingBalance.IsZero())
}

func TestZeroRateRoundingDrift(t *testing.T) {
	calc := newCalculator(t)

	result, err := calc.ComputeWithHorizon(terms("10000", "0", 3), 0)
	require.NoError(t, err)

	assert.Equal(t, int64(3333), result.EMI)
	assert.Equal(t, "9999", result.TotalPayment.String())
	assert.Equal(t, "-1", result.TotalInterest.String())
	assert.Equal(t, "-0.01", result.EffectiveRatePercent.String())

	require.Len(t, result.Schedule, 3)
	paid, principal := decimal.Zero, decimal.Zero
	for _, e := range result.Schedule {
		paid = paid.Add(e.EMI)
		principal = principal.Add(e.PrincipalPortion)
		assert.True(t, e.InterestPortion.IsZero())
	}
	last := result.Schedule[2]
	assert.Equal(t, "3334", last.PrincipalPortion.String())
	assert.Equal(t, "3334", last.EMI.String())
	assert.True(t, last.RemainingBalance.IsZero())
	assert.Equal(t, "10000", principal.String())
	assert.Equal(t, "10000", paid.String(), "the schedule settles the principal the headline total misses")
}

func TestFullScheduleProperties(t *testing.T) {
	calc := newCalculator(t)

	cases := []domain.LoanTerms{
		terms("500000", "12", 48),
		terms("10000", "36", 3),
		terms("5000000", "7.25", 60),
		terms("77777.77", "18.9", 17),
		terms("10001", "0", 3),
	}

	for _, in := range cases {
		result, err := calc.ComputeWithHorizon(in, 0)
		require.NoError(t, err)

		sum := decimal.Zero
		prev := *in.Principal
		for _, e := range result.Schedule {
			sum = sum.Add(e.PrincipalPortion)
			assert.False(t, e.RemainingBalance.GreaterThan(prev), "balance increased at month %d", e.Month)
			assert.False(t, e.RemainingBalance.IsNegative())
			prev = e.RemainingBalance
		}

		assert.True(t, sum.Sub(*in.Principal).Abs().LessThanOrEqual(decimal.NewFromInt(1)),
			"principal portions sum to %s, want %s", sum, in.Principal)
		last := result.Schedule[len(result.Schedule)-1]
		assert.True(t, last.RemainingBalance.LessThanOrEqual(decimal.NewFromInt(1)))
		assert.LessOrEqual(t, len(result.Schedule), *in.TenureMonths)
	}
}

func TestScheduleIsLazy(t *testing.T) {
	in := terms("500000", "12", 48)
	emi := EMI(*in.Principal, *in.AnnualRatePercent, *in.TenureMonths)

	var months []int
	for e := range Schedule(in, emi) {
		months = append(months, e.Month)
		if e.Month == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, months)
}

func TestHorizon(t *testing.T) {
	calc := newCalculator(t)

	result, err := calc.ComputeWithHorizon(terms("100000", "9", 24), 6)
	require.NoError(t, err)
	assert.Len(t, result.Schedule, 6)

	result, err = calc.ComputeWithHorizon(terms("100000", "9", 24), 99)
	require.NoError(t, err)
	assert.Len(t, result.Schedule, 24)

	_, err = calc.ComputeWithHorizon(terms("100000", "9", 24), -1)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestValidation(t *testing.T) {
	calc := newCalculator(t)

	tests := []struct {
		name  string
		terms domain.LoanTerms
		field string
	}{
		{"PrincipalTooSmall", terms("9999", "12", 12), "principal"},
		{"PrincipalTooLarge", terms("5000001", "12", 12), "principal"},
		{"TenureTooShort", terms("50000", "12", 2), "tenureMonths"},
		{"TenureTooLong", terms("50000", "12", 61), "tenureMonths"},
		{"NegativeRate", terms("50000", "-1", 12), "annualRatePercent"},
		{"MissingPrincipal", domain.LoanTerms{AnnualRatePercent: terms("1", "1", 1).AnnualRatePercent, TenureMonths: terms("1", "1", 12).TenureMonths}, "principal"},
		{"MissingTenure", domain.LoanTerms{Principal: terms("50000", "1", 1).Principal, AnnualRatePercent: terms("1", "1", 1).AnnualRatePercent}, "tenureMonths"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Compute(tt.terms)
			require.Error(t, err)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestConfigurationBounds(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Amortization
	cfg.MaxPrincipal = cfg.MinPrincipal

	_, err := NewCalculator(cfg)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	cfg = domain.DefaultEngineConfig().Amortization
	cfg.MinPrincipal = 1000
	cfg.MaxTenureMonths = 120
	calc, err := NewCalculator(cfg)
	require.NoError(t, err)

	_, err = calc.Compute(terms("1000", "12", 120))
	assert.NoError(t, err)
}

func TestConcurrentCompute(t *testing.T) {
	calc := newCalculator(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := calc.Compute(terms("500000", "12", 48))
			if err != nil || result.EMI != 13167 {
				t.Errorf("unexpected result: %v %v", result, err)
			}
		}()
	}
	wg.Wait()
}
