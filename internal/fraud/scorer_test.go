package fraud

import (
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func signal(amount string, vpn *bool, clicks *int) domain.TransactionSignal {
	s := domain.TransactionSignal{
		Amount: ptr(decimal.RequireFromString(amount)),
		Type:   domain.TxTransfer,
	}
	if vpn != nil {
		s.DeviceInfo = &domain.DeviceInfo{DeviceID: "dev-1", Platform: "android", IsVPN: vpn}
	}
	if clicks != nil {
		s.BehaviorMetrics = &domain.BehaviorMetrics{RapidClicks: clicks, IPAddress: "10.0.0.1"}
	}
	return s
}

func newScorer(t *testing.T, cfg domain.FraudConfig) *Scorer {
	t.Helper()
	s, err := NewScorer(cfg)
	require.NoError(t, err)
	return s
}

func TestScoreBuiltInRules(t *testing.T) {
	s := newScorer(t, domain.DefaultEngineConfig().Fraud)

	tests := []struct {
		name       string
		signal     domain.TransactionSignal
		score      int
		level      domain.RiskLevel
		indicators []string
	}{
		{"Clean", signal("500", ptr(false), ptr(2)), 0, domain.RiskLow, []string{}},
		{"AmountAtThreshold", signal("100000", nil, nil), 0, domain.RiskLow, []string{}},
		{"HighAmount", signal("100000.01", nil, nil), 20, domain.RiskLow, []string{IndicatorHighAmount}},
		{"AmountAndVPN", signal("150000", ptr(true), nil), 35, domain.RiskMedium, []string{IndicatorHighAmount, IndicatorVPN}},
		{"AllRules", signal("150000", ptr(true), ptr(11)), 45, domain.RiskMedium, []string{IndicatorHighAmount, IndicatorVPN, IndicatorRapidClicks}},
		{"ClicksAtThreshold", signal("10", nil, ptr(10)), 0, domain.RiskLow, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Score(tt.signal)
			require.NoError(t, err)
			assert.Equal(t, tt.score, got.RiskScore)
			assert.Equal(t, tt.level, got.RiskLevel)
			assert.Equal(t, tt.indicators, got.Indicators)
			assert.False(t, got.IsFraudulent)
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	s := newScorer(t, domain.DefaultEngineConfig().Fraud)

	steps := []domain.TransactionSignal{
		signal("10", ptr(false), ptr(0)),
		signal("200000", ptr(false), ptr(0)),
		signal("200000", ptr(true), ptr(0)),
		signal("200000", ptr(true), ptr(50)),
	}

	prev := -1
	for i, sig := range steps {
		got, err := s.Score(sig)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.RiskScore, prev, "step %d", i)
		prev = got.RiskScore
	}
}

// High and fraudulent are separate cutoffs: a score of 65 is high risk
// without being fraudulent.
func TestHighRiskIsNotNecessarilyFraudulent(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Fraud
	cfg.HighValueWeight = 40
	cfg.VPNWeight = 25
	s := newScorer(t, cfg)

	got, err := s.Score(signal("250000", ptr(true), nil))
	require.NoError(t, err)

	assert.Equal(t, 65, got.RiskScore)
	assert.Equal(t, domain.RiskHigh, got.RiskLevel)
	assert.False(t, got.IsFraudulent)
	assert.Equal(t, []string{ActionVerify, ActionReview}, got.SuggestedActions)

	cfg.RapidClicksWeight = 10
	s = newScorer(t, cfg)
	got, err = s.Score(signal("250000", ptr(true), ptr(20)))
	require.NoError(t, err)
	assert.Equal(t, 75, got.RiskScore)
	assert.True(t, got.IsFraudulent)
}

func TestScoreDeterministic(t *testing.T) {
	s := newScorer(t, domain.DefaultEngineConfig().Fraud)
	sig := signal("150000", ptr(true), ptr(12))

	a, err := s.Score(sig)
	require.NoError(t, err)
	b, err := s.Score(sig)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSuggestedActions(t *testing.T) {
	assert.Equal(t, []string{ActionMonitor}, Actions(domain.RiskMedium))
	assert.Empty(t, Actions(domain.RiskLow))
	assert.Len(t, Actions(domain.RiskHigh), 2)
}

func TestScoreValidation(t *testing.T) {
	s := newScorer(t, domain.DefaultEngineConfig().Fraud)

	t.Run("MissingAmount", func(t *testing.T) {
		_, err := s.Score(domain.TransactionSignal{Type: domain.TxPayment})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "amount", ve.Field)
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := s.Score(signal("-1", nil, nil))
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("NegativeClicks", func(t *testing.T) {
		_, err := s.Score(signal("1", nil, ptr(-3)))
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "behaviorMetrics.rapidClicks", ve.Field)
	})
}

func TestCustomRules(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Fraud
	cfg.CustomRules = []domain.FraudRule{
		{ID: "velocity", Name: "Velocity burst", Expression: "velocity_count > 5", Weight: 30, Indicator: "Transaction velocity burst"},
		{ID: "cash-out", Name: "Large withdrawal", Expression: `tx_type == "withdrawal" && amount > 50000.0`, Weight: 10},
	}
	s := newScorer(t, cfg)

	sig := signal("150000", ptr(true), ptr(11))
	sig.VelocityCount = ptr(9)

	got, err := s.Score(sig)
	require.NoError(t, err)
	assert.Equal(t, 75, got.RiskScore)
	assert.Equal(t, domain.RiskHigh, got.RiskLevel)
	assert.True(t, got.IsFraudulent)
	assert.Equal(t, []string{IndicatorHighAmount, IndicatorVPN, IndicatorRapidClicks, "Transaction velocity burst"}, got.Indicators)

	sig = signal("60000", nil, nil)
	sig.Type = domain.TxWithdrawal
	got, err = s.Score(sig)
	require.NoError(t, err)
	assert.Equal(t, 10, got.RiskScore)
	assert.Equal(t, []string{"Large withdrawal"}, got.Indicators)
}

func TestCustomRuleConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		rule domain.FraudRule
	}{
		{"Syntax", domain.FraudRule{ID: "bad", Expression: "this is not valid CEL !!!", Weight: 1}},
		{"NonBool", domain.FraudRule{ID: "num", Expression: "amount * 2.0", Weight: 1}},
		{"UnknownVariable", domain.FraudRule{ID: "unk", Expression: "balance > 1.0", Weight: 1}},
		{"MissingExpression", domain.FraudRule{ID: "empty", Weight: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultEngineConfig().Fraud
			cfg.CustomRules = []domain.FraudRule{tt.rule}
			_, err := NewScorer(cfg)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
		})
	}
}

func TestInconsistentTiers(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Fraud
	cfg.HighRiskScore = cfg.MediumRiskScore
	_, err := NewScorer(cfg)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
