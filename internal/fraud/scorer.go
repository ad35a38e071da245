// Package fraud scores transaction signals into a fraud risk assessment.
package fraud

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/validation"
	"github.com/shopspring/decimal"
)

// Built-in indicators, in evaluation order.
const (
	IndicatorHighAmount  = "High transaction amount"
	IndicatorVPN         = "VPN usage detected"
	IndicatorRapidClicks = "Unusual click patterns"
)

// Suggested actions.
const (
	ActionVerify  = "Require additional verification"
	ActionReview  = "Flag for manual review"
	ActionMonitor = "Monitor account activity"
)

// Scorer applies additive rules to a TransactionSignal.
// It is immutable after construction and safe for concurrent use.
type Scorer struct {
	cfg       domain.FraudConfig
	highValue decimal.Decimal
	custom    []compiledRule
}

type compiledRule struct {
	rule    domain.FraudRule
	program cel.Program
}

// NewScorer validates cfg and compiles its custom rules.
func NewScorer(cfg domain.FraudConfig) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scorer{
		cfg:       cfg,
		highValue: decimal.NewFromFloat(cfg.HighValueThreshold),
	}

	if len(cfg.CustomRules) == 0 {
		return s, nil
	}

	env, err := newEnv()
	if err != nil {
		return nil, domain.NewConfigurationError("fraud", "failed to create CEL environment: %v", err)
	}
	for _, r := range cfg.CustomRules {
		program, err := compile(env, r)
		if err != nil {
			return nil, domain.NewConfigurationError("fraud", "%v", err)
		}
		s.custom = append(s.custom, compiledRule{rule: r, program: program})
	}
	return s, nil
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("is_vpn", cel.BoolType),
		cel.Variable("rapid_clicks", cel.IntType),
		cel.Variable("velocity_count", cel.IntType),
		cel.Variable("ip_address", cel.StringType),
		cel.Variable("user_agent", cel.StringType),
	)
}

func compile(env *cel.Env, r domain.FraudRule) (cel.Program, error) {
	ast, issues := env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}
	return program, nil
}

// Validate checks signal without scoring it.
func (s *Scorer) Validate(signal domain.TransactionSignal) error {
	if err := validation.Struct(signal); err != nil {
		return err
	}
	if signal.Amount.IsNegative() {
		return domain.NewValidationError("amount", "cannot be negative")
	}
	return nil
}

// Score evaluates signal. Rules whose optional signal is absent do not apply.
func (s *Scorer) Score(signal domain.TransactionSignal) (*domain.FraudAssessment, error) {
	if err := s.Validate(signal); err != nil {
		return nil, err
	}

	score := 0
	indicators := make([]string, 0, 3+len(s.custom))

	if signal.Amount.GreaterThan(s.highValue) {
		score += s.cfg.HighValueWeight
		indicators = append(indicators, IndicatorHighAmount)
	}
	if d := signal.DeviceInfo; d != nil && d.IsVPN != nil && *d.IsVPN {
		score += s.cfg.VPNWeight
		indicators = append(indicators, IndicatorVPN)
	}
	if m := signal.BehaviorMetrics; m != nil && m.RapidClicks != nil && *m.RapidClicks > s.cfg.RapidClicksThreshold {
		score += s.cfg.RapidClicksWeight
		indicators = append(indicators, IndicatorRapidClicks)
	}

	if len(s.custom) > 0 {
		activation := activationFor(signal)
		for _, c := range s.custom {
			out, _, err := c.program.Eval(activation)
			if err != nil {
				// Runtime errors (e.g. overflow) leave the rule unmatched.
				continue
			}
			if matched, ok := out.(types.Bool); ok && bool(matched) {
				score += c.rule.Weight
				indicator := c.rule.Indicator
				if indicator == "" {
					indicator = c.rule.Name
				}
				if indicator == "" {
					indicator = c.rule.ID
				}
				indicators = append(indicators, indicator)
			}
		}
	}

	level := s.Level(score)
	return &domain.FraudAssessment{
		RiskScore:        score,
		RiskLevel:        level,
		IsFraudulent:     score > s.cfg.FraudulentScore,
		Indicators:       indicators,
		SuggestedActions: Actions(level),
	}, nil
}

// Level maps a score to its risk tier.
func (s *Scorer) Level(score int) domain.RiskLevel {
	switch {
	case score > s.cfg.HighRiskScore:
		return domain.RiskHigh
	case score > s.cfg.MediumRiskScore:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Actions returns the suggested actions for a risk tier.
func Actions(level domain.RiskLevel) []string {
	switch level {
	case domain.RiskHigh:
		return []string{ActionVerify, ActionReview}
	case domain.RiskMedium:
		return []string{ActionMonitor}
	default:
		return []string{}
	}
}

// activationFor binds signal fields to CEL variables. Absent optional
// signals bind to their zero value.
func activationFor(signal domain.TransactionSignal) map[string]any {
	activation := map[string]any{
		"amount":         signal.Amount.InexactFloat64(),
		"tx_type":        string(signal.Type),
		"platform":       "",
		"is_vpn":         false,
		"rapid_clicks":   int64(0),
		"velocity_count": int64(0),
		"ip_address":     "",
		"user_agent":     "",
	}
	if d := signal.DeviceInfo; d != nil {
		activation["platform"] = d.Platform
		if d.IsVPN != nil {
			activation["is_vpn"] = *d.IsVPN
		}
	}
	if m := signal.BehaviorMetrics; m != nil {
		if m.RapidClicks != nil {
			activation["rapid_clicks"] = int64(*m.RapidClicks)
		}
		activation["ip_address"] = m.IPAddress
		activation["user_agent"] = m.UserAgent
	}
	if signal.VelocityCount != nil {
		activation["velocity_count"] = int64(*signal.VelocityCount)
	}
	return activation
}
