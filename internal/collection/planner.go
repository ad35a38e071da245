// Package collection plans collection strategies for overdue loans.
package collection

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/validation"
	"github.com/shopspring/decimal"
)

// Recommended actions per contact tier.
var (
	SoftOutreach    = []string{"Send SMS reminder", "Automated call"}
	PersonalContact = []string{"Personal phone call", "Email with payment link"}
	Escalation      = []string{"Schedule field visit", "Prepare legal notice"}
)

// Planner derives a CollectionStrategy from case facts.
// It is immutable after construction and safe for concurrent use.
type Planner struct {
	cfg         domain.CollectionConfig
	largeAmount decimal.Decimal
	lowAmount   decimal.Decimal
}

// NewPlanner creates a planner from cfg.
func NewPlanner(cfg domain.CollectionConfig) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Planner{
		cfg:         cfg,
		largeAmount: decimal.NewFromFloat(cfg.LargeAmount),
		lowAmount:   decimal.NewFromFloat(cfg.LowAmount),
	}, nil
}

// Plan computes the collection strategy for c.
func (p *Planner) Plan(c domain.CollectionCase) (*domain.CollectionStrategy, error) {
	if err := validation.Struct(c); err != nil {
		return nil, err
	}
	amount := *c.OutstandingAmount
	if amount.IsNegative() {
		return nil, domain.NewValidationError("outstandingAmount", "cannot be negative")
	}
	days, attempts := *c.DaysOverdue, *c.PreviousAttempts

	return &domain.CollectionStrategy{
		Priority:             p.Priority(amount, days),
		RecommendedActions:   p.Actions(attempts),
		BestTimeToContact:    p.ContactWindow(c.CustomerProfile.EmploymentType),
		CommunicationChannel: p.Channel(days),
		NegotiationOptions:   p.Offers(amount, days),
		EstimatedRecovery:    p.EstimatedRecovery(amount, days, attempts),
	}, nil
}

// Priority checks the high predicate first, then the low one.
func (p *Planner) Priority(amount decimal.Decimal, days int) domain.Priority {
	switch {
	case amount.GreaterThan(p.largeAmount) || days > p.cfg.SevereDays:
		return domain.PriorityHigh
	case amount.LessThan(p.lowAmount) && days < p.cfg.LowDays:
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}

// Actions returns the contact actions for the number of previous attempts.
func (p *Planner) Actions(attempts int) []string {
	var actions []string
	switch {
	case attempts == 0:
		actions = SoftOutreach
	case attempts <= p.cfg.PersonalContactMaxAttempts:
		actions = PersonalContact
	default:
		actions = Escalation
	}
	return append([]string(nil), actions...)
}

// ContactWindow returns the best time to reach a borrower.
func (p *Planner) ContactWindow(employmentType string) string {
	switch strings.ToLower(strings.TrimSpace(employmentType)) {
	case domain.EmploymentSalaried:
		if p.cfg.SalariedContactWindow != "" {
			return p.cfg.SalariedContactWindow
		}
	case domain.EmploymentBusiness:
		if p.cfg.BusinessContactWindow != "" {
			return p.cfg.BusinessContactWindow
		}
	}
	return p.cfg.DefaultContactWindow
}

// Channel escalates with days overdue. Boundary values belong to the higher bucket.
func (p *Planner) Channel(days int) domain.Channel {
	switch {
	case days < p.cfg.SMSMaxDays:
		return domain.ChannelSMS
	case days < p.cfg.PhoneMaxDays:
		return domain.ChannelPhoneCall
	case days < p.cfg.FieldVisitMaxDays:
		return domain.ChannelFieldVisit
	default:
		return domain.ChannelLegalNotice
	}
}

// Offers lists the negotiation options. Settlement is only offered to
// severely overdue cases.
func (p *Planner) Offers(amount decimal.Decimal, days int) []domain.NegotiationOption {
	partialNow := amount.Mul(decimal.NewFromFloat(p.cfg.PartialPaymentFraction)).Round(2)

	offers := []domain.NegotiationOption{
		{
			Type:       domain.OfferRestructuring,
			Terms:      fmt.Sprintf("Extend tenure by %d months with reduced EMI", p.cfg.RestructureExtensionMonths),
			Likelihood: p.cfg.RestructureLikelihood,
		},
		{
			Type: domain.OfferPartialPayment,
			Terms: fmt.Sprintf("Pay %s%% (%s) now, remainder over %d months",
				percent(p.cfg.PartialPaymentFraction), partialNow.StringFixed(2), p.cfg.PartialPaymentMonths),
			Likelihood: p.cfg.PartialPaymentLikelihood,
		},
	}

	if days > p.cfg.SettlementMinDays {
		settle := amount.Mul(decimal.NewFromFloat(p.cfg.SettlementFraction)).Round(2)
		offers = append(offers, domain.NegotiationOption{
			Type: domain.OfferSettlement,
			Terms: fmt.Sprintf("One-time settlement at %s%% (%s) of outstanding",
				percent(p.cfg.SettlementFraction), settle.StringFixed(2)),
			Likelihood: p.cfg.SettlementLikelihood,
		})
	}
	return offers
}

// RecoveryProbability is the additive recovery model clamped to the configured bounds.
func (p *Planner) RecoveryProbability(days, attempts int) decimal.Decimal {
	r := p.cfg.Recovery
	prob := decimal.NewFromFloat(r.BaseProbability)

	switch {
	case days < r.EarlyDays:
		prob = prob.Add(decimal.NewFromFloat(r.EarlyBonus))
	case days < r.MidDays:
		prob = prob.Add(decimal.NewFromFloat(r.MidBonus))
	case days > r.LateDays:
		prob = prob.Sub(decimal.NewFromFloat(r.LatePenalty))
	}
	if attempts > r.AttemptsLimit {
		prob = prob.Sub(decimal.NewFromFloat(r.AttemptsPenalty))
	}

	lo, hi := decimal.NewFromFloat(r.MinProbability), decimal.NewFromFloat(r.MaxProbability)
	return decimal.Max(lo, decimal.Min(hi, prob))
}

// EstimatedRecovery is the expected recovered amount, rounded to cents
// without leaving [MinProbability, MaxProbability] of amount. Amounts too
// small for a cent inside the bounds keep full precision.
func (p *Planner) EstimatedRecovery(amount decimal.Decimal, days, attempts int) decimal.Decimal {
	exact := amount.Mul(p.RecoveryProbability(days, attempts))
	lo := amount.Mul(decimal.NewFromFloat(p.cfg.Recovery.MinProbability))
	hi := amount.Mul(decimal.NewFromFloat(p.cfg.Recovery.MaxProbability))

	got := exact.Round(2)
	if got.LessThan(lo) {
		got = lo.RoundCeil(2)
	}
	if got.GreaterThan(hi) {
		got = hi.RoundFloor(2)
	}
	if got.LessThan(lo) || got.GreaterThan(hi) {
		return exact
	}
	return got
}

func percent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).String()
}
