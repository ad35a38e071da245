package domain

// EngineConfig groups the configuration of the four decision components.
type EngineConfig struct {
	Amortization AmortizationConfig `json:"amortization" mapstructure:"amortization"`
	Fraud        FraudConfig        `json:"fraud" mapstructure:"fraud"`
	Behavior     BehaviorConfig     `json:"behavior" mapstructure:"behavior"`
	Collection   CollectionConfig   `json:"collection" mapstructure:"collection"`
}

// AmortizationConfig holds the quoting bounds of the amortization calculator.
type AmortizationConfig struct {
	MinPrincipal         float64 `json:"minPrincipal" mapstructure:"minPrincipal"`
	MaxPrincipal         float64 `json:"maxPrincipal" mapstructure:"maxPrincipal"`
	MinTenureMonths      int     `json:"minTenureMonths" mapstructure:"minTenureMonths"`
	MaxTenureMonths      int     `json:"maxTenureMonths" mapstructure:"maxTenureMonths"`
	MaxAnnualRatePercent float64 `json:"maxAnnualRatePercent" mapstructure:"maxAnnualRatePercent"`

	// ScheduleMonths is the default schedule horizon. 0 returns the full tenure.
	ScheduleMonths int `json:"scheduleMonths" mapstructure:"scheduleMonths"`

	// RatePrecision is the number of decimals kept for the effective rate.
	RatePrecision int32 `json:"ratePrecision" mapstructure:"ratePrecision"`
}

// FraudConfig holds the weights and cutoffs of the fraud scorer.
type FraudConfig struct {
	HighValueThreshold   float64 `json:"highValueThreshold" mapstructure:"highValueThreshold"`
	HighValueWeight      int     `json:"highValueWeight" mapstructure:"highValueWeight"`
	VPNWeight            int     `json:"vpnWeight" mapstructure:"vpnWeight"`
	RapidClicksThreshold int     `json:"rapidClicksThreshold" mapstructure:"rapidClicksThreshold"`
	RapidClicksWeight    int     `json:"rapidClicksWeight" mapstructure:"rapidClicksWeight"`

	// Tier cutoffs: score > HighRiskScore is high, > MediumRiskScore is medium.
	MediumRiskScore int `json:"mediumRiskScore" mapstructure:"mediumRiskScore"`
	HighRiskScore   int `json:"highRiskScore" mapstructure:"highRiskScore"`

	// FraudulentScore is independent of the tier cutoffs.
	FraudulentScore int `json:"fraudulentScore" mapstructure:"fraudulentScore"`

	CustomRules []FraudRule `json:"customRules,omitempty" mapstructure:"customRules"`
}

// FraudRule is a CEL boolean expression that adds Weight when it matches.
type FraudRule struct {
	ID         string `json:"id" mapstructure:"id"`
	Name       string `json:"name" mapstructure:"name"`
	Expression string `json:"expression" mapstructure:"expression"`
	Weight     int    `json:"weight" mapstructure:"weight"`
	Indicator  string `json:"indicator" mapstructure:"indicator"`
}

// BehaviorConfig holds the thresholds of the anomaly detector.
type BehaviorConfig struct {
	MaxEventsPerMinute float64 `json:"maxEventsPerMinute" mapstructure:"maxEventsPerMinute"`
	HighFrequencyScore int     `json:"highFrequencyScore" mapstructure:"highFrequencyScore"`
	MinTypeDiversity   float64 `json:"minTypeDiversity" mapstructure:"minTypeDiversity"`
	RepetitiveScore    int     `json:"repetitiveScore" mapstructure:"repetitiveScore"`
	MinMeanIntervalMs  float64 `json:"minMeanIntervalMs" mapstructure:"minMeanIntervalMs"`
	BotTimingScore     int     `json:"botTimingScore" mapstructure:"botTimingScore"`

	// MinElapsedMs floors the session duration used for the event rate.
	MinElapsedMs int64 `json:"minElapsedMs" mapstructure:"minElapsedMs"`

	AnomalyThreshold        int `json:"anomalyThreshold" mapstructure:"anomalyThreshold"`
	RecommendationThreshold int `json:"recommendationThreshold" mapstructure:"recommendationThreshold"`

	// MaxScore caps the anomaly score when positive.
	MaxScore  int `json:"maxScore" mapstructure:"maxScore"`
	MaxEvents int `json:"maxEvents" mapstructure:"maxEvents"`
}

// CollectionConfig holds the thresholds of the collection planner.
type CollectionConfig struct {
	LargeAmount float64 `json:"largeAmount" mapstructure:"largeAmount"`
	SevereDays  int     `json:"severeDays" mapstructure:"severeDays"`
	LowAmount   float64 `json:"lowAmount" mapstructure:"lowAmount"`
	LowDays     int     `json:"lowDays" mapstructure:"lowDays"`

	// Attempts up to PersonalContactMaxAttempts get personal contact, above that escalation.
	PersonalContactMaxAttempts int `json:"personalContactMaxAttempts" mapstructure:"personalContactMaxAttempts"`

	// Channel buckets are half-open: days < SMSMaxDays uses SMS, and so on.
	SMSMaxDays        int `json:"smsMaxDays" mapstructure:"smsMaxDays"`
	PhoneMaxDays      int `json:"phoneMaxDays" mapstructure:"phoneMaxDays"`
	FieldVisitMaxDays int `json:"fieldVisitMaxDays" mapstructure:"fieldVisitMaxDays"`

	SalariedContactWindow string `json:"salariedContactWindow" mapstructure:"salariedContactWindow"`
	BusinessContactWindow string `json:"businessContactWindow" mapstructure:"businessContactWindow"`
	DefaultContactWindow  string `json:"defaultContactWindow" mapstructure:"defaultContactWindow"`

	RestructureExtensionMonths int     `json:"restructureExtensionMonths" mapstructure:"restructureExtensionMonths"`
	RestructureLikelihood      float64 `json:"restructureLikelihood" mapstructure:"restructureLikelihood"`
	PartialPaymentFraction     float64 `json:"partialPaymentFraction" mapstructure:"partialPaymentFraction"`
	PartialPaymentMonths       int     `json:"partialPaymentMonths" mapstructure:"partialPaymentMonths"`
	PartialPaymentLikelihood   float64 `json:"partialPaymentLikelihood" mapstructure:"partialPaymentLikelihood"`
	SettlementMinDays          int     `json:"settlementMinDays" mapstructure:"settlementMinDays"`
	SettlementFraction         float64 `json:"settlementFraction" mapstructure:"settlementFraction"`
	SettlementLikelihood       float64 `json:"settlementLikelihood" mapstructure:"settlementLikelihood"`

	Recovery RecoveryConfig `json:"recovery" mapstructure:"recovery"`
}

// RecoveryConfig holds the additive recovery probability model.
type RecoveryConfig struct {
	BaseProbability float64 `json:"baseProbability" mapstructure:"baseProbability"`
	EarlyDays       int     `json:"earlyDays" mapstructure:"earlyDays"`
	EarlyBonus      float64 `json:"earlyBonus" mapstructure:"earlyBonus"`
	MidDays         int     `json:"midDays" mapstructure:"midDays"`
	MidBonus        float64 `json:"midBonus" mapstructure:"midBonus"`
	LateDays        int     `json:"lateDays" mapstructure:"lateDays"`
	LatePenalty     float64 `json:"latePenalty" mapstructure:"latePenalty"`
	AttemptsLimit   int     `json:"attemptsLimit" mapstructure:"attemptsLimit"`
	AttemptsPenalty float64 `json:"attemptsPenalty" mapstructure:"attemptsPenalty"`
	MinProbability  float64 `json:"minProbability" mapstructure:"minProbability"`
	MaxProbability  float64 `json:"maxProbability" mapstructure:"maxProbability"`
}

// DefaultEngineConfig returns the production defaults of every component.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Amortization: AmortizationConfig{
			MinPrincipal:         10000,
			MaxPrincipal:         5000000,
			MinTenureMonths:      3,
			MaxTenureMonths:      60,
			MaxAnnualRatePercent: 100,
			ScheduleMonths:       12,
			RatePrecision:        2,
		},
		Fraud: FraudConfig{
			HighValueThreshold:   100000,
			HighValueWeight:      20,
			VPNWeight:            15,
			RapidClicksThreshold: 10,
			RapidClicksWeight:    10,
			MediumRiskScore:      30,
			HighRiskScore:        60,
			FraudulentScore:      70,
		},
		Behavior: BehaviorConfig{
			MaxEventsPerMinute:      60,
			HighFrequencyScore:      30,
			MinTypeDiversity:        0.3,
			RepetitiveScore:         20,
			MinMeanIntervalMs:       100,
			BotTimingScore:          40,
			MinElapsedMs:            1000,
			AnomalyThreshold:        60,
			RecommendationThreshold: 50,
			MaxEvents:               10000,
		},
		Collection: CollectionConfig{
			LargeAmount:                100000,
			SevereDays:                 90,
			LowAmount:                  25000,
			LowDays:                    30,
			PersonalContactMaxAttempts: 2,
			SMSMaxDays:                 15,
			PhoneMaxDays:               30,
			FieldVisitMaxDays:          60,
			SalariedContactWindow:      "6:00 PM - 8:00 PM",
			BusinessContactWindow:      "10:00 AM - 12:00 PM",
			DefaultContactWindow:       "2:00 PM - 4:00 PM",
			RestructureExtensionMonths: 6,
			RestructureLikelihood:      0.7,
			PartialPaymentFraction:     0.3,
			PartialPaymentMonths:       3,
			PartialPaymentLikelihood:   0.6,
			SettlementMinDays:          90,
			SettlementFraction:         0.7,
			SettlementLikelihood:       0.5,
			Recovery: RecoveryConfig{
				BaseProbability: 0.5,
				EarlyDays:       30,
				EarlyBonus:      0.3,
				MidDays:         60,
				MidBonus:        0.1,
				LateDays:        90,
				LatePenalty:     0.2,
				AttemptsLimit:   3,
				AttemptsPenalty: 0.1,
				MinProbability:  0.1,
				MaxProbability:  0.95,
			},
		},
	}
}

// Validate checks every component configuration.
func (c EngineConfig) Validate() error {
	if err := c.Amortization.Validate(); err != nil {
		return err
	}
	if err := c.Fraud.Validate(); err != nil {
		return err
	}
	if err := c.Behavior.Validate(); err != nil {
		return err
	}
	return c.Collection.Validate()
}

// Validate checks the amortization bounds.
func (c AmortizationConfig) Validate() error {
	const component = "amortization"
	switch {
	case c.MinPrincipal <= 0:
		return NewConfigurationError(component, "minPrincipal must be positive")
	case c.MaxPrincipal <= c.MinPrincipal:
		return NewConfigurationError(component, "maxPrincipal (%v) must exceed minPrincipal (%v)", c.MaxPrincipal, c.MinPrincipal)
	case c.MinTenureMonths <= 0:
		return NewConfigurationError(component, "minTenureMonths must be positive")
	case c.MaxTenureMonths < c.MinTenureMonths:
		return NewConfigurationError(component, "maxTenureMonths (%d) is below minTenureMonths (%d)", c.MaxTenureMonths, c.MinTenureMonths)
	case c.MaxAnnualRatePercent <= 0:
		return NewConfigurationError(component, "maxAnnualRatePercent must be positive")
	case c.ScheduleMonths < 0:
		return NewConfigurationError(component, "scheduleMonths cannot be negative")
	case c.RatePrecision < 0:
		return NewConfigurationError(component, "ratePrecision cannot be negative")
	}
	return nil
}

// Validate checks the fraud weights and cutoffs.
func (c FraudConfig) Validate() error {
	const component = "fraud"
	switch {
	case c.HighValueThreshold <= 0:
		return NewConfigurationError(component, "highValueThreshold must be positive")
	case c.HighValueWeight < 0 || c.VPNWeight < 0 || c.RapidClicksWeight < 0:
		return NewConfigurationError(component, "rule weights cannot be negative")
	case c.RapidClicksThreshold < 0:
		return NewConfigurationError(component, "rapidClicksThreshold cannot be negative")
	case c.MediumRiskScore < 0:
		return NewConfigurationError(component, "mediumRiskScore cannot be negative")
	case c.HighRiskScore <= c.MediumRiskScore:
		return NewConfigurationError(component, "highRiskScore (%d) must exceed mediumRiskScore (%d)", c.HighRiskScore, c.MediumRiskScore)
	case c.FraudulentScore <= 0:
		return NewConfigurationError(component, "fraudulentScore must be positive")
	}

	seen := make(map[string]bool, len(c.CustomRules))
	for i, r := range c.CustomRules {
		if r.ID == "" || r.Expression == "" {
			return NewConfigurationError(component, "customRules[%d] needs an id and an expression", i)
		}
		if seen[r.ID] {
			return NewConfigurationError(component, "duplicate custom rule id %q", r.ID)
		}
		if r.Weight < 0 {
			return NewConfigurationError(component, "custom rule %q has a negative weight", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Validate checks the anomaly detector thresholds.
func (c BehaviorConfig) Validate() error {
	const component = "behavior"
	switch {
	case c.MaxEventsPerMinute <= 0:
		return NewConfigurationError(component, "maxEventsPerMinute must be positive")
	case c.MinTypeDiversity < 0 || c.MinTypeDiversity > 1:
		return NewConfigurationError(component, "minTypeDiversity must be within [0,1]")
	case c.MinMeanIntervalMs < 0:
		return NewConfigurationError(component, "minMeanIntervalMs cannot be negative")
	case c.HighFrequencyScore < 0 || c.RepetitiveScore < 0 || c.BotTimingScore < 0:
		return NewConfigurationError(component, "pattern scores cannot be negative")
	case c.MinElapsedMs <= 0:
		return NewConfigurationError(component, "minElapsedMs must be positive")
	case c.AnomalyThreshold < 0 || c.RecommendationThreshold < 0:
		return NewConfigurationError(component, "thresholds cannot be negative")
	case c.MaxScore < 0:
		return NewConfigurationError(component, "maxScore cannot be negative")
	case c.MaxEvents <= 0:
		return NewConfigurationError(component, "maxEvents must be positive")
	}
	return nil
}

// Validate checks the collection planner thresholds.
func (c CollectionConfig) Validate() error {
	const component = "collection"
	switch {
	case c.LowAmount < 0 || c.LowDays < 0:
		return NewConfigurationError(component, "low thresholds cannot be negative")
	case c.LargeAmount <= c.LowAmount:
		return NewConfigurationError(component, "largeAmount (%v) must exceed lowAmount (%v)", c.LargeAmount, c.LowAmount)
	case c.SevereDays <= c.LowDays:
		return NewConfigurationError(component, "severeDays (%d) must exceed lowDays (%d)", c.SevereDays, c.LowDays)
	case c.PersonalContactMaxAttempts < 1:
		return NewConfigurationError(component, "personalContactMaxAttempts must be at least 1")
	case !(0 < c.SMSMaxDays && c.SMSMaxDays < c.PhoneMaxDays && c.PhoneMaxDays < c.FieldVisitMaxDays):
		return NewConfigurationError(component, "channel buckets must be strictly increasing")
	case c.DefaultContactWindow == "":
		return NewConfigurationError(component, "defaultContactWindow is required")
	case c.PartialPaymentFraction <= 0 || c.PartialPaymentFraction >= 1:
		return NewConfigurationError(component, "partialPaymentFraction must be within (0,1)")
	case c.SettlementFraction <= 0 || c.SettlementFraction >= 1:
		return NewConfigurationError(component, "settlementFraction must be within (0,1)")
	case c.PartialPaymentMonths <= 0 || c.RestructureExtensionMonths <= 0:
		return NewConfigurationError(component, "offer periods must be positive")
	}

	for name, l := range map[string]float64{
		"restructureLikelihood":    c.RestructureLikelihood,
		"partialPaymentLikelihood": c.PartialPaymentLikelihood,
		"settlementLikelihood":     c.SettlementLikelihood,
	} {
		if l < 0 || l > 1 {
			return NewConfigurationError(component, "%s must be within [0,1]", name)
		}
	}

	r := c.Recovery
	switch {
	case r.MinProbability < 0 || r.MaxProbability > 1 || r.MinProbability >= r.MaxProbability:
		return NewConfigurationError(component, "recovery bounds must satisfy 0 <= min < max <= 1")
	case r.BaseProbability < 0 || r.BaseProbability > 1:
		return NewConfigurationError(component, "recovery baseProbability must be within [0,1]")
	case !(r.EarlyDays < r.MidDays && r.MidDays <= r.LateDays):
		return NewConfigurationError(component, "recovery day buckets must be increasing")
	case r.AttemptsLimit < 0:
		return NewConfigurationError(component, "recovery attemptsLimit cannot be negative")
	}
	return nil
}
