// Package behavior detects anomalous interaction patterns in user sessions.
package behavior

import (
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/validation"
)

// Recommendations emitted for suspicious sessions.
const (
	RecommendCaptcha    = "Require CAPTCHA verification"
	RecommendMonitoring = "Increase session monitoring"
	RecommendRestrict   = "Temporarily restrict high-risk actions"
)

// Detector scores a session's event stream.
// It is immutable after construction and safe for concurrent use.
type Detector struct {
	cfg domain.BehaviorConfig
}

// NewDetector creates a detector from cfg.
func NewDetector(cfg domain.BehaviorConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Stats summarizes a session's event stream.
type Stats struct {
	Events          int
	ElapsedMs       int64
	EventsPerMinute float64
	TypeDiversity   float64
	MeanIntervalMs  float64
}

// Detect analyzes session. Sessions with fewer than two events skip the
// interval checks.
func (d *Detector) Detect(session domain.BehaviorSession) (*domain.AnomalyAssessment, error) {
	if err := d.Validate(session); err != nil {
		return nil, err
	}

	st := d.stats(session.Events)
	score := 0
	patterns := make([]string, 0, 3)

	if st.Events >= 2 && st.EventsPerMinute > d.cfg.MaxEventsPerMinute {
		score += d.cfg.HighFrequencyScore
		patterns = append(patterns, domain.PatternHighFrequency)
	}
	if st.Events > 0 && st.TypeDiversity < d.cfg.MinTypeDiversity {
		score += d.cfg.RepetitiveScore
		patterns = append(patterns, domain.PatternRepetitive)
	}
	if st.Events >= 2 && st.MeanIntervalMs < d.cfg.MinMeanIntervalMs {
		score += d.cfg.BotTimingScore
		patterns = append(patterns, domain.PatternBotTiming)
	}

	if d.cfg.MaxScore > 0 && score > d.cfg.MaxScore {
		score = d.cfg.MaxScore
	}

	recommendations := []string{}
	if score > d.cfg.RecommendationThreshold {
		recommendations = recommend(patterns)
	}

	return &domain.AnomalyAssessment{
		IsAnomalous:     score > d.cfg.AnomalyThreshold,
		AnomalyScore:    score,
		Patterns:        patterns,
		Recommendations: recommendations,
	}, nil
}

// Validate checks the session shape and event ordering without scoring it.
func (d *Detector) Validate(session domain.BehaviorSession) error {
	if err := validation.Struct(session); err != nil {
		return err
	}
	if len(session.Events) > d.cfg.MaxEvents {
		return domain.NewValidationError("events", "exceeds maximum of %d events", d.cfg.MaxEvents)
	}
	for i := 1; i < len(session.Events); i++ {
		if session.Events[i].TimestampMillis < session.Events[i-1].TimestampMillis {
			return domain.NewValidationError(fieldName(i), "must not precede the previous event")
		}
	}
	return nil
}

// stats computes the session statistics the checks read. The event rate
// uses the elapsed time floored at MinElapsedMs; the mean interval does not.
func (d *Detector) stats(events []domain.BehaviorEvent) Stats {
	st := Stats{Events: len(events)}
	if st.Events == 0 {
		return st
	}

	types := make(map[string]struct{}, st.Events)
	for _, e := range events {
		types[e.Type] = struct{}{}
	}
	st.TypeDiversity = float64(len(types)) / float64(st.Events)

	if st.Events < 2 {
		return st
	}

	st.ElapsedMs = events[st.Events-1].TimestampMillis - events[0].TimestampMillis
	st.MeanIntervalMs = float64(st.ElapsedMs) / float64(st.Events-1)

	rateWindow := max(st.ElapsedMs, d.cfg.MinElapsedMs)
	st.EventsPerMinute = float64(st.Events) / (float64(rateWindow) / 60000)
	return st
}

// Stats exposes the statistics Detect is computed from.
func (d *Detector) Stats(session domain.BehaviorSession) Stats {
	return d.stats(session.Events)
}

func recommend(patterns []string) []string {
	out := []string{RecommendMonitoring}
	for _, p := range patterns {
		switch p {
		case domain.PatternBotTiming:
			out = append(out, RecommendCaptcha)
		case domain.PatternHighFrequency:
			out = append(out, RecommendRestrict)
		}
	}
	return out
}

func fieldName(i int) string {
	return "events[" + strconv.Itoa(i) + "].timestampMillis"
}
