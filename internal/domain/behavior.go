package domain

// BehaviorEvent is one user interaction inside a session.
type BehaviorEvent struct {
	Type            string         `json:"type" validate:"required"`
	TimestampMillis int64          `json:"timestampMillis" validate:"gt=0"`
	Data            map[string]any `json:"data,omitempty"`
}

// BehaviorSession is the ordered event stream of one user session.
type BehaviorSession struct {
	UserID    string          `json:"userId" validate:"required"`
	SessionID string          `json:"sessionId" validate:"required"`
	Events    []BehaviorEvent `json:"events" validate:"dive"`
}

// AnomalyAssessment is the detector output for one session.
type AnomalyAssessment struct {
	IsAnomalous     bool     `json:"isAnomalous"`
	AnomalyScore    int      `json:"anomalyScore"`
	Patterns        []string `json:"patterns"`
	Recommendations []string `json:"recommendations"`
}

// Anomaly pattern names.
const (
	PatternHighFrequency = "high frequency"
	PatternRepetitive    = "repetitive behavior"
	PatternBotTiming     = "bot-like timing"
)
