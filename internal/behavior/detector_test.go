package behavior

import (
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(types []string, start, step int64) domain.BehaviorSession {
	events := make([]domain.BehaviorEvent, len(types))
	for i, typ := range types {
		events[i] = domain.BehaviorEvent{Type: typ, TimestampMillis: start + int64(i)*step}
	}
	return domain.BehaviorSession{UserID: "user-1", SessionID: "sess-1", Events: events}
}

func repeat(typ string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = typ
	}
	return out
}

func newDetector(t *testing.T, cfg domain.BehaviorConfig) *Detector {
	t.Helper()
	d, err := NewDetector(cfg)
	require.NoError(t, err)
	return d
}

func TestDetectPatterns(t *testing.T) {
	d := newDetector(t, domain.DefaultEngineConfig().Behavior)

	tests := []struct {
		name      string
		session   domain.BehaviorSession
		score     int
		patterns  []string
		anomalous bool
		recommend bool
	}{
		{
			name:     "Human",
			session:  session([]string{"view", "scroll", "click", "input", "submit"}, 1_700_000_000_000, 2000),
			score:    0,
			patterns: []string{},
		},
		{
			name:      "Bot",
			session:   session(repeat("click", 10), 1_700_000_000_000, 50),
			score:     90,
			patterns:  []string{domain.PatternHighFrequency, domain.PatternRepetitive, domain.PatternBotTiming},
			anomalous: true,
			recommend: true,
		},
		{
			name:     "FastButNotBotLike",
			session:  session(repeat("click", 20), 1_700_000_000_000, 200),
			score:    50,
			patterns: []string{domain.PatternHighFrequency, domain.PatternRepetitive},
		},
		{
			name:     "Empty",
			session:  domain.BehaviorSession{UserID: "user-1", SessionID: "sess-1"},
			score:    0,
			patterns: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Detect(tt.session)
			require.NoError(t, err)
			assert.Equal(t, tt.score, got.AnomalyScore)
			assert.Equal(t, tt.patterns, got.Patterns)
			assert.Equal(t, tt.anomalous, got.IsAnomalous)
			assert.Equal(t, tt.recommend, len(got.Recommendations) > 0)
		})
	}
}

func TestSingleEventSkipsIntervalChecks(t *testing.T) {
	d := newDetector(t, domain.DefaultEngineConfig().Behavior)

	got, err := d.Detect(session([]string{"click"}, 1_700_000_000_000, 0))
	require.NoError(t, err)

	assert.NotContains(t, got.Patterns, domain.PatternBotTiming)
	assert.NotContains(t, got.Patterns, domain.PatternHighFrequency)
	assert.Zero(t, got.AnomalyScore)
}

func TestSimultaneousEvents(t *testing.T) {
	d := newDetector(t, domain.DefaultEngineConfig().Behavior)

	got, err := d.Detect(session([]string{"a", "b"}, 1_700_000_000_000, 0))
	require.NoError(t, err)

	st := d.Stats(session([]string{"a", "b"}, 1_700_000_000_000, 0))
	assert.Equal(t, 120.0, st.EventsPerMinute)
	assert.Contains(t, got.Patterns, domain.PatternBotTiming)
}

// Recommendations follow their own threshold, below the anomaly cutoff.
func TestRecommendationThresholdIsIndependent(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Behavior
	cfg.MaxEventsPerMinute = 100000
	d := newDetector(t, cfg)

	got, err := d.Detect(session(repeat("tap", 10), 1_700_000_000_000, 10))
	require.NoError(t, err)

	assert.Equal(t, 60, got.AnomalyScore)
	assert.False(t, got.IsAnomalous)
	assert.Equal(t, []string{RecommendMonitoring, RecommendCaptcha}, got.Recommendations)
}

func TestMaxScoreCap(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Behavior
	cfg.MaxScore = 70
	d := newDetector(t, cfg)

	got, err := d.Detect(session(repeat("click", 10), 1_700_000_000_000, 50))
	require.NoError(t, err)
	assert.Equal(t, 70, got.AnomalyScore)
	assert.True(t, got.IsAnomalous)
}

func TestDetectValidation(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Behavior
	cfg.MaxEvents = 5
	d := newDetector(t, cfg)

	tests := []struct {
		name    string
		session domain.BehaviorSession
		field   string
	}{
		{"MissingSession", domain.BehaviorSession{UserID: "u"}, "sessionId"},
		{"MissingType", domain.BehaviorSession{UserID: "u", SessionID: "s", Events: []domain.BehaviorEvent{{TimestampMillis: 1}}}, "events[0].type"},
		{"ZeroTimestamp", domain.BehaviorSession{UserID: "u", SessionID: "s", Events: []domain.BehaviorEvent{{Type: "x"}}}, "events[0].timestampMillis"},
		{"OutOfOrder", session([]string{"a", "b", "c"}, 1000, -10), "events[1].timestampMillis"},
		{"TooMany", session(repeat("x", 6), 1000, 10), "events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Detect(tt.session)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDetectorConfiguration(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Behavior
	cfg.MinElapsedMs = 0
	_, err := NewDetector(cfg)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
