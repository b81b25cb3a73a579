// File: internal/orchestrator/observe_test.go
package orchestrator

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   schemas.RiskTrend
	}{
		{"no history", nil, schemas.TrendUnknown},
		{"single score", []float64{0.5}, schemas.TrendUnknown},
		{"two rising", []float64{0.8, 0.5}, schemas.TrendIncreasing},
		{"two flat", []float64{0.52, 0.5}, schemas.TrendStable},
		{"six falling", []float64{0.2, 0.25, 0.3, 0.6, 0.65, 0.7}, schemas.TrendDecreasing},
		{"six rising", []float64{0.7, 0.7, 0.7, 0.4, 0.4, 0.4}, schemas.TrendIncreasing},
		{"within band", []float64{0.5, 0.5, 0.5, 0.45, 0.45, 0.45}, schemas.TrendStable},
		{"four scores", []float64{0.6, 0.6, 0.6, 0.3}, schemas.TrendIncreasing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Trend(tc.scores))
		})
	}
}

func TestVelocity(t *testing.T) {
	assert.Zero(t, Velocity(nil))
	assert.Zero(t, Velocity([]float64{0.4}))
	assert.InDelta(t, 0.3, Velocity([]float64{0.7, 0.5, 0.4}), 1e-9)
	assert.InDelta(t, -0.2, Velocity([]float64{0.2, 0.4}), 1e-9)
}

func ev(kind schemas.EventType, severity float64, daysAgo int) schemas.Event {
	return schemas.Event{
		IndividualID: "stu-1",
		Type:         kind,
		Severity:     severity,
		Timestamp:    fixedNow.Add(-time.Duration(daysAgo) * 24 * time.Hour),
	}
}

func TestDetectPatterns(t *testing.T) {
	events := []schemas.Event{
		ev(schemas.EventFeePayment, 0.5, 9),
		ev(schemas.EventAttendanceWarning, 0.4, 6),
		ev(schemas.EventScholarshipDelay, 0.7, 4),
		ev(schemas.EventHostelAccess, 0.3, 2),
	}

	got := DetectPatterns(events, nil)
	require.Len(t, got, 1)
	assert.Equal(t, PatternFinancialStress, got[0].Name)
	assert.Equal(t, 2, got[0].Count)
	assert.InDelta(t, 1.2, got[0].TotalSeverity, 1e-9)
	assert.Equal(t, 5, got[0].TimespanDays)

	withFlag := DetectPatterns(events, schemas.Context{ContextNoPeerContact: true})
	require.Len(t, withFlag, 2)
	assert.Equal(t, PatternSocialIsolation, withFlag[1].Name)
	assert.Zero(t, withFlag[1].Count)

	assert.Empty(t, DetectPatterns(nil, nil))
}

func TestDetectAnomalies(t *testing.T) {
	// Only the five most recent events count; the old spikes are ignored.
	events := []schemas.Event{
		ev(schemas.EventFeePayment, 0.9, 20),
		ev(schemas.EventFeePayment, 0.95, 19),
		ev(schemas.EventFeePayment, 0.2, 5),
		ev(schemas.EventFeePayment, 0.8, 4),
		ev(schemas.EventFeePayment, 0.3, 3),
		ev(schemas.EventFeePayment, 0.1, 2),
		ev(schemas.EventFeePayment, 0.1, 1),
	}
	assert.Empty(t, DetectAnomalies(events))

	events = append(events, ev(schemas.EventAccountHold, 0.75, 0))
	got := DetectAnomalies(events)
	require.Len(t, got, 1)
	assert.Equal(t, AnomalySeveritySpike, got[0].Name)
	assert.Equal(t, 2, got[0].Count)

	assert.Empty(t, DetectAnomalies(nil))
}

func TestGenerateHypotheses(t *testing.T) {
	obs := &schemas.Observation{
		Risk:       0.7,
		EventCount: 6,
		Trend:      schemas.TrendIncreasing,
		Patterns: []schemas.Pattern{
			{Name: PatternSocialIsolation},
			{Name: PatternAcademicPressure, Count: 2, TotalSeverity: 1.0},
			{Name: PatternFinancialStress, Count: 3, TotalSeverity: 2.1, TimespanDays: 8},
		},
	}

	got := GenerateHypotheses(obs, nil)
	causes := make([]string, len(got))
	for i, h := range got {
		causes[i] = h.Cause
	}
	if diff := cmp.Diff([]string{CauseFinancialStress, CauseAcademicOverload, CauseSocialIsolation}, causes); diff != "" {
		t.Errorf("hypothesis order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{
		"3 financial events", "Average severity: 0.70", "Spread over 8 days", "Risk trend: increasing",
	}, got[0].Evidence)
	assert.Equal(t, []schemas.ActionType{
		schemas.ActionFinancialAid, schemas.ActionScholarshipMatch, schemas.ActionFeeExtension,
	}, got[0].InterventionTypes)
	assert.Equal(t, []string{"No peer interaction detected", "Low engagement patterns"}, got[2].Evidence)

	excluded := GenerateHypotheses(obs, []string{CauseFinancialStress, CauseSocialIsolation})
	require.Len(t, excluded, 1)
	assert.Equal(t, CauseAcademicOverload, excluded[0].Cause)
}

func TestGenerateHypothesesFallback(t *testing.T) {
	obs := &schemas.Observation{Risk: 0.5, EventCount: 1}

	got := GenerateHypotheses(obs, nil)
	require.Len(t, got, 1)
	assert.Equal(t, CauseGeneralFriction, got[0].Cause)
	assert.Equal(t, 0.5, got[0].Confidence)
	assert.Equal(t, []schemas.ActionType{schemas.ActionCounselorChat}, got[0].InterventionTypes)

	assert.Empty(t, GenerateHypotheses(obs, []string{CauseGeneralFriction}))
}
