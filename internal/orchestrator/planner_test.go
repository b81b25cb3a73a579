// File: internal/orchestrator/planner_test.go
package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
)

func TestPriority(t *testing.T) {
	tests := []struct {
		risk  float64
		trend schemas.RiskTrend
		want  int
	}{
		{0.85, schemas.TrendStable, 5},
		{0.7, schemas.TrendIncreasing, 4},
		{0.7, schemas.TrendDecreasing, 3},
		{0.5, schemas.TrendIncreasing, 3},
		{0.5, schemas.TrendStable, 2},
		{0.2, schemas.TrendIncreasing, 2},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Priority(tc.risk, tc.trend), "risk %.2f trend %s", tc.risk, tc.trend)
	}
}

func TestBuildPlanTemplatesInCanonicalOrder(t *testing.T) {
	h := newHarness(t, nil)
	obs := &schemas.Observation{
		IndividualID: "stu-1",
		Risk:         0.5,
		Trend:        schemas.TrendIncreasing,
		EventsByType: map[schemas.EventType]int{schemas.EventAttendanceWarning: 2},
	}
	sess := &schemas.AgentSession{
		ID:           "session_1",
		IndividualID: "stu-1",
		TargetRisk:   0.42,
		Hypotheses: []schemas.Hypothesis{
			{Cause: CauseAcademicOverload, Confidence: 0.7, InterventionTypes: []schemas.ActionType{schemas.ActionAcademicSupport, schemas.ActionPeerSupport}},
			{Cause: CauseSocialIsolation, Confidence: 0.6},
		},
	}

	plan, actions := h.orch.buildPlan(sess, obs, nil, fixedNow)
	assert.Equal(t, 3, plan.Priority)
	assert.Equal(t, []string{CauseAcademicOverload, CauseSocialIsolation}, plan.IdentifiedCauses)
	assert.Equal(t, CauseAcademicOverload, plan.Reasoning.PrimaryCause)

	require.Len(t, actions, 3)
	assert.Equal(t, schemas.ActionPeerSupport, actions[0].Type)
	assert.Equal(t, delegates.PeerMatch, actions[0].DelegatedTo)
	assert.Equal(t, schemas.ActionAcademicSupport, actions[1].Type)
	assert.Equal(t, "attendance", actions[1].Parameters["focus"])
	assert.Equal(t, fixedNow.Add(2*time.Hour), actions[1].ScheduledAt)
	assert.Equal(t, schemas.ActionEscalation, actions[2].Type)
	assert.Equal(t, []string{actions[0].ID}, actions[2].DependsOn)
}

func TestBuildPlanEscalationOnlyWhenCausesExhausted(t *testing.T) {
	h := newHarness(t, nil)
	obs := &schemas.Observation{IndividualID: "stu-1", Risk: 0.9}
	sess := &schemas.AgentSession{ID: "session_1", IndividualID: "stu-1"}
	excluded := []string{CauseFinancialStress, CauseGeneralFriction}

	plan, actions := h.orch.buildPlan(sess, obs, excluded, fixedNow)
	assert.Equal(t, 5, plan.Priority)
	assert.Empty(t, plan.Reasoning.PrimaryCause)
	assert.Equal(t, excluded, plan.ExcludedCauses)

	require.Len(t, actions, 1)
	esc := actions[0]
	assert.Equal(t, schemas.ActionEscalation, esc.Type)
	assert.Equal(t, delegates.Escalation, esc.DelegatedTo)
	assert.Empty(t, esc.DependsOn)
	assert.Equal(t, fixedNow, esc.ScheduledAt)
	assert.Equal(t, "all known causes exhausted", esc.Parameters["reason"])
}

func TestHorizonDays(t *testing.T) {
	assert.Equal(t, 7, horizonDays(168*time.Hour))
	assert.Equal(t, 1, horizonDays(90*time.Minute))
	assert.Equal(t, 0, horizonDays(0))
}
