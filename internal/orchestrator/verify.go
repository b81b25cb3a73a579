// File: internal/orchestrator/verify.go
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/observability"
)

// Goal names recorded on an Outcome.
const (
	GoalRiskReduced         = "risk_reduced"
	GoalIndividualResponded = "individual_responded"
	GoalEngagementImproved  = "engagement_improved"
)

// ResponseTracker reports whether the individual engaged with the plan.
type ResponseTracker interface {
	Responded(ctx context.Context, sess *schemas.AgentSession, actions []schemas.Action) (bool, error)
}

// ContactResponseTracker counts any completed contact action as a response.
type ContactResponseTracker struct{}

func (ContactResponseTracker) Responded(_ context.Context, _ *schemas.AgentSession, actions []schemas.Action) (bool, error) {
	for _, a := range actions {
		if a.Status == schemas.ActionCompleted &&
			(a.Type == schemas.ActionCounselorChat || a.Type == schemas.ActionPeerSupport) {
			return true, nil
		}
	}
	return false, nil
}

// Verify measures a session left in VERIFYING, e.g. after an interrupted pass.
func (o *Orchestrator) Verify(ctx context.Context, sessionID string) (*schemas.Outcome, *schemas.AgentSession, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	unlock := o.lock(sess.IndividualID)
	defer unlock()

	if sess, err = o.store.GetSession(ctx, sessionID); err != nil {
		return nil, nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.Status != schemas.SessionVerifying {
		return nil, nil, fmt.Errorf("%w: session %s is %s, not %s", ErrInvalidTransition, sess.ID, sess.Status, schemas.SessionVerifying)
	}
	plan, err := o.store.PlanForSession(ctx, sess.ID)
	if err != nil {
		return nil, nil, o.fail(ctx, sess, fmt.Errorf("failed to load plan: %w", err))
	}
	actions, err := o.store.ActionsForPlan(ctx, plan.ID)
	if err != nil {
		return nil, nil, o.fail(ctx, sess, fmt.Errorf("failed to load actions: %w", err))
	}
	return o.verify(ctx, sess, plan, actions, nil)
}

// verify records the outcome of the plan against obs, completes the session
// and opens a Plan B session when the outcome calls for one. A nil obs means
// the individual is re-observed first.
func (o *Orchestrator) verify(
	ctx context.Context,
	sess *schemas.AgentSession,
	plan *schemas.InterventionPlan,
	actions []schemas.Action,
	obs *schemas.Observation,
) (*schemas.Outcome, *schemas.AgentSession, error) {
	log := observability.ForIndividual(o.logger, sess.IndividualID)

	if obs == nil {
		var err error
		if obs, err = o.observe(ctx, sess.IndividualID, sess.Context, sess.ID); err != nil {
			return nil, nil, o.fail(ctx, sess, fmt.Errorf("verification observe failed: %w", err))
		}
	}
	responded, err := o.tracker.Responded(ctx, sess, actions)
	if err != nil {
		return nil, nil, o.fail(ctx, sess, fmt.Errorf("response check failed: %w", err))
	}

	before, after := sess.CurrentRisk, obs.Risk
	reduction := round3(before - after)
	target := plan.SuccessCriteria.RiskReductionTarget
	goals := map[string]bool{
		GoalRiskReduced:         reduction >= target,
		GoalIndividualResponded: responded,
		GoalEngagementImproved:  obs.Trend == schemas.TrendDecreasing || after < before,
	}
	achieved := 0
	for _, ok := range goals {
		if ok {
			achieved++
		}
	}
	successRate := float64(achieved) / float64(len(goals))

	completed := 0
	for _, a := range actions {
		if a.Status == schemas.ActionCompleted {
			completed++
		}
	}
	completion := 0.0
	if len(actions) > 0 {
		completion = float64(completed) / float64(len(actions))
	}

	outcome := &schemas.Outcome{
		ID:                 newID("outcome"),
		PlanID:             plan.ID,
		SessionID:          sess.ID,
		IndividualID:       sess.IndividualID,
		RiskBefore:         before,
		RiskAfter:          after,
		RiskReduction:      reduction,
		GoalsAchieved:      goals,
		SuccessRate:        round3(successRate),
		EffectivenessScore: round3((successRate + completion) / 2),
		RequiresPlanB:      successRate < o.cfg.PlanBThreshold,
		EscalationNeeded:   after > o.cfg.EscalationRisk,
		LessonsLearned:     lessons(goals, reduction, target, actions),
		MeasuredAt:         o.now(),
	}
	if err := o.store.SaveOutcome(ctx, outcome); err != nil {
		return nil, nil, o.fail(ctx, sess, fmt.Errorf("failed to save outcome: %w", err))
	}

	if !slices.Contains(sess.ObservationIDs, obs.ID) {
		sess.ObservationIDs = append(sess.ObservationIDs, obs.ID)
	}
	if obs.Decision != nil {
		sess.LastAssessments = obs.Decision.Assessments
	}
	sess.RiskTrend, sess.RiskVelocity = obs.Trend, obs.Velocity
	if err := o.transition(sess, schemas.SessionCompleted); err != nil {
		return outcome, nil, err
	}
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return outcome, nil, fmt.Errorf("failed to save session: %w", err)
	}
	log.Info("Intervention verified.",
		zap.String("session_id", sess.ID),
		zap.String("outcome_id", outcome.ID),
		zap.Float64("risk_before", before),
		zap.Float64("risk_after", after),
		zap.Float64("success_rate", outcome.SuccessRate),
		zap.Bool("requires_plan_b", outcome.RequiresPlanB),
		zap.Bool("escalation_needed", outcome.EscalationNeeded))

	if !outcome.RequiresPlanB {
		return outcome, nil, nil
	}
	next, _, _, err := o.openSession(ctx, obs, sess.Context, &followUp{session: sess, plan: plan, outcome: outcome})
	if err != nil {
		return outcome, nil, fmt.Errorf("failed to open plan b session: %w", err)
	}
	return outcome, next, nil
}

func lessons(goals map[string]bool, reduction, target float64, actions []schemas.Action) []string {
	var out []string
	if goals[GoalRiskReduced] {
		out = append(out, fmt.Sprintf("Risk fell by %.2f, meeting the %.2f target", reduction, target))
	} else {
		out = append(out, fmt.Sprintf("Risk changed by %.2f against a %.2f reduction target", -reduction, target))
	}
	if !goals[GoalIndividualResponded] {
		out = append(out, "No contact action reached the individual")
	}
	if !goals[GoalEngagementImproved] {
		out = append(out, "Risk did not trend downward")
	}
	for _, a := range actions {
		switch a.Status {
		case schemas.ActionFailed:
			out = append(out, fmt.Sprintf("%s failed after %d retries: %s", a.Type, a.RetryCount, a.LastError))
		case schemas.ActionSkipped:
			out = append(out, fmt.Sprintf("%s was skipped", a.Type))
		}
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
