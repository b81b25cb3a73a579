// File: internal/orchestrator/planner.go
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
	"github.com/xkilldash9x/tracepoint/internal/observability"
)

// ApproverAuto is recorded on plans approved without a human gate.
const ApproverAuto = "auto"

// followUp carries the previous episode into a Plan B session.
type followUp struct {
	session *schemas.AgentSession
	plan    *schemas.InterventionPlan
	outcome *schemas.Outcome
}

// actionTemplate is one step the planner may emit. A template is used when
// the primary hypothesis lists any of its trigger types.
type actionTemplate struct {
	triggers    []schemas.ActionType
	kind        schemas.ActionType
	title       string
	description string
	delegate    string
	params      func(cause string, obs *schemas.Observation) map[string]any
}

// templates are kept in execution order.
var templates = []actionTemplate{
	{
		triggers:    []schemas.ActionType{schemas.ActionCounselorChat},
		kind:        schemas.ActionCounselorChat,
		title:       "Anonymous Supportive Check-in",
		description: "Open an anonymous chat with an on-duty counselor",
		delegate:    delegates.CounselorChat,
		params: func(cause string, _ *schemas.Observation) map[string]any {
			return map[string]any{"message_template": "supportive_checkin", "is_anonymous": true, "cause": cause}
		},
	},
	{
		triggers:    []schemas.ActionType{schemas.ActionDocumentAssistance},
		kind:        schemas.ActionDocumentAssistance,
		title:       "Housing Paperwork Assistance",
		description: "Prepare the housing document checklist",
		delegate:    delegates.Document,
		params: func(string, *schemas.Observation) map[string]any {
			return map[string]any{"document_type": "housing"}
		},
	},
	{
		triggers:    []schemas.ActionType{schemas.ActionFinancialAid, schemas.ActionFeeExtension},
		kind:        schemas.ActionFeeExtension,
		title:       "Draft Fee Extension Request",
		description: "Generate a fee extension request for the individual",
		delegate:    delegates.Document,
		params: func(string, *schemas.Observation) map[string]any {
			return map[string]any{"document_type": "fee_extension_request"}
		},
	},
	{
		triggers:    []schemas.ActionType{schemas.ActionFinancialAid, schemas.ActionScholarshipMatch},
		kind:        schemas.ActionScholarshipMatch,
		title:       "Find Relevant Scholarships",
		description: "Match the individual with open scholarships",
		delegate:    delegates.Scholarship,
		params: func(string, *schemas.Observation) map[string]any {
			return map[string]any{"max_results": 3}
		},
	},
	{
		triggers:    []schemas.ActionType{schemas.ActionPeerSupport},
		kind:        schemas.ActionPeerSupport,
		title:       "Match with Senior Mentor",
		description: "Connect the individual with a peer mentor",
		delegate:    delegates.PeerMatch,
		params: func(cause string, _ *schemas.Observation) map[string]any {
			return map[string]any{"cause": cause}
		},
	},
	{
		triggers:    []schemas.ActionType{schemas.ActionAcademicSupport},
		kind:        schemas.ActionAcademicSupport,
		title:       "Provide Academic Resources",
		description: "Share study resources matched to the academic friction",
		delegate:    delegates.AcademicSupport,
		params: func(_ string, obs *schemas.Observation) map[string]any {
			return map[string]any{"focus": academicFocus(obs)}
		},
	},
}

func academicFocus(obs *schemas.Observation) string {
	switch {
	case obs.EventsByType[schemas.EventAttendanceWarning] > 0:
		return "attendance"
	case obs.EventsByType[schemas.EventRegistrationBlock] > 0:
		return "registration"
	default:
		return "deadlines"
	}
}

// openSession creates a session and its plan for the observation. With a
// non-nil prior the session is a Plan B that excludes causes already tried.
func (o *Orchestrator) openSession(
	ctx context.Context,
	obs *schemas.Observation,
	evalCtx schemas.Context,
	prior *followUp,
) (*schemas.AgentSession, *schemas.InterventionPlan, []schemas.Action, error) {
	now := o.now()
	target := o.cfg.RiskThreshold * o.cfg.TargetRiskFactor
	days := horizonDays(o.cfg.GoalHorizon)
	if prior != nil {
		// The verification observation stays with the predecessor session.
		relinked := *obs
		relinked.ID = newID("obs")
		obs = &relinked
	}

	sess := &schemas.AgentSession{
		ID:             newID("session"),
		IndividualID:   obs.IndividualID,
		Status:         schemas.SessionObserving,
		Goal:           fmt.Sprintf("Reduce risk below %.2f within %d days", target, days),
		CurrentRisk:    obs.Risk,
		TargetRisk:     target,
		TargetDeadline: now.Add(o.cfg.GoalHorizon),
		RiskTrend:      obs.Trend,
		RiskVelocity:   obs.Velocity,
		ObservationIDs: []string{obs.ID},
		StartedAt:      now,
		Context:        evalCtx,
	}
	if obs.Decision != nil {
		sess.LastAssessments = obs.Decision.Assessments
	}
	if err := o.transition(sess, schemas.SessionPlanning); err != nil {
		return nil, nil, nil, err
	}

	var excluded []string
	if prior != nil {
		sess.PredecessorSessionID = prior.session.ID
		excluded = slices.Clone(prior.plan.ExcludedCauses)
		if primary := prior.plan.Reasoning.PrimaryCause; primary != "" && !slices.Contains(excluded, primary) {
			excluded = append(excluded, primary)
		}
	}
	sess.Hypotheses = GenerateHypotheses(obs, excluded)

	plan, actions := o.buildPlan(sess, obs, excluded, now)
	if prior != nil {
		plan.CausedByOutcomeID = prior.outcome.ID
		plan.Priority = min(prior.plan.Priority+1, 5)
	}

	if o.cfg.RequireApproval {
		plan.ApprovalStatus = schemas.ApprovalPending
		if err := o.transition(sess, schemas.SessionWaitingApproval); err != nil {
			return nil, nil, nil, err
		}
	} else {
		plan.ApprovalStatus = schemas.ApprovalApproved
		plan.ApprovedBy = ApproverAuto
		plan.ApprovedAt = &now
		if err := o.transition(sess, schemas.SessionExecuting); err != nil {
			return nil, nil, nil, err
		}
	}

	obs.SessionID = sess.ID
	if err := o.store.SaveObservation(ctx, obs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to link observation to session: %w", err)
	}
	if err := o.persist(ctx, sess, plan, actions); err != nil {
		return nil, nil, nil, err
	}

	observability.ForIndividual(o.logger, sess.IndividualID).Info("Intervention session opened.",
		zap.String("session_id", sess.ID),
		zap.String("plan_id", plan.ID),
		zap.String("primary_cause", plan.Reasoning.PrimaryCause),
		zap.Int("actions", len(actions)),
		zap.Int("priority", plan.Priority),
		zap.Bool("plan_b", prior != nil))
	return sess, plan, actions, nil
}

// buildPlan synthesises the plan for the session's top hypothesis. Without
// any hypothesis the plan escalates straight to a human.
func (o *Orchestrator) buildPlan(
	sess *schemas.AgentSession,
	obs *schemas.Observation,
	excluded []string,
	now time.Time,
) (*schemas.InterventionPlan, []schemas.Action) {
	target := sess.TargetRisk
	plan := &schemas.InterventionPlan{
		ID:                    newID("plan"),
		SessionID:             sess.ID,
		IndividualID:          sess.IndividualID,
		ExcludedCauses:        excluded,
		RequiresApproval:      o.cfg.RequireApproval,
		Priority:              Priority(obs.Risk, obs.Trend),
		EstimatedDurationDays: horizonDays(o.cfg.GoalHorizon),
		ExpectedOutcome:       fmt.Sprintf("Risk reduction from %.2f to %.2f", obs.Risk, target),
		SuccessCriteria: schemas.SuccessCriteria{
			RiskReductionTarget: o.cfg.RiskReductionTarget,
			RequireResponse:     true,
			ResponseWithinDays:  o.cfg.ResponseWithinDays,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, h := range sess.Hypotheses {
		plan.IdentifiedCauses = append(plan.IdentifiedCauses, h.Cause)
	}

	if len(sess.Hypotheses) == 0 {
		plan.Title = "Escalate to Counselor"
		plan.Description = "Every known cause has been tried; hand the case to a human counselor"
		plan.Reasoning = schemas.PlanReasoning{
			Evidence:      []string{fmt.Sprintf("Excluded causes: %s", strings.Join(excluded, ", "))},
			AllHypotheses: []schemas.Hypothesis{},
		}
		esc := o.escalationAction(plan.ID, 1, "all known causes exhausted", now, nil)
		return plan, []schemas.Action{esc}
	}

	top := sess.Hypotheses[0]
	plan.Title = "Address " + top.Cause
	plan.Description = "Multi-step intervention to reduce " + strings.ToLower(top.Cause)
	plan.Reasoning = schemas.PlanReasoning{
		PrimaryCause:  top.Cause,
		Confidence:    top.Confidence,
		Evidence:      top.Evidence,
		AllHypotheses: sess.Hypotheses,
	}

	var actions []schemas.Action
	for _, tpl := range templates {
		if !slices.ContainsFunc(tpl.triggers, func(t schemas.ActionType) bool {
			return slices.Contains(top.InterventionTypes, t)
		}) {
			continue
		}
		seq := len(actions) + 1
		actions = append(actions, schemas.Action{
			ID:            newID("action"),
			PlanID:        plan.ID,
			Type:          tpl.kind,
			SequenceOrder: seq,
			Title:         tpl.title,
			Description:   tpl.description,
			DelegatedTo:   tpl.delegate,
			Parameters:    tpl.params(top.Cause, obs),
			Status:        schemas.ActionPending,
			MaxRetries:    o.cfg.MaxRetries,
			ScheduledAt:   now.Add(time.Duration(len(actions)) * o.cfg.ActionStagger),
		})
	}

	var deps []string
	if len(actions) > 0 {
		deps = []string{actions[0].ID}
	}
	esc := o.escalationAction(plan.ID, len(actions)+1, reasonNoResponse, now.Add(o.cfg.EscalationGrace), deps)
	return plan, append(actions, esc)
}

const reasonNoResponse = "no response to outreach"

func (o *Orchestrator) escalationAction(planID string, seq int, reason string, at time.Time, deps []string) schemas.Action {
	return schemas.Action{
		ID:            newID("action"),
		PlanID:        planID,
		Type:          schemas.ActionEscalation,
		SequenceOrder: seq,
		Title:         "Escalate to Counselor",
		Description:   "Flag the case for human counselor review",
		DelegatedTo:   delegates.Escalation,
		Parameters:    map[string]any{"response_deadline_hours": 48, "reason": reason},
		Status:        schemas.ActionPending,
		DependsOn:     deps,
		MaxRetries:    o.cfg.MaxRetries,
		ScheduledAt:   at,
	}
}

// Priority ranks a plan from 2 to 5 by current risk and its direction.
func Priority(risk float64, trend schemas.RiskTrend) int {
	increasing := trend == schemas.TrendIncreasing
	switch {
	case risk > 0.8:
		return 5
	case risk > 0.6 && increasing:
		return 4
	case risk > 0.6:
		return 3
	case risk > 0.4 && increasing:
		return 3
	default:
		return 2
	}
}

func horizonDays(d time.Duration) int {
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}
