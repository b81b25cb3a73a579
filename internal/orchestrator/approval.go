// File: internal/orchestrator/approval.go
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/observability"
)

// Approve opens the human gate on a pending plan. Action schedules are
// shifted so that the offsets chosen at planning time start from approval.
func (o *Orchestrator) Approve(ctx context.Context, planID, approver, notes string) (*schemas.InterventionPlan, error) {
	if approver == "" {
		return nil, fmt.Errorf("approver is required")
	}
	return o.decide(ctx, planID, func(sess *schemas.AgentSession, plan *schemas.InterventionPlan, actions []schemas.Action) error {
		now := o.now()
		plan.ApprovalStatus = schemas.ApprovalApproved
		plan.ApprovedBy = approver
		plan.ApprovedAt = &now
		plan.ApprovalNotes = notes
		plan.UpdatedAt = now
		for i := range actions {
			if actions[i].Status == schemas.ActionPending {
				actions[i].ScheduledAt = now.Add(actions[i].ScheduledAt.Sub(plan.CreatedAt))
			}
		}
		return o.transition(sess, schemas.SessionExecuting)
	})
}

// Reject closes the gate: the plan is REJECTED, its actions SKIPPED and the
// session FAILED.
func (o *Orchestrator) Reject(ctx context.Context, planID, reason string) (*schemas.InterventionPlan, error) {
	return o.decide(ctx, planID, func(sess *schemas.AgentSession, plan *schemas.InterventionPlan, actions []schemas.Action) error {
		now := o.now()
		plan.ApprovalStatus = schemas.ApprovalRejected
		plan.RejectionReason = reason
		plan.UpdatedAt = now
		for i := range actions {
			if !actions[i].Status.IsTerminal() {
				actions[i].Status = schemas.ActionSkipped
				actions[i].LastError = "plan rejected"
				actions[i].CompletedAt = &now
			}
		}
		if err := o.transition(sess, schemas.SessionFailed); err != nil {
			return err
		}
		sess.FailureReason = "plan rejected: " + reason
		return nil
	})
}

type approvalFunc func(sess *schemas.AgentSession, plan *schemas.InterventionPlan, actions []schemas.Action) error

func (o *Orchestrator) decide(ctx context.Context, planID string, apply approvalFunc) (*schemas.InterventionPlan, error) {
	plan, err := o.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
	}
	unlock := o.lock(plan.IndividualID)
	defer unlock()

	// Reload under the lock; a concurrent cycle may have resolved the session.
	if plan, err = o.store.GetPlan(ctx, planID); err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
	}
	sess, err := o.store.GetSession(ctx, plan.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", plan.SessionID, err)
	}
	if plan.ApprovalStatus != schemas.ApprovalPending || sess.Status != schemas.SessionWaitingApproval {
		return nil, fmt.Errorf("%w: plan %s is %s and session %s is %s",
			ErrInvalidTransition, plan.ID, plan.ApprovalStatus, sess.ID, sess.Status)
	}
	actions, err := o.store.ActionsForPlan(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actions for plan %s: %w", plan.ID, err)
	}

	if err := apply(sess, plan, actions); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, sess, plan, actions); err != nil {
		return nil, err
	}
	observability.ForIndividual(o.logger, plan.IndividualID).Info("Plan decision recorded.",
		zap.String("plan_id", plan.ID),
		zap.String("approval_status", string(plan.ApprovalStatus)),
		zap.String("session_status", string(sess.Status)))
	return plan, nil
}
