// File: internal/orchestrator/executor.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
	"github.com/xkilldash9x/tracepoint/internal/observability"
)

// RetryPolicy decides how long a failed action waits before its next attempt.
type RetryPolicy interface {
	// Delay returns the wait after the given number of failed attempts (>= 1).
	Delay(attempt int) time.Duration
}

// BackoffPolicy doubles the delay per attempt up to a ceiling, without jitter.
type BackoffPolicy struct {
	initial time.Duration
	ceiling time.Duration
}

// NewBackoffPolicy builds an exponential retry schedule.
func NewBackoffPolicy(initial, ceiling time.Duration) *BackoffPolicy {
	return &BackoffPolicy{initial: initial, ceiling: ceiling}
}

// Delay is safe for concurrent use; each call walks a fresh schedule.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.ceiling
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	var d time.Duration
	for i := 0; i < max(attempt, 1); i++ {
		d = b.NextBackOff()
	}
	return d
}

// AdvanceResult reports the state after one execution pass.
type AdvanceResult struct {
	Session *schemas.AgentSession
	Plan    *schemas.InterventionPlan
	Actions []schemas.Action
	// Outcome is set once every action was terminal and the plan was verified.
	Outcome *schemas.Outcome
	// PlanB is the successor session opened when verification fell short.
	PlanB *schemas.AgentSession
	// Attempted counts the delegate invocations made in this pass.
	Attempted int
}

// Advance runs one execution pass for an EXECUTING session.
func (o *Orchestrator) Advance(ctx context.Context, sessionID string) (*AdvanceResult, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	unlock := o.lock(sess.IndividualID)
	defer unlock()

	if sess, err = o.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.Status != schemas.SessionExecuting {
		return nil, fmt.Errorf("%w: session %s is %s, not %s", ErrInvalidTransition, sess.ID, sess.Status, schemas.SessionExecuting)
	}
	return o.advance(ctx, sess, nil)
}

// advance runs every due action whose predecessors allow it. Actions without
// a dependency relationship run concurrently; a dependent waits only for its
// own predecessors. Once every action is terminal the plan is verified
// against obs, or against a fresh observation when obs is nil.
func (o *Orchestrator) advance(ctx context.Context, sess *schemas.AgentSession, obs *schemas.Observation) (*AdvanceResult, error) {
	plan, err := o.store.PlanForSession(ctx, sess.ID)
	if err != nil {
		return nil, o.fail(ctx, sess, fmt.Errorf("failed to load plan: %w", err))
	}
	actions, err := o.store.ActionsForPlan(ctx, plan.ID)
	if err != nil {
		return nil, o.fail(ctx, sess, fmt.Errorf("failed to load actions: %w", err))
	}
	res := &AdvanceResult{Session: sess, Plan: plan, Actions: actions}

	index, err := validateDAG(actions)
	if err != nil {
		return res, o.fail(ctx, sess, err)
	}
	now := o.now()
	propagateSkips(actions, index, now)

	done := make(map[string]chan struct{})
	var ready, gated []int
	for i, a := range actions {
		switch {
		case !isDue(a, now):
		case awaitsResponse(a):
			gated = append(gated, i)
		default:
			ready = append(ready, i)
			done[a.ID] = make(chan struct{})
		}
	}

	attempts := make([]bool, len(actions))
	g, gctx := errgroup.WithContext(ctx)
	for _, i := range ready {
		g.Go(func() error {
			a := &actions[i]
			defer close(done[a.ID])
			for _, dep := range a.DependsOn {
				if ch, ok := done[dep]; ok {
					select {
					case <-ch:
					case <-gctx.Done():
						return nil
					}
				}
			}
			switch predecessorState(actions, index, a) {
			case predecessorsPending:
				return nil
			case predecessorsBroken:
				skip(a, o.now(), "predecessor did not complete")
				return nil
			}
			if gctx.Err() != nil {
				return nil
			}
			attempts[i] = true
			return o.runAction(gctx, sess, a)
		})
	}
	if err := g.Wait(); err != nil {
		return res, o.fail(ctx, sess, err)
	}
	propagateSkips(actions, index, o.now())

	// Response-gated escalations run once the rest of the pass has settled,
	// so the tracker sees every contact attempt made in it.
	for _, i := range gated {
		a := &actions[i]
		if a.Status != schemas.ActionPending || predecessorState(actions, index, a) != predecessorsDone || ctx.Err() != nil {
			continue
		}
		responded, err := o.tracker.Responded(ctx, sess, actions)
		if err != nil {
			return res, o.fail(ctx, sess, fmt.Errorf("response check failed: %w", err))
		}
		if responded {
			skip(a, o.now(), "individual responded")
			observability.ForIndividual(o.logger, sess.IndividualID).Info("Escalation skipped, individual responded.",
				zap.String("action_id", a.ID))
			continue
		}
		attempts[i] = true
		if err := o.runAction(ctx, sess, a); err != nil {
			return res, o.fail(ctx, sess, err)
		}
	}
	for _, ran := range attempts {
		if ran {
			res.Attempted++
		}
	}
	propagateSkips(actions, index, o.now())
	if err := o.store.SaveActions(context.WithoutCancel(ctx), actions); err != nil {
		return res, o.fail(context.WithoutCancel(ctx), sess, fmt.Errorf("failed to save actions: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, a := range actions {
		if !a.Status.IsTerminal() {
			return res, nil
		}
	}

	if err := o.transition(sess, schemas.SessionVerifying); err != nil {
		return res, err
	}
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return res, o.fail(ctx, sess, fmt.Errorf("failed to save session: %w", err))
	}
	outcome, next, err := o.verify(ctx, sess, plan, actions, obs)
	res.Outcome, res.PlanB = outcome, next
	return res, err
}

// runAction makes one delegate attempt and records its effect on the action.
// Only persistence failures are returned.
func (o *Orchestrator) runAction(ctx context.Context, sess *schemas.AgentSession, a *schemas.Action) error {
	log := observability.ForIndividual(o.logger, sess.IndividualID).With(
		zap.String("action_id", a.ID),
		zap.String("action_type", string(a.Type)),
		zap.String("delegate", a.DelegatedTo))

	started := o.now()
	a.Status = schemas.ActionExecuting
	a.StartedAt = &started
	a.NextAttemptAt = nil
	if err := o.store.SaveActions(ctx, []schemas.Action{*a}); err != nil {
		return fmt.Errorf("failed to mark action %s executing: %w", a.ID, err)
	}

	result, err := o.executor.Execute(ctx, a.DelegatedTo, delegates.Request{
		ActionID:     a.ID,
		PlanID:       a.PlanID,
		IndividualID: sess.IndividualID,
		Type:         a.Type,
		Attempt:      a.RetryCount + 1,
		Parameters:   a.Parameters,
	})
	now := o.now()

	switch {
	case err == nil:
		a.Status = schemas.ActionCompleted
		a.CompletedAt = &now
		a.LastError, a.ErrorCode = "", ""
		if result != nil {
			a.Result = result.Data
		}
		log.Info("Action completed.")
	case ctx.Err() != nil:
		// Interrupted attempts do not count against the retry budget.
		a.Status = schemas.ActionPending
		a.StartedAt = nil
		log.Warn("Action interrupted.", zap.Error(err))
	case errors.Is(err, delegates.ErrUnknownDelegate):
		a.Status = schemas.ActionFailed
		a.CompletedAt = &now
		a.LastError, a.ErrorCode = err.Error(), string(delegates.CodeOf(err))
		log.Error("No delegate registered for action.", zap.Error(err))
	case a.RetryCount < a.MaxRetries:
		a.RetryCount++
		a.Status = schemas.ActionPending
		next := now.Add(o.retry.Delay(a.RetryCount))
		a.NextAttemptAt = &next
		a.LastError, a.ErrorCode = err.Error(), string(delegates.CodeOf(err))
		log.Warn("Action failed, retry scheduled.",
			zap.Int("retry_count", a.RetryCount), zap.Time("next_attempt_at", next), zap.Error(err))
	default:
		a.Status = schemas.ActionFailed
		a.CompletedAt = &now
		a.LastError, a.ErrorCode = err.Error(), string(delegates.CodeOf(err))
		log.Error("Action failed, retries exhausted.", zap.Int("retry_count", a.RetryCount), zap.Error(err))
	}

	if err := o.store.SaveActions(context.WithoutCancel(ctx), []schemas.Action{*a}); err != nil {
		return fmt.Errorf("failed to save action %s: %w", a.ID, err)
	}
	return nil
}

// awaitsResponse reports whether a is the escalation that fires only when
// the individual has not responded to the earlier outreach.
func awaitsResponse(a schemas.Action) bool {
	reason, _ := a.Parameters["reason"].(string)
	return a.Type == schemas.ActionEscalation && reason == reasonNoResponse
}

func isDue(a schemas.Action, now time.Time) bool {
	if a.Status != schemas.ActionPending || a.ScheduledAt.After(now) {
		return false
	}
	return a.NextAttemptAt == nil || !a.NextAttemptAt.After(now)
}

type predecessors int

const (
	predecessorsDone predecessors = iota
	predecessorsPending
	predecessorsBroken
)

func predecessorState(actions []schemas.Action, index map[string]int, a *schemas.Action) predecessors {
	state := predecessorsDone
	for _, dep := range a.DependsOn {
		switch actions[index[dep]].Status {
		case schemas.ActionCompleted:
		case schemas.ActionFailed, schemas.ActionSkipped:
			return predecessorsBroken
		default:
			state = predecessorsPending
		}
	}
	return state
}

// propagateSkips marks every non-terminal dependent of a FAILED or SKIPPED
// action as SKIPPED, transitively.
func propagateSkips(actions []schemas.Action, index map[string]int, now time.Time) {
	for changed := true; changed; {
		changed = false
		for i := range actions {
			a := &actions[i]
			if a.Status != schemas.ActionPending {
				continue
			}
			if predecessorState(actions, index, a) == predecessorsBroken {
				skip(a, now, "predecessor did not complete")
				changed = true
			}
		}
	}
}

func skip(a *schemas.Action, now time.Time, reason string) {
	a.Status = schemas.ActionSkipped
	a.LastError = reason
	a.CompletedAt = &now
}

// validateDAG checks that every dependency names an action of the same plan
// and that the dependencies are acyclic. It returns the id -> position index.
func validateDAG(actions []schemas.Action) (map[string]int, error) {
	index := make(map[string]int, len(actions))
	for i, a := range actions {
		index[a.ID] = i
	}
	for _, a := range actions {
		for _, dep := range a.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("action %s depends on unknown action %s", a.ID, dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make([]int, len(actions))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return fmt.Errorf("dependency cycle through action %s", actions[i].ID)
		case visited:
			return nil
		}
		state[i] = visiting
		for _, dep := range actions[i].DependsOn {
			if err := visit(index[dep]); err != nil {
				return err
			}
		}
		state[i] = visited
		return nil
	}
	for i := range actions {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return index, nil
}
