// File: internal/orchestrator/executor_test.go
package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
)

// seedSession stores an EXECUTING session with an approved plan holding the
// given actions, all due now.
func seedSession(t *testing.T, h *harness, actions ...schemas.Action) *schemas.AgentSession {
	t.Helper()
	ctx := context.Background()
	sess := &schemas.AgentSession{
		ID:           "session_seed",
		IndividualID: "stu-1",
		Status:       schemas.SessionExecuting,
		CurrentRisk:  0.8,
		StartedAt:    fixedNow,
	}
	plan := &schemas.InterventionPlan{
		ID:               "plan_seed",
		SessionID:        sess.ID,
		IndividualID:     sess.IndividualID,
		ApprovalStatus:   schemas.ApprovalApproved,
		Priority:         3,
		SuccessCriteria:  schemas.SuccessCriteria{RiskReductionTarget: 0.3, RequireResponse: true},
		CreatedAt:        fixedNow,
		RequiresApproval: true,
	}
	for i := range actions {
		actions[i].PlanID = plan.ID
		actions[i].SequenceOrder = i + 1
		actions[i].Status = schemas.ActionPending
		actions[i].ScheduledAt = fixedNow
	}
	require.NoError(t, h.store.SaveSession(ctx, sess))
	require.NoError(t, h.store.SavePlan(ctx, plan))
	require.NoError(t, h.store.SaveActions(ctx, actions))
	return sess
}

func action(id string, capability string, deps ...string) schemas.Action {
	return schemas.Action{ID: id, Type: schemas.ActionType(id), DelegatedTo: capability, DependsOn: deps, MaxRetries: 2}
}

func actionByID(actions []schemas.Action, id string) schemas.Action {
	for _, a := range actions {
		if a.ID == id {
			return a
		}
	}
	return schemas.Action{}
}

func TestAdvanceDependentWaitsForItsOwnPredecessor(t *testing.T) {
	log := &callLog{}
	independentStarted := make(chan struct{})
	slow := funcDelegate{capability: "slow", fn: func(ctx context.Context, req delegates.Request) (*delegates.Result, error) {
		log.mark("A:start")
		select {
		case <-independentStarted:
		case <-time.After(2 * time.Second):
			log.mark("A:alone")
		}
		log.mark("A:end")
		return &delegates.Result{Success: true}, nil
	}}
	follower := funcDelegate{capability: "follower", fn: func(context.Context, delegates.Request) (*delegates.Result, error) {
		log.mark("B:start")
		return &delegates.Result{Success: true}, nil
	}}
	independent := funcDelegate{capability: "independent", fn: func(context.Context, delegates.Request) (*delegates.Result, error) {
		log.mark("C:start")
		close(independentStarted)
		return &delegates.Result{Success: true}, nil
	}}

	h := newHarness(t, nil, slow, follower, independent)
	h.decider.On("Decide", mock.Anything, "stu-1", mock.Anything, mock.Anything).
		Return(decision("stu-1", 0.3, schemas.PostureWatch), nil)
	sess := seedSession(t, h,
		action("A", "slow"),
		action("B", "follower", "A"),
		action("C", "independent"),
	)

	res, err := h.orch.Advance(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempted)
	for _, a := range res.Actions {
		assert.Equal(t, schemas.ActionCompleted, a.Status, a.ID)
	}

	trace := log.entries()
	assert.NotContains(t, trace, "A:alone", "independent action must run alongside A")
	assert.Less(t, indexOf(trace, "A:end"), indexOf(trace, "B:start"))
	require.NotNil(t, res.Outcome)
}

func indexOf(entries []string, want string) int {
	for i, e := range entries {
		if e == want {
			return i
		}
	}
	return -1
}

func TestAdvanceRetriesAreBounded(t *testing.T) {
	log := &callLog{}
	h := newHarness(t, nil, failing("flaky", delegates.ErrCodeExecutionFailure, log))
	h.decider.On("Decide", mock.Anything, "stu-1", mock.Anything, mock.Anything).
		Return(decision("stu-1", 0.8, schemas.PostureEscalate), nil)
	sess := seedSession(t, h, action("A", "flaky"), action("B", "flaky", "A"))
	ctx := context.Background()

	res, err := h.orch.Advance(ctx, sess.ID)
	require.NoError(t, err)
	a := actionByID(res.Actions, "A")
	assert.Equal(t, schemas.ActionPending, a.Status)
	assert.Equal(t, 1, a.RetryCount)
	require.NotNil(t, a.NextAttemptAt)
	assert.Equal(t, fixedNow.Add(15*time.Minute), *a.NextAttemptAt)
	assert.Equal(t, string(delegates.ErrCodeExecutionFailure), a.ErrorCode)

	// Not due yet: nothing runs.
	res, err = h.orch.Advance(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)

	for i := 0; i < 10 && res.Outcome == nil; i++ {
		h.clock.Advance(24 * time.Hour)
		res, err = h.orch.Advance(ctx, sess.ID)
		require.NoError(t, err)
	}
	a = actionByID(res.Actions, "A")
	assert.Equal(t, schemas.ActionFailed, a.Status)
	assert.Equal(t, 2, a.RetryCount, "retry count never exceeds max retries")
	assert.Equal(t, 3, log.count(), "max_retries + 1 attempts")
	assert.Equal(t, schemas.ActionSkipped, actionByID(res.Actions, "B").Status)
	require.NotNil(t, res.Outcome)
}

func TestAdvanceRecoversDelegatePanic(t *testing.T) {
	boom := funcDelegate{capability: "boom", fn: func(context.Context, delegates.Request) (*delegates.Result, error) {
		panic("nil map write")
	}}
	h := newHarness(t, nil, boom)
	sess := seedSession(t, h, action("A", "boom"), action("C", delegates.CounselorChat))

	res, err := h.orch.Advance(context.Background(), sess.ID)
	require.NoError(t, err)
	a := actionByID(res.Actions, "A")
	assert.Equal(t, schemas.ActionPending, a.Status)
	assert.Equal(t, 1, a.RetryCount)
	assert.Equal(t, string(delegates.ErrCodeDelegatePanic), a.ErrorCode)
	assert.Equal(t, schemas.ActionCompleted, actionByID(res.Actions, "C").Status, "siblings are unaffected")
}

func TestAdvanceMissingDelegateFailsWithoutRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.decider.On("Decide", mock.Anything, "stu-1", mock.Anything, mock.Anything).
		Return(decision("stu-1", 0.8, schemas.PostureEscalate), nil)
	sess := seedSession(t, h, action("A", "nobody_home"), action("B", delegates.Escalation, "A"))

	res, err := h.orch.Advance(context.Background(), sess.ID)
	require.NoError(t, err)
	a := actionByID(res.Actions, "A")
	assert.Equal(t, schemas.ActionFailed, a.Status)
	assert.Zero(t, a.RetryCount)
	assert.Equal(t, string(delegates.ErrCodeUnknownDelegate), a.ErrorCode)

	b := actionByID(res.Actions, "B")
	assert.Equal(t, schemas.ActionSkipped, b.Status)
	assert.Nil(t, b.StartedAt, "a skipped action never executes")
	assert.Zero(t, h.calls.count())
	require.NotNil(t, res.Outcome)
}

func TestAdvanceDependencyCycleFaultsSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	last := decision("stu-1", 0.77, schemas.PostureEscalate)
	require.NoError(t, h.store.SaveDecision(ctx, &last))
	sess := seedSession(t, h, action("A", delegates.CounselorChat, "B"), action("B", delegates.CounselorChat, "A"))

	_, err := h.orch.Advance(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionFaulted)

	stored, err := h.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.SessionFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "dependency cycle")
	assert.Equal(t, last.Assessments, stored.LastAssessments)
	assert.Zero(t, h.calls.count())
}

func TestAdvanceCancelledLeavesActionsPending(t *testing.T) {
	blocked := funcDelegate{capability: "blocked", fn: func(ctx context.Context, _ delegates.Request) (*delegates.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, nil, blocked)
	sess := seedSession(t, h, action("A", "blocked"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := h.orch.Advance(ctx, sess.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)

	actions, err := h.store.ActionsForPlan(context.Background(), "plan_seed")
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionPending, actions[0].Status)
	assert.Zero(t, actions[0].RetryCount, "interrupted attempts are not charged")

	stored, err := h.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.SessionExecuting, stored.Status)
}

func TestValidateDAG(t *testing.T) {
	tests := []struct {
		name    string
		actions []schemas.Action
		wantErr string
	}{
		{"chain", []schemas.Action{{ID: "a"}, {ID: "b", DependsOn: []string{"a"}}, {ID: "c", DependsOn: []string{"b"}}}, ""},
		{"fan out", []schemas.Action{{ID: "a"}, {ID: "b", DependsOn: []string{"a"}}, {ID: "c", DependsOn: []string{"a"}}}, ""},
		{"unknown predecessor", []schemas.Action{{ID: "a", DependsOn: []string{"z"}}}, "unknown action z"},
		{"self loop", []schemas.Action{{ID: "a", DependsOn: []string{"a"}}}, "dependency cycle"},
		{"long cycle", []schemas.Action{
			{ID: "a", DependsOn: []string{"c"}}, {ID: "b", DependsOn: []string{"a"}}, {ID: "c", DependsOn: []string{"b"}},
		}, "dependency cycle"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			index, err := validateDAG(tc.actions)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, index, len(tc.actions))
		})
	}
}

func TestPropagateSkipsIsTransitive(t *testing.T) {
	actions := []schemas.Action{
		{ID: "a", Status: schemas.ActionFailed},
		{ID: "b", Status: schemas.ActionPending, DependsOn: []string{"a"}},
		{ID: "c", Status: schemas.ActionPending, DependsOn: []string{"b"}},
		{ID: "d", Status: schemas.ActionPending},
	}
	index, err := validateDAG(actions)
	require.NoError(t, err)
	propagateSkips(actions, index, fixedNow)
	assert.Equal(t, schemas.ActionSkipped, actions[1].Status)
	assert.Equal(t, schemas.ActionSkipped, actions[2].Status)
	assert.Equal(t, schemas.ActionPending, actions[3].Status)
}

func TestBackoffPolicy(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 5*time.Second)
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(9))
	assert.Equal(t, time.Second, p.Delay(0))
}

type fixedRetry time.Duration

func (f fixedRetry) Delay(int) time.Duration { return time.Duration(f) }

func TestRetryPolicyIsInjectable(t *testing.T) {
	log := &callLog{}
	h := newHarness(t, func(c *config.OrchestratorConfig) { c.MaxRetries = 5 }, failing("flaky", delegates.ErrCodeNoCapacity, log))
	h.orch.retry = fixedRetry(time.Minute)
	sess := seedSession(t, h, action("A", "flaky"))

	res, err := h.orch.Advance(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Actions[0].NextAttemptAt)
	assert.Equal(t, fixedNow.Add(time.Minute), *res.Actions[0].NextAttemptAt)
}
