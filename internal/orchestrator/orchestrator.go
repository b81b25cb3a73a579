// File: internal/orchestrator/orchestrator.go
// Description: Drives the intervention state machine for one individual at a
// time: observe, plan, wait for approval, execute, verify, re-plan.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
	"github.com/xkilldash9x/tracepoint/internal/observability"
)

var (
	// ErrInvalidTransition is returned when an operation does not apply to the
	// current session or plan state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSessionFaulted is returned when an internal fault forced a session to FAILED.
	ErrSessionFaulted = errors.New("session faulted")
)

// Decider produces one Decision per evaluation.
type Decider interface {
	Decide(ctx context.Context, individualID string, events []schemas.Event, evalCtx schemas.Context) (schemas.Decision, error)
}

// Executor runs an action attempt on a delegate capability.
type Executor interface {
	Execute(ctx context.Context, capability string, req delegates.Request) (*delegates.Result, error)
}

// StateStore is the persistence the orchestrator needs.
type StateStore interface {
	schemas.DecisionStore
	schemas.InterventionStore
}

// Orchestrator owns the session/plan/action lifecycle. Operations on the same
// individual are serialised; different individuals proceed independently.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	source   schemas.EventSource
	store    StateStore
	decider  Decider
	executor Executor
	tracker  ResponseTracker
	retry    RetryPolicy
	logger   *zap.Logger
	now      func() time.Time

	locks sync.Map // individual id -> *sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithResponseTracker replaces the default response check.
func WithResponseTracker(t ResponseTracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithRetryPolicy replaces the exponential backoff retry schedule.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// New wires an orchestrator.
func New(
	cfg config.OrchestratorConfig,
	source schemas.EventSource,
	store StateStore,
	decider Decider,
	executor Executor,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if source == nil || store == nil || decider == nil || executor == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator configuration: %w", err)
	}
	o := &Orchestrator{
		cfg:      cfg,
		source:   source,
		store:    store,
		decider:  decider,
		executor: executor,
		tracker:  ContactResponseTracker{},
		retry:    NewBackoffPolicy(cfg.RetryInitialInterval, cfg.RetryMaxInterval),
		logger:   logger.Named("orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) lock(individualID string) func() {
	m, _ := o.locks.LoadOrStore(individualID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// -- Session state machine --

var transitions = map[schemas.SessionStatus][]schemas.SessionStatus{
	schemas.SessionObserving:       {schemas.SessionPlanning, schemas.SessionFailed},
	schemas.SessionPlanning:        {schemas.SessionWaitingApproval, schemas.SessionExecuting, schemas.SessionFailed},
	schemas.SessionWaitingApproval: {schemas.SessionExecuting, schemas.SessionCompleted, schemas.SessionFailed},
	schemas.SessionExecuting:       {schemas.SessionVerifying, schemas.SessionFailed},
	schemas.SessionVerifying:       {schemas.SessionCompleted, schemas.SessionFailed},
}

func (o *Orchestrator) transition(s *schemas.AgentSession, to schemas.SessionStatus) error {
	for _, allowed := range transitions[s.Status] {
		if allowed == to {
			s.Status = to
			if to.IsTerminal() {
				now := o.now()
				s.CompletedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("%w: session %s cannot move from %s to %s", ErrInvalidTransition, s.ID, s.Status, to)
}

// CycleResult reports what one cycle did.
type CycleResult struct {
	Observation *schemas.Observation
	Session     *schemas.AgentSession
	Plan        *schemas.InterventionPlan
	Actions     []schemas.Action
	Outcome     *schemas.Outcome
	// Opened is set when this cycle created the session.
	Opened bool
	// Resolved is set when a pending session was closed because risk subsided.
	Resolved bool
}

// Cycle observes the individual and moves their session forward: it opens a
// session when the posture calls for intervention, resolves a session still
// awaiting approval once it no longer does, and advances executing sessions.
func (o *Orchestrator) Cycle(ctx context.Context, individualID string, evalCtx schemas.Context) (*CycleResult, error) {
	unlock := o.lock(individualID)
	defer unlock()
	log := observability.ForIndividual(o.logger, individualID)

	active, err := o.store.ActiveSession(ctx, individualID)
	if err != nil && !errors.Is(err, schemas.ErrNotFound) {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	sessionID := ""
	if active != nil {
		sessionID = active.ID
	}

	obs, err := o.observe(ctx, individualID, evalCtx, sessionID)
	if err != nil {
		return nil, err
	}
	res := &CycleResult{Observation: obs}

	if active == nil {
		if !obs.Posture.RequiresIntervention() {
			log.Debug("No intervention required.", zap.String("posture", string(obs.Posture)))
			return res, nil
		}
		sess, plan, actions, err := o.openSession(ctx, obs, evalCtx, nil)
		if err != nil {
			return res, err
		}
		res.Session, res.Plan, res.Actions, res.Opened = sess, plan, actions, true
		return res, nil
	}

	res.Session = active
	active.ObservationIDs = append(active.ObservationIDs, obs.ID)

	switch active.Status {
	case schemas.SessionWaitingApproval:
		if obs.Posture.RequiresIntervention() {
			return res, o.store.SaveSession(ctx, active)
		}
		plan, actions, err := o.resolve(ctx, active, obs)
		res.Plan, res.Actions, res.Resolved = plan, actions, err == nil
		return res, err
	case schemas.SessionExecuting:
		if err := o.store.SaveSession(ctx, active); err != nil {
			return res, fmt.Errorf("failed to save session: %w", err)
		}
		adv, err := o.advance(ctx, active, obs)
		if adv != nil {
			res.Session, res.Plan, res.Actions, res.Outcome = adv.Session, adv.Plan, adv.Actions, adv.Outcome
		}
		return res, err
	default:
		return res, o.store.SaveSession(ctx, active)
	}
}

// resolve closes a session whose risk subsided before anything ran.
func (o *Orchestrator) resolve(ctx context.Context, sess *schemas.AgentSession, obs *schemas.Observation) (*schemas.InterventionPlan, []schemas.Action, error) {
	plan, err := o.store.PlanForSession(ctx, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load plan for session %s: %w", sess.ID, err)
	}
	actions, err := o.store.ActionsForPlan(ctx, plan.ID)
	if err != nil {
		return plan, nil, fmt.Errorf("failed to load actions for plan %s: %w", plan.ID, err)
	}
	now := o.now()
	for i := range actions {
		if !actions[i].Status.IsTerminal() {
			actions[i].Status = schemas.ActionSkipped
			actions[i].LastError = "risk resolved before approval"
			actions[i].CompletedAt = &now
		}
	}
	plan.ApprovalStatus = schemas.ApprovalCancelled
	plan.UpdatedAt = now
	if err := o.transition(sess, schemas.SessionCompleted); err != nil {
		return plan, actions, err
	}
	sess.LastAssessments = obs.Decision.Assessments

	if err := o.persist(ctx, sess, plan, actions); err != nil {
		return plan, actions, err
	}
	observability.ForIndividual(o.logger, sess.IndividualID).Info("Session resolved before approval.",
		zap.String("session_id", sess.ID), zap.Float64("risk", obs.Risk))
	return plan, actions, nil
}

// fail marks the session FAILED with the last known assessments attached.
func (o *Orchestrator) fail(ctx context.Context, sess *schemas.AgentSession, cause error) error {
	sess.FailureReason = cause.Error()
	if recent, err := o.store.RecentDecisions(ctx, sess.IndividualID, 1); err == nil && len(recent) > 0 {
		sess.LastAssessments = recent[0].Assessments
	}
	if !sess.Status.IsTerminal() {
		sess.Status = schemas.SessionFailed
		now := o.now()
		sess.CompletedAt = &now
	}
	observability.ForIndividual(o.logger, sess.IndividualID).Error("Session failed.",
		zap.String("session_id", sess.ID), zap.Error(cause))
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return errors.Join(fmt.Errorf("%w: %v", ErrSessionFaulted, cause), fmt.Errorf("failed to persist failed session: %w", err))
	}
	return fmt.Errorf("%w: %v", ErrSessionFaulted, cause)
}

func (o *Orchestrator) persist(ctx context.Context, sess *schemas.AgentSession, plan *schemas.InterventionPlan, actions []schemas.Action) error {
	if err := o.store.SaveActions(ctx, actions); err != nil {
		return fmt.Errorf("failed to save actions: %w", err)
	}
	if plan != nil {
		if err := o.store.SavePlan(ctx, plan); err != nil {
			return fmt.Errorf("failed to save plan: %w", err)
		}
	}
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
