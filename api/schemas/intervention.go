// File: api/schemas/intervention.go
package schemas

import "time"

// SessionStatus is the lifecycle state of an AgentSession.
type SessionStatus string

const (
	SessionObserving       SessionStatus = "OBSERVING"
	SessionPlanning        SessionStatus = "PLANNING"
	SessionWaitingApproval SessionStatus = "WAITING_APPROVAL"
	SessionExecuting       SessionStatus = "EXECUTING"
	SessionVerifying       SessionStatus = "VERIFYING"
	SessionCompleted       SessionStatus = "COMPLETED"
	SessionFailed          SessionStatus = "FAILED"
)

// IsTerminal reports whether the session can no longer advance.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// ApprovalStatus tracks the human gate on a plan.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING_APPROVAL"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalCancelled ApprovalStatus = "CANCELLED"
)

// ActionStatus is the lifecycle state of a single plan action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "PENDING"
	ActionExecuting ActionStatus = "EXECUTING"
	ActionCompleted ActionStatus = "COMPLETED"
	ActionFailed    ActionStatus = "FAILED"
	ActionSkipped   ActionStatus = "SKIPPED"
)

// IsTerminal reports whether the action will never run again.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionCompleted || s == ActionFailed || s == ActionSkipped
}

// ActionType names the kind of remedial step a plan can contain.
type ActionType string

const (
	ActionFinancialAid       ActionType = "FINANCIAL_AID"
	ActionScholarshipMatch   ActionType = "SCHOLARSHIP_MATCH"
	ActionFeeExtension       ActionType = "FEE_EXTENSION"
	ActionAcademicSupport    ActionType = "ACADEMIC_SUPPORT"
	ActionPeerSupport        ActionType = "PEER_SUPPORT"
	ActionCounselorChat      ActionType = "COUNSELOR_CHAT"
	ActionDocumentAssistance ActionType = "DOCUMENT_ASSISTANCE"
	ActionEscalation         ActionType = "EMERGENCY_ESCALATION"
)

// Hypothesis is a candidate root cause with the intervention types that address it.
type Hypothesis struct {
	Cause             string         `json:"cause"`
	Confidence        float64        `json:"confidence"`
	Evidence          []string       `json:"evidence"`
	Indicators        map[string]any `json:"indicators,omitempty"`
	InterventionTypes []ActionType   `json:"intervention_types"`
}

// RiskTrend summarises the direction of recent aggregate risk.
type RiskTrend string

const (
	TrendIncreasing RiskTrend = "increasing"
	TrendStable     RiskTrend = "stable"
	TrendDecreasing RiskTrend = "decreasing"
	TrendUnknown    RiskTrend = "unknown"
)

// Pattern is a named recurring signal detected during observation.
type Pattern struct {
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	TotalSeverity float64 `json:"total_severity"`
	TimespanDays  int     `json:"timespan_days"`
}

// Anomaly is an unusual spike detected during observation.
type Anomaly struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// Observation is the persisted record of one observe step.
type Observation struct {
	ID           string            `json:"id"`
	IndividualID string            `json:"individual_id"`
	SessionID    string            `json:"session_id,omitempty"`
	DecisionID   string            `json:"decision_id"`
	Risk         float64           `json:"risk"`
	Posture      Posture           `json:"posture"`
	Trend        RiskTrend         `json:"trend"`
	Velocity     float64           `json:"velocity"`
	EventCount   int               `json:"event_count"`
	Patterns     []Pattern         `json:"patterns,omitempty"`
	Anomalies    []Anomaly         `json:"anomalies,omitempty"`
	EventsByType map[EventType]int `json:"events_by_type,omitempty"`
	ObservedAt   time.Time         `json:"observed_at"`
	// Decision is carried in memory only; it is persisted separately.
	Decision *Decision `json:"-"`
}

// AgentSession is one autonomous remediation episode for an individual.
type AgentSession struct {
	ID                   string        `json:"id"`
	IndividualID         string        `json:"individual_id"`
	Status               SessionStatus `json:"status"`
	Goal                 string        `json:"goal"`
	CurrentRisk          float64       `json:"current_risk"`
	TargetRisk           float64       `json:"target_risk"`
	TargetDeadline       time.Time     `json:"target_deadline"`
	RiskTrend            RiskTrend     `json:"risk_trend"`
	RiskVelocity         float64       `json:"risk_velocity"`
	ObservationIDs       []string      `json:"observation_ids,omitempty"`
	Hypotheses           []Hypothesis  `json:"hypotheses,omitempty"`
	PredecessorSessionID string        `json:"predecessor_session_id,omitempty"`
	LastAssessments      []Assessment  `json:"last_assessments,omitempty"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	StartedAt            time.Time     `json:"started_at"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	Context              Context       `json:"context,omitempty"`
}

// PlanReasoning explains why a plan was chosen.
type PlanReasoning struct {
	PrimaryCause  string       `json:"primary_cause"`
	Confidence    float64      `json:"confidence"`
	Evidence      []string     `json:"evidence"`
	AllHypotheses []Hypothesis `json:"all_hypotheses"`
}

// SuccessCriteria are the goals a plan's verification checks against.
type SuccessCriteria struct {
	RiskReductionTarget float64 `json:"risk_reduction_target"`
	RequireResponse     bool    `json:"require_response"`
	ResponseWithinDays  int     `json:"response_within_days"`
}

// InterventionPlan is the ordered set of actions proposed for a session.
type InterventionPlan struct {
	ID                    string          `json:"id"`
	SessionID             string          `json:"session_id"`
	IndividualID          string          `json:"individual_id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	Reasoning             PlanReasoning   `json:"reasoning"`
	IdentifiedCauses      []string        `json:"identified_causes"`
	ExcludedCauses        []string        `json:"excluded_causes,omitempty"`
	ExpectedOutcome       string          `json:"expected_outcome"`
	RequiresApproval      bool            `json:"requires_approval"`
	ApprovalStatus        ApprovalStatus  `json:"approval_status"`
	ApprovedBy            string          `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time      `json:"approved_at,omitempty"`
	ApprovalNotes         string          `json:"approval_notes,omitempty"`
	RejectionReason       string          `json:"rejection_reason,omitempty"`
	Priority              int             `json:"priority"`
	EstimatedDurationDays int             `json:"estimated_duration_days"`
	SuccessCriteria       SuccessCriteria `json:"success_criteria"`
	CausedByOutcomeID     string          `json:"caused_by_outcome_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Action is one delegated step of a plan.
type Action struct {
	ID            string         `json:"id"`
	PlanID        string         `json:"plan_id"`
	Type          ActionType     `json:"type"`
	SequenceOrder int            `json:"sequence_order"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	DelegatedTo   string         `json:"delegated_to"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Status        ActionStatus   `json:"status"`
	// DependsOn holds predecessor action IDs that must complete first.
	DependsOn     []string       `json:"depends_on,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	Result        map[string]any `json:"result,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Outcome is the measured effect of an executed plan.
type Outcome struct {
	ID                 string          `json:"id"`
	PlanID             string          `json:"plan_id"`
	SessionID          string          `json:"session_id"`
	IndividualID       string          `json:"individual_id"`
	RiskBefore         float64         `json:"risk_before"`
	RiskAfter          float64         `json:"risk_after"`
	RiskReduction      float64         `json:"risk_reduction"`
	GoalsAchieved      map[string]bool `json:"goals_achieved"`
	SuccessRate        float64         `json:"success_rate"`
	EffectivenessScore float64         `json:"effectiveness_score"`
	RequiresPlanB      bool            `json:"requires_plan_b"`
	EscalationNeeded   bool            `json:"escalation_needed"`
	LessonsLearned     []string        `json:"lessons_learned,omitempty"`
	MeasuredAt         time.Time       `json:"measured_at"`
}
