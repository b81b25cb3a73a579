// File: api/schemas/assessment.go
package schemas

import "time"

// AssessmentKind tags what an Assessment's Value measures.
type AssessmentKind string

const (
	KindRisk        AssessmentKind = "RISK"
	KindCapacity    AssessmentKind = "CAPACITY"
	KindInertia     AssessmentKind = "INERTIA"
	KindUncertainty AssessmentKind = "UNCERTAINTY"
	KindEthics      AssessmentKind = "ETHICS"
)

// Participates reports whether assessments of this kind are domain opinions
// that feed aggregation, disagreement and minority detection.
func (k AssessmentKind) Participates() bool {
	return k == KindRisk || k == KindCapacity || k == KindInertia
}

// Posture is the recommended response level.
type Posture string

const (
	PostureNoAction     Posture = "NO_ACTION"
	PostureWatch        Posture = "WATCH"
	PostureSoftOutreach Posture = "SOFT_OUTREACH"
	PostureEscalate     Posture = "ESCALATE_TO_HUMAN"
)

// RequiresIntervention reports whether the posture warrants an intervention plan.
func (p Posture) RequiresIntervention() bool {
	return p == PostureSoftOutreach || p == PostureEscalate
}

// Uncertainty flags.
const (
	FlagSparseData         = "SPARSE_DATA"
	FlagStaleData          = "STALE_DATA"
	FlagConflictingSignals = "CONFLICTING_SIGNALS"
)

// Assessment is the unified result every scorer returns.
type Assessment struct {
	Agent       string         `json:"agent"`
	Kind        AssessmentKind `json:"kind"`
	Value       float64        `json:"value"`
	Confidence  float64        `json:"confidence"`
	Explanation string         `json:"explanation"`
	Details     map[string]any `json:"details,omitempty"`
	// NoSignal marks a domain assessment produced from zero relevant events.
	// Its confidence describes certainty about the absence of friction.
	NoSignal bool     `json:"no_signal,omitempty"`
	Flags    []string `json:"flags,omitempty"`

	// Ethics only.
	Veto               bool     `json:"veto,omitempty"`
	VetoReasons        []string `json:"veto_reasons,omitempty"`
	RecommendedPosture Posture  `json:"recommended_posture,omitempty"`
}

// RiskEquivalent maps the value onto the risk axis: capacity is inverted,
// every other kind is already risk-oriented.
func (a Assessment) RiskEquivalent() float64 {
	if a.Kind == KindCapacity {
		return 1 - a.Value
	}
	return a.Value
}

// HasFlag reports whether the assessment carries the flag.
func (a Assessment) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// MinorityOpinion records a domain assessment that deviates sharply from the consensus.
type MinorityOpinion struct {
	Agent       string  `json:"agent"`
	Risk        float64 `json:"risk"`
	Deviation   float64 `json:"deviation"`
	Explanation string  `json:"explanation"`
}

// Decision is the arbiter's final output for one evaluation.
type Decision struct {
	ID               string            `json:"id"`
	IndividualID     string            `json:"individual_id"`
	Posture          Posture           `json:"posture"`
	AggregateRisk    float64           `json:"aggregate_risk"`
	UncertaintyLevel float64           `json:"uncertainty_level"`
	EthicsVeto       bool              `json:"ethics_veto"`
	VetoReasons      []string          `json:"veto_reasons,omitempty"`
	MinorityOpinions []MinorityOpinion `json:"minority_opinions,omitempty"`
	Assessments      []Assessment      `json:"assessments"`
	Justification    string            `json:"justification"`
	Headline         string            `json:"headline"`
	// DistanceToIrreversibility is 1 - AggregateRisk.
	DistanceToIrreversibility float64   `json:"distance_to_irreversibility"`
	EventCount                int       `json:"event_count"`
	CreatedAt                 time.Time `json:"created_at"`
}

// DomainAssessments returns the assessments that participate in aggregation.
func (d Decision) DomainAssessments() []Assessment {
	out := make([]Assessment, 0, len(d.Assessments))
	for _, a := range d.Assessments {
		if a.Kind.Participates() {
			out = append(out, a)
		}
	}
	return out
}
