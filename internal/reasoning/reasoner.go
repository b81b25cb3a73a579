// File: internal/reasoning/reasoner.go
package reasoning

import (
	"context"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/features"
)

// Reasoner turns structured scoring results into language. Implementations
// are chosen at construction time and shared by every scorer.
type Reasoner interface {
	// Explain renders a short human-readable explanation. It never fails;
	// implementations degrade to deterministic text.
	Explain(ctx context.Context, req ExplainRequest) string
	// Judge performs the ethics review and returns the structured criteria.
	Judge(ctx context.Context, review EthicsReview) (Judgement, error)
	// Name identifies the strategy in logs and decision details.
	Name() string
}

// ExplainRequest carries what a scorer knows about its assessment.
type ExplainRequest struct {
	Agent      string
	Label      string
	Kind       schemas.AssessmentKind
	Value      float64
	Confidence float64
	Features   features.Vector
	TopTypes   []schemas.EventType
	Recent     int
}

// EthicsReview is the ethics guardian's request. Prompt is the fully rendered
// review text for language-model backends; the structured fields serve
// deterministic backends.
type EthicsReview struct {
	Prompt         string
	Assessments    []schemas.Assessment
	Context        schemas.Context
	WatchThreshold float64
}

// Judgement is the structured response of an ethics review.
type Judgement struct {
	StigmatizationRisk   bool            `json:"stigmatization_risk"`
	InsufficientEvidence bool            `json:"insufficient_evidence"`
	NeedsHumanEmpathy    bool            `json:"needs_human_empathy"`
	Reasons              []string        `json:"reasons"`
	Recommendation       schemas.Posture `json:"recommendation"`
	Assessment           string          `json:"assessment"`
	// Source records which strategy produced the judgement.
	Source string `json:"-"`
}

// Veto reports whether any criterion is met.
func (j Judgement) Veto() bool {
	return j.StigmatizationRisk || j.InsufficientEvidence || j.NeedsHumanEmpathy
}
