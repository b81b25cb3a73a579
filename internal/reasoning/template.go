// File: internal/reasoning/template.go
package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

// Context keys the template judgement understands.
const (
	ContextProtected          = "protected_context"
	ContextRequiresHumanTouch = "requires_human_contact"
	ContextDistressReported   = "distress_reported"
)

// Template is the deterministic Reasoner. It is also the fallback for every
// other strategy.
type Template struct{}

// NewTemplate returns the deterministic reasoner.
func NewTemplate() *Template { return &Template{} }

func (t *Template) Name() string { return "template" }

// Explain renders a fixed-format explanation from the request fields.
func (t *Template) Explain(_ context.Context, req ExplainRequest) string {
	label := req.Label
	if label == "" {
		label = req.Agent
	}
	v := req.Features
	if v.Count() == 0 {
		return fmt.Sprintf("No %s friction detected.", label)
	}

	var b strings.Builder
	switch req.Kind {
	case schemas.KindCapacity:
		fmt.Fprintf(&b, "Recovery capacity %.2f (%s confidence)", req.Value, confidenceWord(req.Confidence))
	case schemas.KindInertia:
		fmt.Fprintf(&b, "Institutional inertia %.2f (%s confidence)", req.Value, confidenceWord(req.Confidence))
	default:
		fmt.Fprintf(&b, "%s %s risk %.2f (%s confidence)", strings.ToUpper(label[:1])+label[1:], riskWord(req.Value), req.Value, confidenceWord(req.Confidence))
	}
	fmt.Fprintf(&b, ": %d event(s), avg severity %.2f, peak %.2f", int(v.Count()), v.MeanSeverity(), v.MaxSeverity())
	if req.Recent > 0 {
		fmt.Fprintf(&b, ", %d in the last 30 days", req.Recent)
	}
	if len(req.TopTypes) > 0 {
		names := make([]string, len(req.TopTypes))
		for i, tt := range req.TopTypes {
			names[i] = strings.ReplaceAll(string(tt), "_", " ")
		}
		fmt.Fprintf(&b, ". Main issues: %s", strings.Join(names, ", "))
	}
	b.WriteString(".")
	return b.String()
}

// Judge evaluates the veto criteria from the structured review.
func (t *Template) Judge(_ context.Context, review EthicsReview) (Judgement, error) {
	j := Judgement{Source: t.Name(), Recommendation: schemas.PostureNoAction}

	if review.Context.Flag(ContextProtected) {
		j.StigmatizationRisk = true
		j.Reasons = append(j.Reasons, "Evaluation touches a protected context; automated outreach could stigmatize.")
	}
	if review.Context.Flag(ContextRequiresHumanTouch) || review.Context.Flag(ContextDistressReported) {
		j.NeedsHumanEmpathy = true
		j.Reasons = append(j.Reasons, "Situation calls for a human conversation rather than automated contact.")
	}

	sparse := false
	var peak float64
	for _, a := range review.Assessments {
		if a.Kind == schemas.KindUncertainty && a.HasFlag(schemas.FlagSparseData) {
			sparse = true
		}
		if a.Kind.Participates() && a.RiskEquivalent() > peak {
			peak = a.RiskEquivalent()
		}
	}
	if sparse && peak > review.WatchThreshold {
		j.InsufficientEvidence = true
		j.Reasons = append(j.Reasons, fmt.Sprintf("Risk of %.2f rests on sparse data.", peak))
	}

	if j.Veto() {
		j.Recommendation = schemas.PostureEscalate
		j.Assessment = "Automated handling is not appropriate; route to a human."
	} else {
		j.Assessment = "No ethical concerns with automated handling."
	}
	return j, nil
}

func riskWord(v float64) string {
	switch {
	case v > 0.65:
		return "high"
	case v > 0.35:
		return "moderate"
	default:
		return "low"
	}
}

func confidenceWord(c float64) string {
	switch {
	case c >= 0.8:
		return "high"
	case c >= 0.5:
		return "moderate"
	default:
		return "low"
	}
}
