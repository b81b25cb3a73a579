// File: internal/ethics/guardian.go
package ethics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/reasoning"
)

// AgentName identifies ethics assessments.
const AgentName = "ethics"

// Guardian reviews every other assessment and may veto automated handling.
// A veto is final and always routes to a human.
type Guardian struct {
	reasoner       reasoning.Reasoner
	fallback       *reasoning.Template
	watchThreshold float64
	logger         *zap.Logger
}

// NewGuardian builds a guardian over the shared reasoner. watchThreshold is
// the lowest risk the template judgement treats as actionable.
func NewGuardian(reasoner reasoning.Reasoner, watchThreshold float64, logger *zap.Logger) (*Guardian, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("ethics guardian requires a reasoner")
	}
	return &Guardian{
		reasoner:       reasoner,
		fallback:       reasoning.NewTemplate(),
		watchThreshold: watchThreshold,
		logger:         logger.Named("ethics"),
	}, nil
}

// Review judges the sibling assessments in the caller's context.
func (g *Guardian) Review(ctx context.Context, siblings []schemas.Assessment, evalCtx schemas.Context) schemas.Assessment {
	review := reasoning.EthicsReview{
		Prompt:         BuildPrompt(siblings, evalCtx),
		Assessments:    siblings,
		Context:        evalCtx,
		WatchThreshold: g.watchThreshold,
	}

	j, err := g.reasoner.Judge(ctx, review)
	if err != nil {
		g.logger.Warn("Ethics backend unavailable, using template judgement.", zap.Error(err))
		j, _ = g.fallback.Judge(ctx, review)
		j.Source = "template-fallback"
	}

	a := schemas.Assessment{
		Agent:       AgentName,
		Kind:        schemas.KindEthics,
		Confidence:  1,
		Explanation: j.Assessment,
		Details: map[string]any{
			"stigmatization_risk":   j.StigmatizationRisk,
			"insufficient_evidence": j.InsufficientEvidence,
			"needs_human_empathy":   j.NeedsHumanEmpathy,
			"source":                j.Source,
		},
	}
	if !j.Veto() {
		a.RecommendedPosture = j.Recommendation
		return a
	}

	a.Veto = true
	a.Value = 1
	a.VetoReasons = vetoReasons(j)
	// Whatever the backend suggested, a veto goes to a human.
	a.RecommendedPosture = schemas.PostureEscalate
	if a.Explanation == "" {
		a.Explanation = "Automated handling vetoed: " + strings.Join(a.VetoReasons, " ")
	}
	g.logger.Info("Ethics veto issued.", zap.Strings("reasons", a.VetoReasons), zap.String("source", j.Source))
	return a
}

func vetoReasons(j reasoning.Judgement) []string {
	if len(j.Reasons) > 0 {
		return j.Reasons
	}
	var reasons []string
	if j.StigmatizationRisk {
		reasons = append(reasons, "stigmatization risk")
	}
	if j.InsufficientEvidence {
		reasons = append(reasons, "insufficient evidence")
	}
	if j.NeedsHumanEmpathy {
		reasons = append(reasons, "needs human empathy")
	}
	return reasons
}

// BuildPrompt renders the review request for language-model backends.
func BuildPrompt(siblings []schemas.Assessment, evalCtx schemas.Context) string {
	var b strings.Builder
	b.WriteString("Assessments under review:\n")
	for _, a := range siblings {
		fmt.Fprintf(&b, "- %s [%s] value=%.3f confidence=%.3f", a.Agent, a.Kind, a.Value, a.Confidence)
		if len(a.Flags) > 0 {
			fmt.Fprintf(&b, " flags=%s", strings.Join(a.Flags, ","))
		}
		if a.NoSignal {
			b.WriteString(" (no signal)")
		}
		fmt.Fprintf(&b, "\n  %s\n", a.Explanation)
	}
	if len(evalCtx) > 0 {
		keys := make([]string, 0, len(evalCtx))
		for k := range evalCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, evalCtx[k])
		}
	}
	b.WriteString("Veto if automated outreach could stigmatize, if the evidence is too thin to act on, or if the situation needs human empathy.")
	return b.String()
}
