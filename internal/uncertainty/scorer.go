// File: internal/uncertainty/scorer.go
package uncertainty

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/features"
)

// AgentName identifies uncertainty assessments.
const AgentName = "uncertainty"

// Recommendations attached to the assessment details.
const (
	DeferToHuman       = "DEFER_TO_HUMAN"
	GatherMoreData     = "GATHER_MORE_DATA"
	ProceedWithCaution = "PROCEED_WITH_CAUTION"
)

// Scorer quantifies how far the sibling assessments can be trusted.
type Scorer struct {
	cfg config.UncertaintyConfig
}

// NewScorer builds a scorer with the given flag thresholds.
func NewScorer(cfg config.UncertaintyConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Sparsity maps the event count onto fixed bands.
func Sparsity(count int) float64 {
	switch {
	case count == 0:
		return 1.0
	case count < 3:
		return 0.8
	case count < 5:
		return 0.5
	case count < 8:
		return 0.3
	default:
		return 0.1
	}
}

// Staleness maps the age of the most recent event onto fixed bands.
func Staleness(events []schemas.Event, now time.Time) float64 {
	if len(events) == 0 {
		return 1.0
	}
	newest := events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}
	days := features.DaysSince(newest, now)
	switch {
	case days > 60:
		return 0.9
	case days > 30:
		return 0.6
	case days > 14:
		return 0.3
	default:
		return 0.1
	}
}

// Disagreement is four times the population variance of the sibling domain
// risks, capped at 1. Fewer than two siblings disagree with nobody.
func Disagreement(siblings []schemas.Assessment) float64 {
	risks := make([]float64, 0, len(siblings))
	for _, a := range siblings {
		if a.Kind.Participates() {
			risks = append(risks, a.RiskEquivalent())
		}
	}
	if len(risks) < 2 {
		return 0
	}
	var mean float64
	for _, r := range risks {
		mean += r
	}
	mean /= float64(len(risks))
	var variance float64
	for _, r := range risks {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(risks))
	return math.Min(variance*4, 1)
}

// Evaluate combines the three components; the worst one wins.
func (s *Scorer) Evaluate(events []schemas.Event, siblings []schemas.Assessment, now time.Time) schemas.Assessment {
	sparsity := Sparsity(len(events))
	staleness := Staleness(events, now)
	disagreement := Disagreement(siblings)
	overall := math.Max(sparsity, math.Max(staleness, disagreement))

	var flags []string
	if sparsity > s.cfg.SparseFlagThreshold {
		flags = append(flags, schemas.FlagSparseData)
	}
	if staleness > s.cfg.StaleFlagThreshold {
		flags = append(flags, schemas.FlagStaleData)
	}
	if disagreement > s.cfg.ConflictFlagThreshold {
		flags = append(flags, schemas.FlagConflictingSignals)
	}

	return schemas.Assessment{
		Agent:       AgentName,
		Kind:        schemas.KindUncertainty,
		Value:       round3(overall),
		Confidence:  round3(1 - overall),
		Explanation: explain(sparsity, staleness, disagreement, overall),
		Flags:       flags,
		Details: map[string]any{
			"sparsity":       sparsity,
			"staleness":      staleness,
			"disagreement":   round3(disagreement),
			"event_count":    len(events),
			"recommendation": recommend(overall),
		},
	}
}

func recommend(u float64) string {
	switch {
	case u > 0.7:
		return DeferToHuman
	case u > 0.5:
		return GatherMoreData
	default:
		return ProceedWithCaution
	}
}

func explain(sparsity, staleness, disagreement, overall float64) string {
	var issues []string
	if sparsity > 0.5 {
		issues = append(issues, "limited historical data")
	}
	if staleness > 0.5 {
		issues = append(issues, "no recent events")
	}
	if disagreement > 0.4 {
		issues = append(issues, "domain assessments disagree")
	}
	if len(issues) == 0 {
		return fmt.Sprintf("Uncertainty %.2f: data is sufficient and consistent.", overall)
	}
	return fmt.Sprintf("Uncertainty %.2f: %s.", overall, strings.Join(issues, "; "))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
