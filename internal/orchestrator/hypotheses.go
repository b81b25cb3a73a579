// File: internal/orchestrator/hypotheses.go
package orchestrator

import (
	"fmt"
	"slices"
	"sort"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

// Root causes a plan can target.
const (
	CauseFinancialStress    = "Financial Stress"
	CauseAcademicOverload   = "Academic Overload"
	CauseHousingInstability = "Housing Instability"
	CauseSocialIsolation    = "Social Isolation"
	CauseGeneralFriction    = "General Friction"
)

type hypothesisRule struct {
	pattern    string
	cause      string
	confidence float64
	actions    []schemas.ActionType
}

var hypothesisRules = []hypothesisRule{
	{PatternFinancialStress, CauseFinancialStress, 0.8,
		[]schemas.ActionType{schemas.ActionFinancialAid, schemas.ActionScholarshipMatch, schemas.ActionFeeExtension}},
	{PatternAcademicPressure, CauseAcademicOverload, 0.7,
		[]schemas.ActionType{schemas.ActionAcademicSupport, schemas.ActionPeerSupport}},
	{PatternHousingInstability, CauseHousingInstability, 0.65,
		[]schemas.ActionType{schemas.ActionDocumentAssistance, schemas.ActionCounselorChat}},
	{PatternSocialIsolation, CauseSocialIsolation, 0.6,
		[]schemas.ActionType{schemas.ActionPeerSupport, schemas.ActionCounselorChat}},
}

// GenerateHypotheses maps detected patterns to candidate causes, highest
// confidence first. Excluded causes are dropped. When no pattern matched, the
// General Friction fallback is offered unless it is itself excluded; the
// result may therefore be empty.
func GenerateHypotheses(obs *schemas.Observation, excluded []string) []schemas.Hypothesis {
	var out []schemas.Hypothesis
	for _, rule := range hypothesisRules {
		p, ok := findPattern(obs.Patterns, rule.pattern)
		if !ok || slices.Contains(excluded, rule.cause) {
			continue
		}
		out = append(out, schemas.Hypothesis{
			Cause:             rule.cause,
			Confidence:        rule.confidence,
			Evidence:          evidence(p, obs),
			Indicators:        map[string]any{"pattern": p.Name, "events": p.Count},
			InterventionTypes: slices.Clone(rule.actions),
		})
	}

	if len(out) == 0 && !slices.Contains(excluded, CauseGeneralFriction) {
		out = append(out, schemas.Hypothesis{
			Cause:      CauseGeneralFriction,
			Confidence: 0.5,
			Evidence: []string{
				fmt.Sprintf("%d events in the observation window", obs.EventCount),
				fmt.Sprintf("Current risk: %.2f", obs.Risk),
			},
			InterventionTypes: []schemas.ActionType{schemas.ActionCounselorChat},
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func findPattern(patterns []schemas.Pattern, name string) (schemas.Pattern, bool) {
	for _, p := range patterns {
		if p.Name == name {
			return p, true
		}
	}
	return schemas.Pattern{}, false
}

func evidence(p schemas.Pattern, obs *schemas.Observation) []string {
	if p.Name == PatternSocialIsolation && p.Count < 2 {
		return []string{"No peer interaction detected", "Low engagement patterns"}
	}
	avg := 0.0
	if p.Count > 0 {
		avg = p.TotalSeverity / float64(p.Count)
	}
	ev := []string{
		fmt.Sprintf("%d %s events", p.Count, patternNoun[p.Name]),
		fmt.Sprintf("Average severity: %.2f", avg),
	}
	if p.TimespanDays > 0 {
		ev = append(ev, fmt.Sprintf("Spread over %d days", p.TimespanDays))
	}
	if obs.Trend != schemas.TrendUnknown {
		ev = append(ev, fmt.Sprintf("Risk trend: %s", obs.Trend))
	}
	return ev
}

var patternNoun = map[string]string{
	PatternFinancialStress:    "financial",
	PatternAcademicPressure:   "academic",
	PatternHousingInstability: "residential",
	PatternSocialIsolation:    "communication",
}
