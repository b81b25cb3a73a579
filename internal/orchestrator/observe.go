// File: internal/orchestrator/observe.go
package orchestrator

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/features"
	"github.com/xkilldash9x/tracepoint/internal/observability"
)

// Pattern names.
const (
	PatternFinancialStress    = "financial_stress"
	PatternAcademicPressure   = "academic_pressure"
	PatternHousingInstability = "housing_instability"
	PatternSocialIsolation    = "social_isolation"

	AnomalySeveritySpike = "severity_spike"
)

// ContextNoPeerContact marks an individual with no recent peer interaction.
const ContextNoPeerContact = "no_peer_contact"

var patternDomains = []struct {
	name   string
	domain schemas.Domain
}{
	{PatternFinancialStress, schemas.DomainFinancial},
	{PatternAcademicPressure, schemas.DomainAcademic},
	{PatternHousingInstability, schemas.DomainResidential},
	{PatternSocialIsolation, schemas.DomainLanguage},
}

// Observe evaluates the individual over the observation window and records
// the observation without touching any session.
func (o *Orchestrator) Observe(ctx context.Context, individualID string, evalCtx schemas.Context) (*schemas.Observation, error) {
	unlock := o.lock(individualID)
	defer unlock()
	return o.observe(ctx, individualID, evalCtx, "")
}

func (o *Orchestrator) observe(ctx context.Context, individualID string, evalCtx schemas.Context, sessionID string) (*schemas.Observation, error) {
	now := o.now()
	events, err := o.source.Events(ctx, individualID, now.Add(-o.cfg.ObservationWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", individualID, err)
	}

	decision, err := o.decider.Decide(ctx, individualID, events, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed for %s: %w", individualID, err)
	}
	if err := o.store.SaveDecision(ctx, &decision); err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}

	history, err := o.store.RecentDecisions(ctx, individualID, max(o.cfg.TrendHistory, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load decision history: %w", err)
	}
	scores := make([]float64, len(history))
	for i, d := range history {
		scores[i] = d.AggregateRisk
	}

	counts := make(map[schemas.EventType]int)
	for _, e := range events {
		counts[e.Type]++
	}

	obs := &schemas.Observation{
		ID:           newID("obs"),
		IndividualID: individualID,
		SessionID:    sessionID,
		DecisionID:   decision.ID,
		Risk:         decision.AggregateRisk,
		Posture:      decision.Posture,
		Trend:        Trend(scores),
		Velocity:     Velocity(scores),
		EventCount:   len(events),
		Patterns:     DetectPatterns(events, evalCtx),
		Anomalies:    DetectAnomalies(events),
		EventsByType: counts,
		ObservedAt:   now,
		Decision:     &decision,
	}
	if err := o.store.SaveObservation(ctx, obs); err != nil {
		return nil, fmt.Errorf("failed to save observation: %w", err)
	}

	observability.ForIndividual(o.logger, individualID).Debug("Observation recorded.",
		zap.String("observation_id", obs.ID),
		zap.String("trend", string(obs.Trend)),
		zap.Int("patterns", len(obs.Patterns)),
		zap.Int("anomalies", len(obs.Anomalies)))
	return obs, nil
}

// Trend compares the mean of the three newest scores with the three before
// them. Scores are newest first. With no older scores the oldest one stands in.
func Trend(scores []float64) schemas.RiskTrend {
	if len(scores) < 2 {
		return schemas.TrendUnknown
	}
	recent := scores[:min(3, len(scores))]
	older := scores[min(3, len(scores)):min(6, len(scores))]
	if len(older) == 0 {
		older = scores[len(scores)-1:]
	}
	r, old := mean(recent), mean(older)
	switch {
	case r > old+0.1:
		return schemas.TrendIncreasing
	case r < old-0.1:
		return schemas.TrendDecreasing
	default:
		return schemas.TrendStable
	}
}

// Velocity is the newest score minus the oldest. Scores are newest first.
func Velocity(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	return math.Round((scores[0]-scores[len(scores)-1])*1000) / 1000
}

// DetectPatterns reports each domain with at least two events. Social
// isolation also fires on the no_peer_contact context flag.
func DetectPatterns(events []schemas.Event, evalCtx schemas.Context) []schemas.Pattern {
	var out []schemas.Pattern
	for _, pd := range patternDomains {
		evs := features.Filter(events, schemas.DomainEventTypes[pd.domain])
		if len(evs) < 2 {
			if pd.name == PatternSocialIsolation && evalCtx.Flag(ContextNoPeerContact) {
				out = append(out, schemas.Pattern{Name: pd.name, Count: len(evs), TotalSeverity: totalSeverity(evs)})
			}
			continue
		}
		out = append(out, schemas.Pattern{
			Name:          pd.name,
			Count:         len(evs),
			TotalSeverity: totalSeverity(evs),
			TimespanDays:  features.Timespan(evs),
		})
	}
	return out
}

// DetectAnomalies flags a severity spike: two or more of the five most recent
// events above 0.7.
func DetectAnomalies(events []schemas.Event) []schemas.Anomaly {
	latest := events
	if len(latest) > 5 {
		latest = latest[len(latest)-5:]
	}
	high := 0
	for _, e := range latest {
		if e.Severity > 0.7 {
			high++
		}
	}
	if high < 2 {
		return nil
	}
	return []schemas.Anomaly{{
		Name:        AnomalySeveritySpike,
		Description: fmt.Sprintf("%d high-severity events among the latest %d", high, len(latest)),
		Count:       high,
	}}
}

func totalSeverity(events []schemas.Event) float64 {
	var sum float64
	for _, e := range events {
		sum += e.Severity
	}
	return sum
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
