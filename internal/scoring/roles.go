// File: internal/scoring/roles.go
package scoring

import (
	"context"
	"math"
	"time"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/features"
	"github.com/xkilldash9x/tracepoint/internal/reasoning"
)

const defaultClusterWindowDays = 14

// RecoveryCapacityScorer estimates how much slack an individual has left to
// absorb further friction. It reports CAPACITY, so higher is safer.
type RecoveryCapacityScorer struct {
	weight     float64
	windowDays int
	reasoner   reasoning.Reasoner
}

// NewRecoveryCapacityScorer falls back to a 14 day cluster window when
// windowDays is not positive.
func NewRecoveryCapacityScorer(weight float64, windowDays int, reasoner reasoning.Reasoner) *RecoveryCapacityScorer {
	if windowDays <= 0 {
		windowDays = defaultClusterWindowDays
	}
	return &RecoveryCapacityScorer{weight: weight, windowDays: windowDays, reasoner: reasoner}
}

func (r *RecoveryCapacityScorer) Name() string    { return "recovery_capacity" }
func (r *RecoveryCapacityScorer) Weight() float64 { return r.weight }

// Evaluate lowers capacity as peak severity and clustering grow.
func (r *RecoveryCapacityScorer) Evaluate(ctx context.Context, events []schemas.Event, now time.Time) schemas.Assessment {
	if len(events) == 0 {
		return schemas.Assessment{
			Agent: r.Name(), Kind: schemas.KindCapacity, Value: 1, Confidence: 0.8, NoSignal: true,
			Explanation: "No friction recorded; recovery capacity is intact.",
		}
	}
	v := features.Extract(events, now)
	clusters := features.Clusters(events, r.windowDays)
	load := 0.5*v.MaxSeverity() + 0.5*math.Min(float64(clusters)/5, 1)
	capacity := round3(clamp01(1 - load))
	confidence := 0.5
	if len(events) >= 3 {
		confidence = 0.7
	}
	return schemas.Assessment{
		Agent:      r.Name(),
		Kind:       schemas.KindCapacity,
		Value:      capacity,
		Confidence: confidence,
		Explanation: r.reasoner.Explain(ctx, reasoning.ExplainRequest{
			Agent: r.Name(), Label: "recovery capacity", Kind: schemas.KindCapacity,
			Value: capacity, Confidence: confidence, Features: v,
		}),
		Details: map[string]any{"clusters": clusters, "max_severity": round3(v.MaxSeverity())},
	}
}

// InertiaScorer estimates how slowly the institution is resolving friction:
// old, numerous open events read as high inertia.
type InertiaScorer struct {
	weight   float64
	reasoner reasoning.Reasoner
}

func NewInertiaScorer(weight float64, reasoner reasoning.Reasoner) *InertiaScorer {
	return &InertiaScorer{weight: weight, reasoner: reasoner}
}

func (i *InertiaScorer) Name() string    { return "institutional_inertia" }
func (i *InertiaScorer) Weight() float64 { return i.weight }

func (i *InertiaScorer) Evaluate(ctx context.Context, events []schemas.Event, now time.Time) schemas.Assessment {
	if len(events) == 0 {
		return schemas.Assessment{
			Agent: i.Name(), Kind: schemas.KindInertia, Value: 0, Confidence: 0.8, NoSignal: true,
			Explanation: "No friction recorded; no institutional inertia observed.",
		}
	}
	v := features.Extract(events, now)
	inertia := round3(clamp01(0.5*math.Min(v.MeanDaysSince()/60, 1) + 0.5*math.Min(v.Count()/10, 1)))
	return schemas.Assessment{
		Agent:      i.Name(),
		Kind:       schemas.KindInertia,
		Value:      inertia,
		Confidence: 0.5,
		Explanation: i.reasoner.Explain(ctx, reasoning.ExplainRequest{
			Agent: i.Name(), Label: "institutional inertia", Kind: schemas.KindInertia,
			Value: inertia, Confidence: 0.5, Features: v,
		}),
		Details: map[string]any{"mean_days_since": round3(v.MeanDaysSince())},
	}
}
