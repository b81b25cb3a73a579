// File: internal/scoring/domain.go
package scoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/features"
	"github.com/xkilldash9x/tracepoint/internal/reasoning"
)

// Scorer produces one assessment per evaluation. Implementations must not
// fail: missing data yields a low-risk, no-signal assessment.
type Scorer interface {
	Name() string
	Weight() float64
	Evaluate(ctx context.Context, events []schemas.Event, now time.Time) schemas.Assessment
}

// DomainOrder is the fixed evaluation order of the built-in domains.
var DomainOrder = []schemas.Domain{
	schemas.DomainFinancial,
	schemas.DomainAcademic,
	schemas.DomainResidential,
	schemas.DomainLanguage,
}

// DomainSpec describes one domain scorer.
type DomainSpec struct {
	Domain             schemas.Domain
	Types              []schemas.EventType
	Weight             float64
	NoSignalConfidence float64
	Model              Model
}

// DomainScorer assesses risk from events of a single domain.
type DomainScorer struct {
	spec     DomainSpec
	reasoner reasoning.Reasoner
}

// NewDomainScorer wires a domain spec to the shared reasoner.
func NewDomainScorer(spec DomainSpec, reasoner reasoning.Reasoner) (*DomainScorer, error) {
	if spec.Model == nil {
		return nil, fmt.Errorf("domain %s has no scoring model", spec.Domain)
	}
	if reasoner == nil {
		return nil, fmt.Errorf("domain %s has no reasoner", spec.Domain)
	}
	if len(spec.Types) == 0 {
		return nil, fmt.Errorf("domain %s owns no event types", spec.Domain)
	}
	return &DomainScorer{spec: spec, reasoner: reasoner}, nil
}

func (d *DomainScorer) Name() string    { return string(d.spec.Domain) }
func (d *DomainScorer) Weight() float64 { return d.spec.Weight }

// Evaluate filters to the domain's event types and scores them.
func (d *DomainScorer) Evaluate(ctx context.Context, events []schemas.Event, now time.Time) schemas.Assessment {
	relevant := features.Filter(events, d.spec.Types)
	if len(relevant) == 0 {
		return schemas.Assessment{
			Agent:       d.Name(),
			Kind:        schemas.KindRisk,
			Value:       0,
			Confidence:  d.spec.NoSignalConfidence,
			Explanation: fmt.Sprintf("No %s friction detected.", d.spec.Domain),
			NoSignal:    true,
			Details:     map[string]any{"event_count": 0, "model": d.spec.Model.Name()},
		}
	}

	v := features.Extract(relevant, now)
	risk, confidence := d.spec.Model.Score(v)
	risk, confidence = round3(clamp01(risk)), round3(clamp01(confidence))
	top := features.TopTypes(relevant, 3)
	recent := features.RecentCount(relevant, 30, now)

	explanation := d.reasoner.Explain(ctx, reasoning.ExplainRequest{
		Agent:      d.Name(),
		Label:      string(d.spec.Domain),
		Kind:       schemas.KindRisk,
		Value:      risk,
		Confidence: confidence,
		Features:   v,
		TopTypes:   top,
		Recent:     recent,
	})

	return schemas.Assessment{
		Agent:       d.Name(),
		Kind:        schemas.KindRisk,
		Value:       risk,
		Confidence:  confidence,
		Explanation: explanation,
		Details: map[string]any{
			"event_count":    len(relevant),
			"avg_severity":   round3(v.MeanSeverity()),
			"max_severity":   round3(v.MaxSeverity()),
			"severity_std":   round3(v.SeverityStd()),
			"recent_events":  recent,
			"model":          d.spec.Model.Name(),
			"primary_issues": top,
		},
	}
}

// BuildDomainScorers creates the built-in domain scorers from configuration,
// in DomainOrder. Domains missing from configuration are skipped.
func BuildDomainScorers(cfg config.ScoringConfig, reasoner reasoning.Reasoner, logger *zap.Logger) ([]Scorer, error) {
	log := logger.Named("scoring")
	scorers := make([]Scorer, 0, len(DomainOrder))
	for _, domain := range DomainOrder {
		dc, ok := cfg.Domains[string(domain)]
		if !ok {
			log.Warn("Domain not configured, skipping scorer.", zap.String("domain", string(domain)))
			continue
		}
		model, err := modelFor(dc)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", domain, err)
		}
		scorer, err := NewDomainScorer(DomainSpec{
			Domain:             domain,
			Types:              schemas.DomainEventTypes[domain],
			Weight:             dc.Weight,
			NoSignalConfidence: dc.NoSignalConfidence,
			Model:              model,
		}, reasoner)
		if err != nil {
			return nil, err
		}
		log.Debug("Domain scorer ready.", zap.String("domain", string(domain)), zap.String("model", model.Name()))
		scorers = append(scorers, scorer)
	}
	if cfg.RoleScorers {
		scorers = append(scorers,
			NewRecoveryCapacityScorer(cfg.RoleWeight, cfg.ClusterWindowDays, reasoner),
			NewInertiaScorer(cfg.RoleWeight, reasoner),
		)
	}
	return scorers, nil
}

func modelFor(dc config.DomainConfig) (Model, error) {
	if dc.ModelPath != "" {
		return LoadLogisticModel(dc.ModelPath)
	}
	return NewHeuristicModel(dc.Saturation, dc.FrequencyWeight, dc.SeverityWeight, dc.HeuristicConfidence)
}
