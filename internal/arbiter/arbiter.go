// File: internal/arbiter/arbiter.go
package arbiter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/observability"
	"github.com/xkilldash9x/tracepoint/internal/scoring"
	"github.com/xkilldash9x/tracepoint/internal/uncertainty"
)

// VetoSentinel is the aggregate risk reported when the ethics guardian vetoes.
const VetoSentinel = 1.0

// Reviewer is the ethics stage of the pipeline.
type Reviewer interface {
	Review(ctx context.Context, siblings []schemas.Assessment, evalCtx schemas.Context) schemas.Assessment
}

// Arbiter runs the scoring pipeline and turns its assessments into a Decision.
// It holds no per-individual state and is safe for concurrent use.
type Arbiter struct {
	scorers     []scoring.Scorer
	weights     map[string]float64
	uncertainty *uncertainty.Scorer
	guardian    Reviewer
	cfg         config.ArbiterConfig
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// New builds an arbiter over the given pipeline stages.
func New(
	scorers []scoring.Scorer,
	unc *uncertainty.Scorer,
	guardian Reviewer,
	cfg config.ArbiterConfig,
	logger *zap.Logger,
	opts ...Option,
) (*Arbiter, error) {
	if len(scorers) == 0 {
		return nil, fmt.Errorf("arbiter requires at least one domain scorer")
	}
	if unc == nil || guardian == nil {
		return nil, fmt.Errorf("arbiter requires uncertainty and ethics stages")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arbiter configuration: %w", err)
	}

	weights := make(map[string]float64, len(scorers))
	for _, s := range scorers {
		if _, dup := weights[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate scorer name %q", s.Name())
		}
		weights[s.Name()] = s.Weight()
	}

	a := &Arbiter{
		scorers:     scorers,
		weights:     weights,
		uncertainty: unc,
		guardian:    guardian,
		cfg:         cfg,
		logger:      logger.Named("arbiter"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Weights returns a copy of the static per-scorer weights.
func (a *Arbiter) Weights() map[string]float64 {
	out := make(map[string]float64, len(a.weights))
	for k, v := range a.weights {
		out[k] = v
	}
	return out
}

// Decide evaluates one individual's events. The only error it returns is the
// context's.
func (a *Arbiter) Decide(ctx context.Context, individualID string, events []schemas.Event, evalCtx schemas.Context) (schemas.Decision, error) {
	now := a.now()
	log := observability.ForIndividual(a.logger, individualID)

	domain := make([]schemas.Assessment, len(a.scorers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range a.scorers {
		g.Go(func() error {
			domain[i] = s.Evaluate(gctx, events, now)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return schemas.Decision{}, err
	}

	unc := a.uncertainty.Evaluate(events, domain, now)
	siblings := append(append([]schemas.Assessment{}, domain...), unc)
	eth := a.guardian.Review(ctx, siblings, evalCtx)
	all := append(siblings, eth)

	d := schemas.Decision{
		ID:               uuid.NewString(),
		IndividualID:     individualID,
		UncertaintyLevel: unc.Value,
		Assessments:      all,
		EventCount:       len(events),
		CreatedAt:        now,
	}

	// Dissent involves no weighting, so a veto keeps it.
	d.MinorityOpinions = MinorityOpinions(domain, a.cfg.MinorityMinAssessments, a.cfg.MinorityDeviation)
	if eth.Veto {
		d.EthicsVeto = true
		d.VetoReasons = eth.VetoReasons
		d.Posture = eth.RecommendedPosture
		if d.Posture == "" {
			d.Posture = schemas.PostureEscalate
		}
		d.AggregateRisk = VetoSentinel
	} else {
		d.AggregateRisk = round3(AggregateRisk(domain, a.weights))
		d.Posture = SelectPosture(d.AggregateRisk, unc.Value, a.cfg)
	}
	d.DistanceToIrreversibility = round3(1 - d.AggregateRisk)
	d.Headline = headline(d, domain)
	d.Justification = justify(d, domain, unc)

	log.Info("Decision reached.",
		zap.String("decision_id", d.ID),
		zap.String("posture", string(d.Posture)),
		zap.Float64("aggregate_risk", d.AggregateRisk),
		zap.Float64("uncertainty", d.UncertaintyLevel),
		zap.Bool("veto", d.EthicsVeto),
		zap.Int("events", len(events)))
	return d, nil
}

// AggregateRisk is the confidence-weighted mean of the signal-bearing domain
// assessments: sum(risk*w*c) / sum(w*c), or 0 when the total weight is 0.
// Assessments without a weight entry do not contribute.
func AggregateRisk(assessments []schemas.Assessment, weights map[string]float64) float64 {
	var num, den float64
	for _, a := range assessments {
		if !a.Kind.Participates() || a.NoSignal {
			continue
		}
		ew := weights[a.Agent] * a.Confidence
		if ew <= 0 {
			continue
		}
		num += a.RiskEquivalent() * ew
		den += ew
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// SelectPosture maps the aggregate onto a posture. High uncertainty switches
// to the tighter cut points, where SOFT_OUTREACH is unreachable.
func SelectPosture(risk, uncertaintyLevel float64, cfg config.ArbiterConfig) schemas.Posture {
	if uncertaintyLevel > cfg.HighUncertainty {
		switch {
		case risk > cfg.UncertainEscalateThreshold:
			return schemas.PostureEscalate
		case risk > cfg.UncertainWatchThreshold:
			return schemas.PostureWatch
		default:
			return schemas.PostureNoAction
		}
	}
	switch {
	case risk > cfg.EscalateThreshold:
		return schemas.PostureEscalate
	case risk > cfg.OutreachThreshold:
		return schemas.PostureSoftOutreach
	case risk > cfg.WatchThreshold:
		return schemas.PostureWatch
	default:
		return schemas.PostureNoAction
	}
}

// MinorityOpinions returns the domain assessments whose risk deviates from
// the group mean by more than maxDeviation. Fewer than minCount domain
// assessments never produce a minority.
func MinorityOpinions(assessments []schemas.Assessment, minCount int, maxDeviation float64) []schemas.MinorityOpinion {
	var domain []schemas.Assessment
	for _, a := range assessments {
		if a.Kind.Participates() {
			domain = append(domain, a)
		}
	}
	if len(domain) < minCount || len(domain) == 0 {
		return nil
	}
	var mean float64
	for _, a := range domain {
		mean += a.RiskEquivalent()
	}
	mean /= float64(len(domain))

	var out []schemas.MinorityOpinion
	for _, a := range domain {
		dev := math.Abs(a.RiskEquivalent() - mean)
		if dev > maxDeviation {
			out = append(out, schemas.MinorityOpinion{
				Agent:       a.Agent,
				Risk:        a.RiskEquivalent(),
				Deviation:   round3(dev),
				Explanation: a.Explanation,
			})
		}
	}
	return out
}

func headline(d schemas.Decision, domain []schemas.Assessment) string {
	if d.EthicsVeto {
		return fmt.Sprintf("%s: ethics review requires human handling", d.Posture)
	}
	top := topSignals(domain, 2)
	if len(top) == 0 {
		return fmt.Sprintf("%s: no friction signals", d.Posture)
	}
	parts := make([]string, len(top))
	for i, a := range top {
		parts[i] = fmt.Sprintf("%s %.2f", a.Agent, a.RiskEquivalent())
	}
	return fmt.Sprintf("%s: aggregate risk %.2f (%s)", d.Posture, d.AggregateRisk, strings.Join(parts, ", "))
}

func justify(d schemas.Decision, domain []schemas.Assessment, unc schemas.Assessment) string {
	var b strings.Builder
	if d.EthicsVeto {
		fmt.Fprintf(&b, "Ethics veto: %s.", strings.Join(d.VetoReasons, "; "))
	} else {
		fmt.Fprintf(&b, "Aggregate risk %.3f from %d signalling domain(s).", d.AggregateRisk, len(topSignals(domain, len(domain))))
	}
	fmt.Fprintf(&b, " %s", unc.Explanation)
	for _, a := range domain {
		if a.NoSignal {
			continue
		}
		fmt.Fprintf(&b, " [%s] %s", a.Agent, a.Explanation)
	}
	if len(d.MinorityOpinions) > 0 {
		agents := make([]string, len(d.MinorityOpinions))
		for i, m := range d.MinorityOpinions {
			agents[i] = m.Agent
		}
		fmt.Fprintf(&b, " Dissent from: %s.", strings.Join(agents, ", "))
	}
	return b.String()
}

// topSignals returns up to n signal-bearing domain assessments, highest risk first.
func topSignals(domain []schemas.Assessment, n int) []schemas.Assessment {
	var out []schemas.Assessment
	for _, a := range domain {
		if !a.NoSignal {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskEquivalent() > out[j].RiskEquivalent() })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
