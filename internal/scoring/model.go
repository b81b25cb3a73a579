// File: internal/scoring/model.go
package scoring

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/tracepoint/internal/features"
)

// Model maps a feature vector to a risk probability and a confidence, both in [0, 1].
type Model interface {
	Name() string
	Score(v features.Vector) (probability, confidence float64)
}

// HeuristicModel blends event frequency, saturating at Saturation events,
// with mean severity. Confidence is fixed.
type HeuristicModel struct {
	Saturation      float64
	FrequencyWeight float64
	SeverityWeight  float64
	Confidence      float64
}

// NewHeuristicModel validates the blend and returns the model.
func NewHeuristicModel(saturation, freqWeight, sevWeight, confidence float64) (*HeuristicModel, error) {
	if saturation <= 0 {
		return nil, fmt.Errorf("heuristic saturation must be positive, got %v", saturation)
	}
	if math.Abs(freqWeight+sevWeight-1) > 1e-9 {
		return nil, fmt.Errorf("heuristic weights must sum to 1.0, got %v+%v", freqWeight, sevWeight)
	}
	return &HeuristicModel{
		Saturation:      saturation,
		FrequencyWeight: freqWeight,
		SeverityWeight:  sevWeight,
		Confidence:      clamp01(confidence),
	}, nil
}

func (h *HeuristicModel) Name() string { return "heuristic" }

func (h *HeuristicModel) Score(v features.Vector) (float64, float64) {
	freq := math.Min(v.Count()/h.Saturation, 1)
	return clamp01(freq*h.FrequencyWeight + v.MeanSeverity()*h.SeverityWeight), h.Confidence
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
