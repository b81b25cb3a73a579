// File: internal/scoring/logistic.go
package scoring

import (
	"fmt"
	"math"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/tracepoint/internal/features"
)

// LogisticModel is a pre-trained logistic regression over standardised features.
// Training happens elsewhere; this type only scores.
type LogisticModel struct {
	ModelName string            `yaml:"name"`
	Intercept float64           `yaml:"intercept"`
	Features  []LogisticFeature `yaml:"features"`
}

// LogisticFeature holds the scaler parameters and coefficient for one feature.
type LogisticFeature struct {
	Name        string  `yaml:"name"`
	Mean        float64 `yaml:"mean"`
	Scale       float64 `yaml:"scale"`
	Coefficient float64 `yaml:"coefficient"`
}

// LoadLogisticModel reads a coefficient file. "~" in path is expanded.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand model path %q: %w", path, err)
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseLogisticModel(raw)
}

// ParseLogisticModel decodes and validates a YAML coefficient document.
func ParseLogisticModel(raw []byte) (*LogisticModel, error) {
	var m LogisticModel
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the feature list matches the extractor layout.
func (m *LogisticModel) Validate() error {
	names := features.Names()
	if len(m.Features) != len(names) {
		return fmt.Errorf("model %q has %d features, expected %d", m.ModelName, len(m.Features), len(names))
	}
	for i, f := range m.Features {
		if f.Name != names[i] {
			return fmt.Errorf("model %q feature %d is %q, expected %q", m.ModelName, i, f.Name, names[i])
		}
		if f.Scale == 0 {
			return fmt.Errorf("model %q feature %q has zero scale", m.ModelName, f.Name)
		}
	}
	return nil
}

func (m *LogisticModel) Name() string {
	if m.ModelName == "" {
		return "logistic"
	}
	return m.ModelName
}

// Score returns the sigmoid probability and max(p, 1-p) as confidence.
func (m *LogisticModel) Score(v features.Vector) (float64, float64) {
	z := m.Intercept
	for i, f := range m.Features {
		z += f.Coefficient * (v[i] - f.Mean) / f.Scale
	}
	p := 1 / (1 + math.Exp(-z))
	return clamp01(p), math.Max(p, 1-p)
}
