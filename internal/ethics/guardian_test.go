// File: internal/ethics/guardian_test.go
package ethics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/reasoning"
)

// MockReasoner mocks reasoning.Reasoner.
type MockReasoner struct {
	mock.Mock
}

func (m *MockReasoner) Explain(ctx context.Context, req reasoning.ExplainRequest) string {
	return m.Called(ctx, req).String(0)
}

func (m *MockReasoner) Judge(ctx context.Context, review reasoning.EthicsReview) (reasoning.Judgement, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(reasoning.Judgement), args.Error(1)
}

func (m *MockReasoner) Name() string { return "mock" }

var siblings = []schemas.Assessment{
	{Agent: "financial", Kind: schemas.KindRisk, Value: 0.94, Confidence: 0.6, Explanation: "fees overdue"},
	{Agent: "academic", Kind: schemas.KindRisk, Value: 0, Confidence: 0.9, NoSignal: true},
	{Agent: "uncertainty", Kind: schemas.KindUncertainty, Value: 0.66, Flags: []string{schemas.FlagConflictingSignals}},
}

func TestGuardianTemplate(t *testing.T) {
	g, err := NewGuardian(reasoning.NewTemplate(), 0.25, zap.NewNop())
	require.NoError(t, err)

	t.Run("no veto for well evidenced risk", func(t *testing.T) {
		a := g.Review(context.Background(), siblings, nil)
		assert.False(t, a.Veto)
		assert.Equal(t, schemas.KindEthics, a.Kind)
		assert.Empty(t, a.VetoReasons)
	})

	t.Run("distress always routes to a human", func(t *testing.T) {
		a := g.Review(context.Background(), siblings, schemas.Context{reasoning.ContextDistressReported: true})
		assert.True(t, a.Veto)
		assert.Equal(t, schemas.PostureEscalate, a.RecommendedPosture)
		assert.NotEmpty(t, a.VetoReasons)
		assert.Equal(t, true, a.Details["needs_human_empathy"])
	})
}

func TestGuardianCoercesVetoPosture(t *testing.T) {
	r := new(MockReasoner)
	r.On("Judge", mock.Anything, mock.Anything).Return(reasoning.Judgement{
		StigmatizationRisk: true,
		Recommendation:     schemas.PostureSoftOutreach,
		Source:             "mock",
	}, nil)

	g, err := NewGuardian(r, 0.25, zap.NewNop())
	require.NoError(t, err)

	a := g.Review(context.Background(), siblings, nil)
	assert.True(t, a.Veto)
	assert.Equal(t, schemas.PostureEscalate, a.RecommendedPosture)
	assert.Equal(t, []string{"stigmatization risk"}, a.VetoReasons)
	assert.Contains(t, a.Explanation, "stigmatization risk")
}

func TestGuardianFallsBackWhenBackendFails(t *testing.T) {
	r := new(MockReasoner)
	r.On("Judge", mock.Anything, mock.MatchedBy(func(rv reasoning.EthicsReview) bool {
		return rv.Prompt != "" && len(rv.Assessments) == len(siblings)
	})).Return(reasoning.Judgement{}, errors.New("backend down"))

	core, logs := observer.New(zap.WarnLevel)
	g, err := NewGuardian(r, 0.25, zap.New(core))
	require.NoError(t, err)

	a := g.Review(context.Background(), siblings, schemas.Context{reasoning.ContextProtected: true})
	assert.True(t, a.Veto, "template judgement still applies")
	assert.Equal(t, "template-fallback", a.Details["source"])
	assert.Equal(t, 1, logs.FilterMessageSnippet("using template judgement").Len())
	r.AssertExpectations(t)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(siblings, schemas.Context{"b": 2, "a": 1})
	assert.Contains(t, p, "financial [RISK] value=0.940")
	assert.Contains(t, p, "(no signal)")
	assert.Contains(t, p, "flags=CONFLICTING_SIGNALS")
	assert.Less(t, indexOf(p, "- a: 1"), indexOf(p, "- b: 2"), "context keys are sorted")
}

func TestNewGuardianRequiresReasoner(t *testing.T) {
	_, err := NewGuardian(nil, 0.25, zap.NewNop())
	assert.Error(t, err)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
