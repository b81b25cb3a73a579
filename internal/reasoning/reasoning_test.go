// File: internal/reasoning/reasoning_test.go
package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/features"
	"github.com/xkilldash9x/tracepoint/internal/mocks"
)

func financialRequest() ExplainRequest {
	return ExplainRequest{
		Agent:      "financial",
		Label:      "financial",
		Kind:       schemas.KindRisk,
		Value:      0.82,
		Confidence: 0.6,
		Features:   features.Vector{3, 0.7, 0.9, 0.1, 4, 9},
		TopTypes:   []schemas.EventType{schemas.EventFeePayment},
		Recent:     3,
	}
}

func testReasoningConfig() config.ReasoningConfig {
	return config.ReasoningConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		Timeout:           time.Second,
		CacheTTL:          time.Minute,
		CacheCleanup:      time.Minute,
	}
}

func TestTemplateExplain(t *testing.T) {
	tpl := NewTemplate()

	t.Run("no signal", func(t *testing.T) {
		got := tpl.Explain(context.Background(), ExplainRequest{Label: "language"})
		assert.Equal(t, "No language friction detected.", got)
	})

	t.Run("deterministic risk explanation", func(t *testing.T) {
		req := financialRequest()
		first := tpl.Explain(context.Background(), req)
		assert.Equal(t, first, tpl.Explain(context.Background(), req))
		assert.Contains(t, first, "Financial high risk 0.82")
		assert.Contains(t, first, "3 event(s)")
		assert.Contains(t, first, "fee payment")
	})

	t.Run("capacity wording", func(t *testing.T) {
		req := financialRequest()
		req.Kind = schemas.KindCapacity
		assert.Contains(t, tpl.Explain(context.Background(), req), "Recovery capacity")
	})
}

func TestTemplateJudge(t *testing.T) {
	tpl := NewTemplate()
	sparse := schemas.Assessment{Agent: "uncertainty", Kind: schemas.KindUncertainty, Value: 0.8, Flags: []string{schemas.FlagSparseData}}
	risky := schemas.Assessment{Agent: "financial", Kind: schemas.KindRisk, Value: 0.7}
	quiet := schemas.Assessment{Agent: "financial", Kind: schemas.KindRisk, Value: 0, NoSignal: true}

	tests := []struct {
		name     string
		review   EthicsReview
		veto     bool
		evidence bool
		stigma   bool
		empathy  bool
	}{
		{"nothing to act on", EthicsReview{Assessments: []schemas.Assessment{sparse, quiet}, WatchThreshold: 0.25}, false, false, false, false},
		{"sparse but risky", EthicsReview{Assessments: []schemas.Assessment{sparse, risky}, WatchThreshold: 0.25}, true, true, false, false},
		{"protected context", EthicsReview{Context: schemas.Context{ContextProtected: true}, WatchThreshold: 0.25}, true, false, true, false},
		{"distress reported", EthicsReview{Context: schemas.Context{ContextDistressReported: "yes"}, WatchThreshold: 0.25}, true, false, false, true},
		{"well evidenced risk", EthicsReview{Assessments: []schemas.Assessment{risky}, WatchThreshold: 0.25}, false, false, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j, err := tpl.Judge(context.Background(), tc.review)
			require.NoError(t, err)
			assert.Equal(t, tc.veto, j.Veto())
			assert.Equal(t, tc.evidence, j.InsufficientEvidence)
			assert.Equal(t, tc.stigma, j.StigmatizationRisk)
			assert.Equal(t, tc.empathy, j.NeedsHumanEmpathy)
			if tc.veto {
				assert.Equal(t, schemas.PostureEscalate, j.Recommendation)
				assert.NotEmpty(t, j.Reasons)
			}
		})
	}
}

func TestLLMExplain(t *testing.T) {
	t.Run("caches repeated explanations", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			return r.Tier == schemas.TierFast
		})).Return("Fee payments are piling up.", nil).Once()

		r, err := NewLLM(client, testReasoningConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		req := financialRequest()
		assert.Equal(t, "Fee payments are piling up.", r.Explain(context.Background(), req))
		assert.Equal(t, "Fee payments are piling up.", r.Explain(context.Background(), req))
		client.AssertExpectations(t)
	})

	t.Run("falls back to template on backend error", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

		r, err := NewLLM(client, testReasoningConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		req := financialRequest()
		assert.Equal(t, NewTemplate().Explain(context.Background(), req), r.Explain(context.Background(), req))
	})

	t.Run("no signal never calls the backend", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		r, err := NewLLM(client, testReasoningConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		r.Explain(context.Background(), ExplainRequest{Label: "academic"})
		client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("nil client rejected", func(t *testing.T) {
		_, err := NewLLM(nil, testReasoningConfig(), zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestLLMJudge(t *testing.T) {
	t.Run("parses structured verdict", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			return r.Tier == schemas.TierPowerful && r.Options.ForceJSONFormat && r.UserPrompt == "review"
		})).Return("```json\n{\"stigmatization_risk\": false, \"insufficient_evidence\": true, \"needs_human_empathy\": false, \"reasons\": [\"thin data\"], \"recommendation\": \"ESCALATE_TO_HUMAN\", \"assessment\": \"defer\"}\n```", nil)

		r, err := NewLLM(client, testReasoningConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		j, err := r.Judge(context.Background(), EthicsReview{Prompt: "review"})
		require.NoError(t, err)
		assert.True(t, j.Veto())
		assert.Equal(t, []string{"thin data"}, j.Reasons)
		assert.Equal(t, schemas.PostureEscalate, j.Recommendation)
		assert.Equal(t, "llm", j.Source)
	})

	t.Run("surfaces unusable responses", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("I'd rather not say.", nil)

		r, err := NewLLM(client, testReasoningConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = r.Judge(context.Background(), EthicsReview{Prompt: "review"})
		assert.Error(t, err)
	})
}
