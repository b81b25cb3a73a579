// File: internal/llmclient/router_test.go
package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/mocks"
)

func setupRouter(t *testing.T) (*LLMRouter, *mocks.MockLLMClient, *mocks.MockLLMClient) {
	t.Helper()
	logger, _ := setupTestLogger(t)
	fast := &mocks.MockLLMClient{Name: "fast"}
	powerful := &mocks.MockLLMClient{Name: "powerful"}
	router, err := NewLLMRouter(logger, fast, powerful)
	require.NoError(t, err)
	return router, fast, powerful
}

func TestNewLLMRouter_MissingClients(t *testing.T) {
	logger, _ := setupTestLogger(t)
	_, err := NewLLMRouter(logger, nil, new(mocks.MockLLMClient))
	assert.EqualError(t, err, "both fast and powerful tier clients must be provided")
}

func TestLLMRouter_Generate(t *testing.T) {
	tests := []struct {
		name     string
		tier     schemas.ModelTier
		wantFast bool
	}{
		{"fast tier", schemas.TierFast, true},
		{"powerful tier", schemas.TierPowerful, false},
		{"default is powerful", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, fast, powerful := setupRouter(t)
			target, other := powerful, fast
			if tc.wantFast {
				target, other = fast, powerful
			}
			target.On("Generate", mock.Anything, mock.Anything).Return(target.Name, nil).Once()

			out, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: tc.tier})
			require.NoError(t, err)
			assert.Equal(t, target.Name, out)
			target.AssertExpectations(t)
			other.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}

	t.Run("unknown tier", func(t *testing.T) {
		router, _, _ := setupRouter(t)
		_, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: "huge"})
		assert.ErrorContains(t, err, "no LLM client configured for tier")
	})
}

func TestLLMRouter_Close(t *testing.T) {
	logger, _ := setupTestLogger(t)
	shared := &mocks.MockLLMClient{Name: "shared"}
	shared.On("Close").Return(nil).Once()
	router, err := NewLLMRouter(logger, shared, shared)
	require.NoError(t, err)
	require.NoError(t, router.Close())
	shared.AssertNumberOfCalls(t, "Close", 1)

	fast := &mocks.MockLLMClient{Name: "fast"}
	powerful := &mocks.MockLLMClient{Name: "powerful"}
	fast.On("Close").Return(errors.New("boom"))
	powerful.On("Close").Return(nil)
	router, err = NewLLMRouter(logger, fast, powerful)
	require.NoError(t, err)
	assert.ErrorContains(t, router.Close(), "boom")
}
