// File: internal/service/service_test.go
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/mocks"
)

// writeEvents writes a small events file with recent timestamps so the
// observation window picks them up.
func writeEvents(t *testing.T, individuals ...string) string {
	t.Helper()
	now := time.Now().UTC()
	var body string
	for i, id := range individuals {
		for j, typ := range []string{"fee_payment", "scholarship_delay", "fee_payment"} {
			if body != "" {
				body += ",\n"
			}
			ts := now.Add(-time.Duration(24*(j+1)) * time.Hour).Format(time.RFC3339)
			body += fmt.Sprintf(`{"id": "e-%d-%d", "individual_id": %q, "type": %q, "severity": 0.8, "timestamp": %q}`, i, j, id, typ, ts)
		}
	}
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte("["+body+"]"), 0o600))
	return path
}

func TestInitializeStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("MemoryWithoutEvents", func(t *testing.T) {
		st, pool, err := InitializeStore(ctx, config.DatabaseConfig{}, config.EventsConfig{}, logger)
		require.NoError(t, err)
		assert.Nil(t, pool)
		ids, err := st.Individuals(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("MemorySeededFromFile", func(t *testing.T) {
		path := writeEvents(t, "stu-1", "stu-2")
		st, pool, err := InitializeStore(ctx, config.DatabaseConfig{}, config.EventsConfig{File: path}, logger)
		require.NoError(t, err)
		assert.Nil(t, pool)

		ids, err := st.Individuals(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"stu-1", "stu-2"}, ids)

		events, err := st.Events(ctx, "stu-1", time.Time{})
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("MissingEventsFile", func(t *testing.T) {
		_, _, err := InitializeStore(ctx, config.DatabaseConfig{}, config.EventsConfig{File: filepath.Join(t.TempDir(), "nope.json")}, logger)
		assert.ErrorContains(t, err, "failed to load events file")
	})

	t.Run("InvalidDatabaseURL", func(t *testing.T) {
		_, pool, err := InitializeStore(ctx, config.DatabaseConfig{URL: "postgres://user@localhost:notaport/db"}, config.EventsConfig{}, logger)
		assert.Error(t, err)
		assert.Nil(t, pool)
	})
}

func TestInitializeReasoner(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("TemplateByDefault", func(t *testing.T) {
		r, client, err := InitializeReasoner(ctx, config.NewDefaultConfig(), logger)
		require.NoError(t, err)
		assert.Nil(t, client)
		assert.Equal(t, "template", r.Name())
	})

	t.Run("LLMWithoutKeyFails", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.SetReasoningBackend(config.ReasoningLLM)
		_, client, err := InitializeReasoner(ctx, cfg, logger)
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "failed to initialize LLM client")
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("WiresInMemoryPipeline", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.SetEventsFile(writeEvents(t, "stu-1"))

		c, err := NewComponentFactory().Create(ctx, cfg, logger)
		require.NoError(t, err)
		defer c.Shutdown()

		require.NotNil(t, c.Store)
		require.NotNil(t, c.Arbiter)
		require.NotNil(t, c.Orchestrator)
		require.NotNil(t, c.Engine)
		assert.Nil(t, c.DBPool)
		assert.Nil(t, c.LLMClient)
		assert.ElementsMatch(t, []string{
			"counselor_chat_agent", "document_agent", "scholarship_agent",
			"peer_match_agent", "academic_support_agent", "escalation_agent",
		}, c.Delegates.Capabilities())

		summary, err := c.Engine.RunBatch(ctx, []string{"stu-1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Evaluated)
		assert.Zero(t, summary.Failed)

		decisions, err := c.Store.RecentDecisions(ctx, "stu-1", 5)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.Equal(t, 3, decisions[0].EventCount)
		assert.NotEqual(t, schemas.Posture(""), decisions[0].Posture)
	})

	t.Run("FailureShutsDownPartialComponents", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.SetEventsFile(filepath.Join(t.TempDir(), "missing.json"))

		c, err := NewComponentFactory().Create(ctx, cfg, logger)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "failed to initialize store")
	})

	t.Run("InvalidReasoningBackend", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.SetReasoningBackend(config.ReasoningLLM)

		_, err := NewComponentFactory().Create(ctx, cfg, logger)
		assert.ErrorContains(t, err, "failed to initialize reasoning")
	})
}

func TestInitializeReasonerFromMockConfig(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("Template", func(t *testing.T) {
		cfg := new(mocks.MockConfig)
		cfg.On("Reasoning").Return(config.ReasoningConfig{Backend: config.ReasoningTemplate})

		r, client, err := InitializeReasoner(ctx, cfg, logger)
		require.NoError(t, err)
		assert.Nil(t, client)
		assert.Equal(t, "template", r.Name())
		cfg.AssertExpectations(t)
		cfg.AssertNotCalled(t, "LLM")
	})

	t.Run("LLMWithUnknownModel", func(t *testing.T) {
		cfg := new(mocks.MockConfig)
		cfg.On("Reasoning").Return(config.ReasoningConfig{Backend: config.ReasoningLLM})
		cfg.On("LLM").Return(config.LLMConfig{
			DefaultFastModel:     "fast",
			DefaultPowerfulModel: "powerful",
			Models:               map[string]config.LLMModelConfig{},
		})

		_, _, err := InitializeReasoner(ctx, cfg, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `model "fast" is not configured`)
		cfg.AssertExpectations(t)
	})
}
