// File: internal/service/components.go
package service

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/arbiter"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
	"github.com/xkilldash9x/tracepoint/internal/engine"
	"github.com/xkilldash9x/tracepoint/internal/observability"
	"github.com/xkilldash9x/tracepoint/internal/orchestrator"
)

// StateStore is a schemas.Store that can also enumerate individuals.
type StateStore interface {
	schemas.Store
	Individuals(ctx context.Context) ([]string, error)
}

// Components holds every initialized service a command needs and owns their
// lifecycle.
type Components struct {
	Store        StateStore
	Arbiter      *arbiter.Arbiter
	Orchestrator *orchestrator.Orchestrator
	Engine       *engine.Engine
	Delegates    *delegates.Registry
	LLMClient    schemas.LLMClient
	DBPool       *pgxpool.Pool
}

// Shutdown releases resources in reverse order of creation.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.LLMClient != nil {
		if err := c.LLMClient.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	// Closed here only when the pool was created by the factory.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
