// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/llmclient"
	"github.com/xkilldash9x/tracepoint/internal/reasoning"
	"github.com/xkilldash9x/tracepoint/internal/store"
)

// InitializeStore connects to PostgreSQL when a database URL is configured and
// falls back to an in-memory store otherwise. A configured events file is
// loaded into whichever store is chosen. The returned pool is nil for the
// in-memory store.
func InitializeStore(ctx context.Context, db config.DatabaseConfig, events config.EventsConfig, logger *zap.Logger) (StateStore, *pgxpool.Pool, error) {
	var seed []schemas.Event
	if events.File != "" {
		loaded, err := store.LoadEventsFile(events.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load events file: %w", err)
		}
		seed = loaded
		logger.Info("Loaded events file.", zap.String("path", events.File), zap.Int("events", len(seed)))
	}

	if db.URL == "" {
		logger.Warn("No database configured; using a temporary in-memory store. Sessions and plans will be lost on exit.")
		mem := store.NewMemory()
		mem.AddEvents(seed...)
		return mem, nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	if db.MaxConns > 0 {
		poolConfig.MaxConns = db.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	pg, err := store.NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if len(seed) > 0 {
		if err := pg.ImportEvents(ctx, seed); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to import events: %w", err)
		}
	}
	logger.Debug("PostgreSQL store initialized.")
	return pg, pool, nil
}

// InitializeReasoner builds the configured reasoning strategy. The LLM client
// is returned so the caller can close it; it is nil for the template backend.
func InitializeReasoner(ctx context.Context, cfg config.Interface, logger *zap.Logger) (reasoning.Reasoner, schemas.LLMClient, error) {
	if cfg.Reasoning().Backend != config.ReasoningLLM {
		logger.Debug("Using template reasoning.")
		return reasoning.NewTemplate(), nil, nil
	}

	router, err := llmclient.NewRouterFromConfig(ctx, cfg.LLM(), logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. Falling back is not automatic; fix the llm section or use the template backend.", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	llm, err := reasoning.NewLLM(router, cfg.Reasoning(), logger)
	if err != nil {
		_ = router.Close()
		return nil, nil, err
	}
	logger.Info("Using LLM reasoning.", zap.String("fast_model", cfg.LLM().DefaultFastModel), zap.String("powerful_model", cfg.LLM().DefaultPowerfulModel))
	return llm, router, nil
}
