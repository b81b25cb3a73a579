// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/internal/arbiter"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
	"github.com/xkilldash9x/tracepoint/internal/engine"
	"github.com/xkilldash9x/tracepoint/internal/ethics"
	"github.com/xkilldash9x/tracepoint/internal/orchestrator"
	"github.com/xkilldash9x/tracepoint/internal/scoring"
	"github.com/xkilldash9x/tracepoint/internal/uncertainty"
)

// ComponentFactory creates the set of components a command runs against.
// The abstraction keeps command logic testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates the production component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires storage, reasoning, the scorer pipeline, delegates, the
// orchestrator and the engine.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Shut down whatever was created if a later step fails.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()
	fail := func(format string, err error) (*Components, error) {
		initializationErr = fmt.Errorf(format, err)
		return nil, initializationErr
	}

	// 1. Store
	st, pool, err := InitializeStore(ctx, cfg.Database(), cfg.Events(), logger)
	if err != nil {
		return fail("failed to initialize store: %w", err)
	}
	components.Store, components.DBPool = st, pool

	// 2. Reasoning
	reasoner, llm, err := InitializeReasoner(ctx, cfg, logger)
	if err != nil {
		return fail("failed to initialize reasoning: %w", err)
	}
	components.LLMClient = llm

	// 3. Scorer pipeline
	scorers, err := scoring.BuildDomainScorers(cfg.Scoring(), reasoner, logger)
	if err != nil {
		return fail("failed to build domain scorers: %w", err)
	}
	guardian, err := ethics.NewGuardian(reasoner, cfg.Arbiter().WatchThreshold, logger)
	if err != nil {
		return fail("failed to create ethics guardian: %w", err)
	}
	arb, err := arbiter.New(scorers, uncertainty.NewScorer(cfg.Uncertainty()), guardian, cfg.Arbiter(), logger)
	if err != nil {
		return fail("failed to create arbiter: %w", err)
	}
	components.Arbiter = arb
	logger.Debug("Scorer pipeline initialized.", zap.Int("scorers", len(scorers)), zap.String("reasoner", reasoner.Name()))

	// 4. Delegates
	components.Delegates = delegates.NewDefaultRegistry(cfg.Delegates(), logger)

	// 5. Orchestrator
	orch, err := orchestrator.New(cfg.Orchestrator(), st, st, arb, components.Delegates, logger)
	if err != nil {
		return fail("failed to create orchestrator: %w", err)
	}
	components.Orchestrator = orch

	// 6. Engine
	eng, err := engine.New(cfg.Engine(), orch, logger)
	if err != nil {
		return fail("failed to create engine: %w", err)
	}
	components.Engine = eng

	logger.Info("All components initialized successfully.")
	return components, nil
}
