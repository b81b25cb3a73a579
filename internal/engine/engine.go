// File: internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/orchestrator"
)

// -- Interfaces for Dependency Inversion --

// Cycler runs one evaluation cycle for an individual.
type Cycler interface {
	Cycle(ctx context.Context, individualID string, evalCtx schemas.Context) (*orchestrator.CycleResult, error)
}

// Job asks for one cycle.
type Job struct {
	IndividualID string
	Context      schemas.Context
}

// Report is the result of one job.
type Report struct {
	IndividualID string
	Result       *orchestrator.CycleResult
	Err          error
	Duration     time.Duration
}

// Engine fans cycles for many individuals out over a bounded worker pool.
// Cycles for distinct individuals share nothing, so they run in parallel.
type Engine struct {
	cfg    config.EngineConfig
	logger *zap.Logger
	cycler Cycler
	wg     sync.WaitGroup
}

// New creates an Engine.
func New(cfg config.EngineConfig, cycler Cycler, logger *zap.Logger) (*Engine, error) {
	if cycler == nil {
		return nil, fmt.Errorf("engine requires a cycler")
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "engine")),
		cycler: cycler,
	}, nil
}

func (e *Engine) concurrency() int {
	if e.cfg.WorkerConcurrency <= 0 {
		return 4
	}
	return e.cfg.WorkerConcurrency
}

// Start launches the worker pool. Workers consume jobs until the channel is
// closed or ctx is cancelled, sending one report per processed job.
func (e *Engine) Start(ctx context.Context, jobs <-chan Job, reports chan<- Report) {
	n := e.concurrency()
	e.logger.Info("Starting engine worker pool", zap.Int("concurrency", n))
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx, i+1, jobs, reports)
	}
}

// Stop waits for every worker to exit.
func (e *Engine) Stop() {
	e.logger.Info("Stopping engine... waiting for workers to finish.")
	e.wg.Wait()
	e.logger.Info("Engine stopped gracefully.")
}

func (e *Engine) runWorker(ctx context.Context, workerID int, jobs <-chan Job, reports chan<- Report) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down.", zap.Error(ctx.Err()))
			return
		case job, ok := <-jobs:
			if !ok {
				logger.Debug("Job queue closed and drained, worker shutting down.")
				return
			}
			r := e.process(ctx, job)
			select {
			case reports <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}

// process runs one cycle under the per-cycle timeout.
func (e *Engine) process(ctx context.Context, job Job) Report {
	start := time.Now()
	logger := e.logger.With(zap.String("individual_id", job.IndividualID))

	timeout := e.cfg.CycleTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.cycler.Cycle(cycleCtx, job.IndividualID, job.Context)
	r := Report{IndividualID: job.IndividualID, Result: res, Err: err, Duration: time.Since(start)}
	switch {
	case err == nil:
		logger.Debug("Cycle complete", zap.Duration("duration", r.Duration))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Cycle timed out", zap.Duration("timeout", timeout), zap.Error(err))
	case errors.Is(err, context.Canceled):
		logger.Warn("Cycle was cancelled", zap.Error(err))
	default:
		logger.Error("Cycle failed", zap.Error(err))
	}
	return r
}

// Summary aggregates a batch.
type Summary struct {
	Reports   []Report
	Evaluated int
	Failed    int
	Opened    int
	Resolved  int
	Verified  int
	ByPosture map[schemas.Posture]int
}

// RunBatch cycles every individual once over the worker pool. Failed cycles
// are reported, not fatal; only cancellation of ctx aborts the batch. Batches
// on one Engine must not overlap, since they share the pool's wait group.
func (e *Engine) RunBatch(ctx context.Context, individualIDs []string, evalCtx schemas.Context) (*Summary, error) {
	jobs := make(chan Job)
	results := make(chan Report, len(individualIDs))
	e.Start(ctx, jobs, results)

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		defer close(jobs)
		for _, id := range individualIDs {
			select {
			case jobs <- Job{IndividualID: id, Context: evalCtx}:
			case <-ctx.Done():
				return
			}
		}
	}()
	e.Stop()
	<-fed
	close(results)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := &Summary{ByPosture: make(map[schemas.Posture]int)}
	for r := range results {
		sum.Reports = append(sum.Reports, r)
		if r.Err != nil {
			sum.Failed++
		}
		if r.Result == nil || r.Result.Observation == nil {
			continue
		}
		sum.Evaluated++
		sum.ByPosture[r.Result.Observation.Posture]++
		if r.Result.Opened {
			sum.Opened++
		}
		if r.Result.Resolved {
			sum.Resolved++
		}
		if r.Result.Outcome != nil {
			sum.Verified++
		}
	}
	sort.Slice(sum.Reports, func(i, j int) bool { return sum.Reports[i].IndividualID < sum.Reports[j].IndividualID })

	e.logger.Info("Batch complete",
		zap.Int("individuals", len(individualIDs)),
		zap.Int("evaluated", sum.Evaluated),
		zap.Int("failed", sum.Failed),
		zap.Int("opened", sum.Opened),
		zap.Int("resolved", sum.Resolved))
	return sum, nil
}
