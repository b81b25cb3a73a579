// File: cmd/cycle.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/service"
)

func newCycleCmd() *cobra.Command {
	var (
		flags       sourceFlags
		concurrency int
	)
	cycleCmd := &cobra.Command{
		Use:   "cycle [individual-ids...]",
		Short: "Run one evaluation cycle per individual",
		Long: `Observes each individual, opens an intervention session when the posture
calls for one, and advances or verifies sessions that are already executing.
With no arguments every individual known to the store is cycled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg, err := getConfigFromContext(cmd.Context())
				if err != nil {
					return err
				}
				if concurrency <= 0 {
					return fmt.Errorf("--concurrency must be positive")
				}
				cfg.SetEngineWorkerConcurrency(concurrency)
			}
			out, err := newPrinter(cmd.OutOrStdout(), flags.format)
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *service.Components, logger *zap.Logger) error {
				return runCycle(ctx, c, args, evalContext(flags.context), out, logger)
			})
		},
	}
	flags.register(cycleCmd)
	cycleCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of individuals cycled in parallel. (Overrides config/env)")
	return cycleCmd
}

func runCycle(ctx context.Context, c *service.Components, ids []string, evalCtx schemas.Context, out *printer, logger *zap.Logger) error {
	if len(ids) == 0 {
		all, err := c.Store.Individuals(ctx)
		if err != nil {
			return fmt.Errorf("failed to list individuals: %w", err)
		}
		ids = all
	}
	if len(ids) == 0 {
		logger.Warn("No individuals to cycle. Load events with --events or configure events.file.")
		return nil
	}

	summary, err := c.Engine.RunBatch(ctx, ids, evalCtx)
	if err != nil {
		return err
	}
	if err := out.summary(summary); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d cycles failed", summary.Failed, len(ids))
	}
	return nil
}
