// File: cmd/evaluate.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/service"
)

// sourceFlags are shared by every command that reads events.
type sourceFlags struct {
	events    string
	reasoning string
	context   map[string]string
	format    string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.events, "events", "e", "", "JSON events file to load before evaluating. (Overrides config/env)")
	cmd.Flags().StringVar(&f.reasoning, "reasoning", "", "Reasoning backend: template or llm. (Overrides config/env)")
	cmd.Flags().StringToStringVar(&f.context, "context", nil, "Evaluation context signals as key=value (e.g. no_peer_contact=true)")
	cmd.Flags().StringVarP(&f.format, "output", "o", formatText, "Output format: text or json")
}

// apply pushes flag overrides into the loaded configuration.
func (f *sourceFlags) apply(cmd *cobra.Command) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if f.events != "" {
		cfg.SetEventsFile(f.events)
	}
	if f.reasoning != "" {
		cfg.SetReasoningBackend(f.reasoning)
	}
	return nil
}

func newEvaluateCmd() *cobra.Command {
	var flags sourceFlags
	evaluateCmd := &cobra.Command{
		Use:   "evaluate <individual-id>",
		Short: "Score one individual's events and print the arbiter's decision",
		Long: `Runs every domain scorer, the uncertainty scorer and the ethics guardian over
the individual's full event history and prints the resulting decision. Nothing
is planned or persisted; use "cycle" for that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd); err != nil {
				return err
			}
			out, err := newPrinter(cmd.OutOrStdout(), flags.format)
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *service.Components, logger *zap.Logger) error {
				return runEvaluate(ctx, c, args[0], evalContext(flags.context), out, logger)
			})
		},
	}
	flags.register(evaluateCmd)
	return evaluateCmd
}

func runEvaluate(ctx context.Context, c *service.Components, individualID string, evalCtx schemas.Context, out *printer, logger *zap.Logger) error {
	events, err := c.Store.Events(ctx, individualID, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to load events for %s: %w", individualID, err)
	}
	logger.Debug("Evaluating individual", zap.String("individual_id", individualID), zap.Int("events", len(events)))

	decision, err := c.Arbiter.Decide(ctx, individualID, events, evalCtx)
	if err != nil {
		return err
	}
	return out.decision(decision)
}
