// File: cmd/intervention.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/internal/service"
)

func newApproveCmd() *cobra.Command {
	var approver, notes, format string
	approveCmd := &cobra.Command{
		Use:   "approve <plan-id>",
		Short: "Approve a plan awaiting review and start its execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *service.Components, logger *zap.Logger) error {
				plan, err := c.Orchestrator.Approve(ctx, args[0], approver, notes)
				if err != nil {
					return fmt.Errorf("approval failed: %w", err)
				}
				return out.plan(plan)
			})
		},
	}
	approveCmd.Flags().StringVar(&approver, "by", "", "Name of the approving staff member (required)")
	approveCmd.Flags().StringVar(&notes, "notes", "", "Optional approval notes")
	approveCmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text or json")
	_ = approveCmd.MarkFlagRequired("by")
	return approveCmd
}

func newRejectCmd() *cobra.Command {
	var reason, format string
	rejectCmd := &cobra.Command{
		Use:   "reject <plan-id>",
		Short: "Reject a plan awaiting review; its session fails and no action runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *service.Components, logger *zap.Logger) error {
				plan, err := c.Orchestrator.Reject(ctx, args[0], reason)
				if err != nil {
					return fmt.Errorf("rejection failed: %w", err)
				}
				return out.plan(plan)
			})
		},
	}
	rejectCmd.Flags().StringVar(&reason, "reason", "", "Why the plan was rejected (required)")
	rejectCmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text or json")
	_ = rejectCmd.MarkFlagRequired("reason")
	return rejectCmd
}

func newAdvanceCmd() *cobra.Command {
	var format string
	advanceCmd := &cobra.Command{
		Use:   "advance <session-id>",
		Short: "Run one execution pass over an executing session's due actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *service.Components, logger *zap.Logger) error {
				res, err := c.Orchestrator.Advance(ctx, args[0])
				if err != nil {
					return fmt.Errorf("advance failed: %w", err)
				}
				return out.advance(res)
			})
		},
	}
	advanceCmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text or json")
	return advanceCmd
}
