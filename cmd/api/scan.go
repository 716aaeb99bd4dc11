package main

import (
	"context"
	"fmt"
	"time"

	"procureflow/internal/workflow"

	"github.com/spf13/cobra"
)

func newScanCommand() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "scan <tick>",
		Short: "Run one workflow tick and exit",
		Long: `Run a single pass of a workflow tick against the configured database.

Ticks:
  auto-approval     evaluate PENDING requests
  order-generation  generate purchase orders for APPROVED requests
  statistics        publish one statistics snapshot

Order confirmation is scheduled 30-60s after generation and only happens in a
running serve process.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{workflow.TickAutoApproval, workflow.TickOrderGeneration, workflow.TickStatistics},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "how long to wait for dispatched order generation")
	return cmd
}

func runScan(cmd *cobra.Command, tick string, wait time.Duration) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	a.pool.Start(ctx)
	defer a.pool.Stop()

	if err := a.orchestrator.RunTick(ctx, tick); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := a.orchestrator.WaitIdle(waitCtx); err != nil {
		return fmt.Errorf("dispatched work did not finish within %s: %w", wait, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tick %s finished\n", tick)
	return nil
}
