package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/observability"
	"github.com/jonathan/startup-matcher/internal/pipeline"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [startup names...]",
	Short: "Find founder contacts for pending startups",
	Long:  "Recovers abandoned passes, then runs the discovery tiers on the named startups (or on pending startups when none are named) and stores the scored results.",
	RunE:  runEnrich,
}

var (
	enrichLimit   int
	enrichForce   bool
	enrichWorkers int
	enrichNoEmbed bool
)

func init() {
	enrichCmd.Flags().IntVarP(&enrichLimit, "limit", "n", 0, "Maximum pending startups to load (default: pipeline.batch_size)")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "Re-run startups that are already completed")
	enrichCmd.Flags().IntVarP(&enrichWorkers, "workers", "w", 0, "Concurrent passes (default: pipeline.workers)")
	enrichCmd.Flags().BoolVar(&enrichNoEmbed, "no-embed", false, "Skip embedding accepted startups")

	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if enrichLimit < 0 {
		return fmt.Errorf("--limit must be non-negative")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openEnrich(ctx, !enrichNoEmbed)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := newOrchestrator(ctx, a)
	if err != nil {
		return err
	}
	runner := newRunner(a.db, orch, a.embedder(), enrichWorkers)

	sum, runErr := runner.Run(ctx, pipeline.RunOptions{Names: args, Limit: enrichLimit, Force: enrichForce})
	if sum != nil {
		if err := report(sum, func(p *observability.Printer) { p.PrintRunSummary(sum) }); err != nil {
			return err
		}
	}
	if runErr != nil {
		return describeFatal(runErr)
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}
