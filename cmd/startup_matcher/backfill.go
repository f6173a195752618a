package main

import (
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed startups and candidates that have no vector yet",
	RunE:  runBackfill,
}

var backfillLimit int

func init() {
	backfillCmd.Flags().IntVarP(&backfillLimit, "limit", "n", 0, "Maximum records of each kind (default: pipeline.batch_size)")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := newRunner(a.db, nil, a.engine, 0).Backfill(ctx, backfillLimit)
	if res != nil {
		if rerr := report(res, nil); rerr != nil {
			return rerr
		}
	}
	return err
}
