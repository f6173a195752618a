package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/pipeline"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Queue failed and low-quality startups for another pass",
	RunE:  runRetry,
}

var (
	retryLimit uint64
	retryBatch string
)

func init() {
	retryCmd.Flags().Uint64VarP(&retryLimit, "limit", "n", 0, "Maximum startups to reset (default: all)")
	retryCmd.Flags().StringVar(&retryBatch, "batch", "", "Only reset startups from this YC batch, e.g. W21")

	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a := &app{}
	if err := openDB(ctx, a); err != nil {
		return err
	}
	defer a.Close()

	res, err := newRunner(a.db, nil, nil, 0).Retry(ctx, pipeline.RetryOptions{Limit: retryLimit, Batch: retryBatch})
	if err != nil {
		return err
	}
	return report(res, nil)
}
