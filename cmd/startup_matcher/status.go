package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count startups per enrichment status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a := &app{}
	if err := openDB(ctx, a); err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.db.StatusCounts(ctx)
	if err != nil {
		return err
	}
	return report(counts, func(p *observability.Printer) { p.PrintStatusCounts(counts) })
}
