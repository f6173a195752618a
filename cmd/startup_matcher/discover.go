package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/observability"
	"github.com/jonathan/startup-matcher/internal/types"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <company name>",
	Short: "Run the discovery tiers for one company without saving",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscover,
}

var discoverWebsite string

func init() {
	discoverCmd.Flags().StringVar(&discoverWebsite, "website", "", "Company website, when the company is not in the store")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := &app{}
	defer a.Close()

	rec := &types.StartupRecord{Name: args[0], Website: discoverWebsite}
	if discoverWebsite == "" {
		if err := openDB(ctx, a); err != nil {
			return err
		}
		stored, err := a.db.GetStartup(ctx, args[0])
		if err != nil {
			return err
		}
		if stored != nil {
			rec = stored
		}
	}

	orch, err := newOrchestrator(ctx, a)
	if err != nil {
		return err
	}
	res := orch.Discover(ctx, rec)
	return report(res, func(p *observability.Printer) { p.PrintDiscovery(rec.Name, res) })
}
