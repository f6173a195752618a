package main

import (
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Return abandoned in-progress startups to pending",
	RunE:  runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a := &app{}
	if err := openDB(ctx, a); err != nil {
		return err
	}
	defer a.Close()

	names, err := newRunner(a.db, nil, nil, 0).Recover(ctx)
	if err != nil {
		return err
	}
	return report(map[string]any{"recovered": names}, nil)
}
