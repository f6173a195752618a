package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/ingestion"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import startups from a YC company CSV export",
	RunE:  runImport,
}

var importFile string

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Path to the CSV export (required)")

	if err := importCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file flag as required: %v", err))
	}

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	f, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", importFile, err)
	}
	defer f.Close()

	ctx := cmd.Context()
	a := &app{}
	if err := openDB(ctx, a); err != nil {
		return err
	}
	defer a.Close()

	res, err := ingestion.NewImporter(a.db, nil).Import(ctx, f)
	if err != nil {
		return err
	}
	return report(res, nil)
}
