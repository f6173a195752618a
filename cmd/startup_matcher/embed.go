package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/ingress"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed startups by name, or a candidate upload from a JSON file",
	RunE:  runEmbed,
}

var (
	embedStartups  []string
	embedCandidate string
)

func init() {
	embedCmd.Flags().StringSliceVarP(&embedStartups, "startup", "s", nil, "Startup name to embed (repeatable)")
	embedCmd.Flags().StringVar(&embedCandidate, "candidate", "", "Path to a candidate upload JSON document")

	embedCmd.MarkFlagsOneRequired("startup", "candidate")
	embedCmd.MarkFlagsMutuallyExclusive("startup", "candidate")

	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if embedCandidate != "" {
		return embedCandidateFile(ctx, a, embedCandidate)
	}

	embedded := make(map[string]string)
	for _, name := range embedStartups {
		rec, err := a.db.GetStartup(ctx, name)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("startup %q not found", name)
		}
		id, err := a.engine.EmbedStartup(ctx, rec)
		if err != nil {
			return err
		}
		embedded[name] = id
	}
	return report(map[string]any{"embedded": embedded}, nil)
}

func embedCandidateFile(ctx context.Context, a *app, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read candidate file %s: %w", path, err)
	}
	p := &ingress.Processor{Matcher: a.engine}
	if cfg.Ingress.Blob.Bucket != "" {
		blobs, err := newBlobStore(ctx)
		if err != nil {
			return err
		}
		p.Blobs = blobs
	}
	update, err := p.Process(ctx, body)
	if err != nil {
		return err
	}
	return report(update, nil)
}
