package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/startup-matcher/internal/observability"
	"github.com/jonathan/startup-matcher/internal/types"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show a candidate's matches, or the startups closest to a text",
	RunE:  runMatch,
}

var (
	matchEmail   string
	matchText    string
	matchRefresh bool
	matchTopK    int
)

func init() {
	matchCmd.Flags().StringVarP(&matchEmail, "email", "e", "", "Candidate email")
	matchCmd.Flags().StringVar(&matchText, "text", "", "Free text to match against startups")
	matchCmd.Flags().BoolVar(&matchRefresh, "refresh", false, "Recompute the candidate's matches before printing")
	matchCmd.Flags().IntVarP(&matchTopK, "top", "k", 0, "Number of startups for --text (default: matching.top_k)")

	matchCmd.MarkFlagsOneRequired("email", "text")
	matchCmd.MarkFlagsMutuallyExclusive("email", "text")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if matchText != "" {
		scored, err := a.engine.MatchText(ctx, matchText, matchTopK)
		if err != nil {
			return err
		}
		return report(scored, nil)
	}

	if matchRefresh {
		c, err := a.db.GetCandidate(ctx, matchEmail)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("candidate %q not found", matchEmail)
		}
		vec, err := a.engine.EmbedCandidate(ctx, c)
		if err != nil {
			return err
		}
		if _, err := a.engine.MatchCandidate(ctx, c.Email, vec); err != nil {
			return err
		}
	}

	matches, err := a.db.ListMatches(ctx, matchEmail)
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []types.MatchRecord{}
	}
	return report(matches, func(p *observability.Printer) { p.PrintMatches(matchEmail, matches) })
}
