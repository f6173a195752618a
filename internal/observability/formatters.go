// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/startup-matcher/internal/discovery"
	"github.com/jonathan/startup-matcher/internal/pipeline"
	"github.com/jonathan/startup-matcher/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label + ":\n")
	count := min(len(items), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-maxItemsToShow))
	}
}

// PrintRunSummary outputs outcome counts and the startups that did not complete.
func (p *Printer) PrintRunSummary(sum *pipeline.Summary) {
	if sum == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:       %s\n", sum.RunID))
	sb.WriteString(fmt.Sprintf("Startups:  %d\n", len(sum.Reports)))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", sum.Duration.Round(time.Millisecond)))
	if len(sum.Recovered) > 0 {
		sb.WriteString(fmt.Sprintf("Recovered: %d abandoned\n", len(sum.Recovered)))
	}
	sb.WriteString("\n")

	outcomes := []pipeline.Outcome{
		pipeline.OutcomeCompleted, pipeline.OutcomeNeedsReview, pipeline.OutcomeFailed,
		pipeline.OutcomeSkipped, pipeline.OutcomeInterrupted,
	}
	for _, o := range outcomes {
		if n := sum.Counts[o]; n > 0 {
			sb.WriteString(fmt.Sprintf("  %-13s %d\n", o, n))
		}
	}

	var problems []string
	for _, r := range sum.Reports {
		if r.Outcome == pipeline.OutcomeFailed || r.Outcome == pipeline.OutcomeNeedsReview {
			problems = append(problems, fmt.Sprintf("%s (%s)", r.Name, r.Reason))
		}
	}
	if len(problems) > 0 {
		sb.WriteString("\n")
		writeList(&sb, "Needs attention", problems)
	}

	p.printBox("ENRICHMENT RUN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDiscovery outputs what the discovery tiers found for one startup.
func (p *Printer) PrintDiscovery(name string, res *discovery.Result) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Startup:    %s\n", name))
	sb.WriteString(fmt.Sprintf("Accepted:   %t\n", res.Accepted))
	sb.WriteString(fmt.Sprintf("Confidence: %.2f\n\n", res.Confidence))

	for _, a := range res.Attempts {
		status := "no result"
		switch {
		case a.Accepted:
			status = "accepted"
		case a.Err != nil:
			status = a.Err.Error()
		}
		sb.WriteString(fmt.Sprintf("  %-15s %s\n", a.Tier, status))
	}
	sb.WriteString("\n")

	writeList(&sb, "Founders", res.Names)
	writeList(&sb, "Emails", res.Emails)
	writeList(&sb, "LinkedIn", res.LinkedIns)
	if res.Funding != nil {
		sb.WriteString(fmt.Sprintf("Funding: %s %s\n", res.Funding.Stage, res.Funding.Amount))
	}

	p.printBox("FOUNDER DISCOVERY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMatches outputs a candidate's best startups.
func (p *Printer) PrintMatches(email string, matches []types.MatchRecord) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Candidate: %s\n\n", email))
	if len(matches) == 0 {
		sb.WriteString("No startups above the match floor")
	}

	count := min(len(matches), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("#%d  %-38s %.3f\n", i+1, matches[i].StartupName, matches[i].Score))
	}
	if len(matches) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(matches)-maxItemsToShow))
	}

	p.printBox("MATCHES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStatusCounts outputs how many startups sit in each enrichment status.
func (p *Printer) PrintStatusCounts(counts map[types.EnrichmentStatus]int) {
	if len(counts) == 0 {
		return
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	var sb strings.Builder
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("%-14s %d\n", s, counts[types.EnrichmentStatus(s)]))
	}
	p.printBox("STARTUP STATUS", strings.TrimSuffix(sb.String(), "\n"))
}
