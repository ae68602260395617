package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

const maxLabelWidth = 40

// PrintHeader prints what is being reconciled
func PrintHeader(w io.Writer, statementPath, corpusRoot string, folders []string) {
	scope := "all folders"
	if len(folders) > 0 {
		scope = strings.Join(folders, ", ")
	}
	fmt.Fprintf(w, "invoice-matcher: %s against %s (%s)\n\n", statementPath, corpusRoot, scope)
}

// PrintOutcomes prints one line per decided transaction, in statement order
func PrintOutcomes(w io.Writer, outcomes []reconcile.Outcome, onlyUnmatched bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tDATE\tAMOUNT\tSTATUS\tSTRATEGY\tDOCUMENT\tLABEL")
	for _, o := range outcomes {
		if onlyUnmatched && o.Status != reconcile.StatusUnmatched {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Reference,
			dayOrDash(o.StatementDate),
			o.Amount,
			statusLabel(o),
			orDash(string(o.Strategy)),
			orDash(o.DocumentPath),
			truncate(o.Label, maxLabelWidth),
		)
	}
	_ = tw.Flush()
}

// PrintSummary prints run counts and, when stats is set, all-time totals
func PrintSummary(w io.Writer, result *reconcile.Result, stats *storage.Stats) {
	c := result.Counts
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Documents: %d indexed, %d failed, %d undateable (of %d)\n",
		c.Indexed, c.Failed, c.Undateable, c.Documents)
	fmt.Fprintf(w, "Transactions: %d matched, %d unmatched, %d ignored, %d unparsable (of %d)\n",
		c.Matched, c.Unmatched, c.Ignored, c.Unparsable, c.Transactions)

	if len(c.ByStrategy) > 0 {
		parts := make([]string, 0, len(c.ByStrategy))
		for strategy, n := range c.ByStrategy {
			parts = append(parts, fmt.Sprintf("%s=%d", strategy, n))
		}
		sort.Strings(parts)
		fmt.Fprintf(w, "Strategies: %s\n", strings.Join(parts, " "))
	}

	if result.Corpus != nil && len(result.Corpus.Failed) > 0 {
		fmt.Fprintln(w, "\nUnreadable documents:")
		for _, f := range result.Corpus.Failed {
			fmt.Fprintf(w, "  - %s: %s\n", f.Path, f.Error)
		}
	}

	fmt.Fprintf(w, "\nRun %s %s in %s\n", result.RunID, result.State, result.Duration().Round(time.Millisecond))

	if stats != nil && stats.TotalRuns > 0 {
		rate := 0.0
		if decided := stats.TotalMatched + stats.TotalUnmatched; decided > 0 {
			rate = float64(stats.TotalMatched) / float64(decided) * 100
		}
		fmt.Fprintf(w, "All-Time Stats: Runs=%d Matched=%d Unmatched=%d Rate=%.1f%%\n",
			stats.TotalRuns, stats.TotalMatched, stats.TotalUnmatched, rate)
	}
}

func statusLabel(o reconcile.Outcome) string {
	if o.Status == reconcile.StatusUnparsable && o.Reason != "" {
		return string(o.Status) + "(" + o.Reason + ")"
	}
	return string(o.Status)
}

func dayOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
