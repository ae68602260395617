package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
	"github.com/eshaffer321/invoice-matcher/internal/application/service"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

// MatchFlags holds the flags of the match command
type MatchFlags struct {
	StatementPath string
	CorpusRoot    string
	Folders       []string
	NoRecord      bool
	OnlyUnmatched bool
}

func newMatchCommand(global *GlobalFlags) *cobra.Command {
	flags := &MatchFlags{}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Reconcile a statement against an invoice folder",
		Example: `  invoice-matcher match --statement releve-2024-03.csv --corpus ~/factures
  invoice-matcher match --statement releve.csv --corpus ~/factures --folder amazon --folder edf`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMatch(cmd, global, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.StatementPath, "statement", "s", "", "Bank statement CSV export")
	f.StringVarP(&flags.CorpusRoot, "corpus", "c", "", "Root folder of invoice PDFs")
	f.StringSliceVarP(&flags.Folders, "folder", "f", nil, "First-level subfolder to include (repeatable, default all)")
	f.BoolVar(&flags.NoRecord, "no-record", false, "Do not write the run to the audit database")
	f.BoolVar(&flags.OnlyUnmatched, "only-unmatched", false, "List unmatched transactions only")
	_ = cmd.MarkFlagRequired("statement")
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func runMatch(cmd *cobra.Command, global *GlobalFlags, flags *MatchFlags) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "cli")

	app, err := NewApp(cfg, logger, AppOptions{Record: !flags.NoRecord})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	in, err := app.Loader(service.ReconcileRequest{
		StatementPath: flags.StatementPath,
		CorpusRoot:    flags.CorpusRoot,
		Folders:       flags.Folders,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	PrintHeader(out, flags.StatementPath, flags.CorpusRoot, flags.Folders)

	result, runErr := app.Orchestrator.Run(ctx, in, reconcile.Options{
		Progress: progressPrinter(cmd.ErrOrStderr()),
	})
	if result == nil {
		return runErr
	}

	PrintOutcomes(out, result.Outcomes, flags.OnlyUnmatched)
	fmt.Fprintln(out)

	var stats *storage.Stats
	if app.Store != nil {
		if s, err := app.Store.GetStats(); err == nil {
			stats = s
		} else {
			logger.Warn("failed to read all-time stats", "error", err)
		}
	}
	PrintSummary(out, result, stats)

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run interrupted after %d of %d transactions", len(result.Outcomes), result.Counts.Transactions)
	}
	return runErr
}

// progressPrinter rewrites one status line on terminals and stays silent
// otherwise so piped output only carries the table.
func progressPrinter(w io.Writer) reconcile.ProgressFunc {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return func(p reconcile.Progress) {
		fmt.Fprintf(w, "\r\033[K[%s] %3.0f%% (%d/%d)", p.State, p.Percent, p.Done, p.Total)
		if p.State.IsTerminal() {
			fmt.Fprint(w, "\r\033[K")
		}
	}
}
