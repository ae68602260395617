// Package cli implements the invoice-matcher commands.
package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/config"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/logging"
)

// GlobalFlags are shared by every command
type GlobalFlags struct {
	ConfigPath string
	EnvFile    string
	Verbose    bool
	NoColor    bool
}

// NewRootCommand builds the command tree
func NewRootCommand(version string) *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "invoice-matcher",
		Short: "Match bank statement transactions to invoice PDFs",
		Long: `invoice-matcher reads a bank statement export and a folder of invoice PDFs
and pairs each transaction with the document that justifies it, by vendor name,
exact date or closest amount.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file (falls back to environment variables)")
	pf.StringVar(&flags.EnvFile, "env-file", ".env", "Environment file loaded before the configuration")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "Debug logging")
	pf.BoolVar(&flags.NoColor, "no-color", false, "Disable colored log output")

	root.AddCommand(
		newMatchCommand(flags),
		newServeCommand(flags, version),
		newFoldersCommand(),
	)
	return root
}

// loadConfig reads the env file, then the config file or environment
func loadConfig(flags *GlobalFlags) (*config.Config, error) {
	if flags.EnvFile != "" {
		if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := config.LoadOrEnv_WithPath(flags.ConfigPath)
	if flags.Verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	if flags.NoColor {
		cfg.Observability.Logging.NoColor = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, system string) *slog.Logger {
	return logging.NewLoggerTo(os.Stderr, cfg.Observability.Logging).With(logging.SystemKey, system)
}
