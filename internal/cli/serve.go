package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/invoice-matcher/internal/api"
	"github.com/eshaffer321/invoice-matcher/internal/application/service"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port            int
	CleanupInterval time.Duration
}

func newServeCommand(global *GlobalFlags, version string) *cobra.Command {
	flags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background reconciliation jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), global, flags, version)
		},
	}

	cmd.Flags().IntVarP(&flags.Port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().DurationVar(&flags.CleanupInterval, "cleanup-interval", 10*time.Minute, "How often stale and old jobs are swept")
	return cmd
}

// runServe blocks until SIGINT/SIGTERM, then drains the server and the jobs.
func runServe(ctx context.Context, global *GlobalFlags, flags *ServeFlags, version string) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "api")

	app, err := NewApp(cfg, logger, AppOptions{Record: true})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	reconcileService := service.NewReconcileService(app.Orchestrator, app.Loader, withSystem(logger, "jobs"))
	reconcileService.StartBackgroundCleanup(flags.CleanupInterval)
	defer reconcileService.StopBackgroundCleanup()

	apiCfg := api.DefaultConfig()
	apiCfg.Port = cfg.API.Port
	if flags.Port > 0 {
		apiCfg.Port = flags.Port
	}
	if len(cfg.API.AllowedOrigins) > 0 {
		apiCfg.AllowedOrigins = cfg.API.AllowedOrigins
	}
	apiCfg.Version = version

	server := api.NewServer(apiCfg, app.Store, reconcileService, app.Metrics, logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	for _, job := range reconcileService.ListActiveJobs() {
		if err := reconcileService.CancelReconciliation(job.ID); err != nil && !errors.Is(err, service.ErrNotCancellable) {
			logger.Warn("failed to cancel job", "job_id", job.ID, "error", err)
		}
	}
	reconcileService.Wait()

	logger.Info("server stopped")
	return nil
}
