package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/invoice-matcher/internal/adapters/ocr"
	"github.com/eshaffer321/invoice-matcher/internal/adapters/pdf"
	"github.com/eshaffer321/invoice-matcher/internal/adapters/statement"
	"github.com/eshaffer321/invoice-matcher/internal/application/content"
	"github.com/eshaffer321/invoice-matcher/internal/application/corpus"
	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
	"github.com/eshaffer321/invoice-matcher/internal/application/service"
	"github.com/eshaffer321/invoice-matcher/internal/domain/matcher"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/config"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/logging"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

// App holds the wired components shared by the commands
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *storage.Storage // nil when recording is off
	Metrics      *metrics.Metrics
	Content      *content.Service
	OCR          *ocr.Pool // nil when OCR is disabled
	Orchestrator *reconcile.Orchestrator
	Loader       service.InputLoader
}

// AppOptions selects optional components
type AppOptions struct {
	Record bool // open the audit database
}

// NewApp wires the pipeline from cfg. Component loggers derive from logger
// with their own [SYSTEM] tag. Close releases what it opened.
func NewApp(cfg *config.Config, logger *slog.Logger, opts AppOptions) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tolerance, err := cfg.Matching.Tolerance()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	contentOpts := []content.Option{
		content.WithOptions(content.Options{
			MinPageChars:     cfg.Extraction.MinPageChars,
			MinDocumentChars: cfg.Extraction.MinDocumentChars,
			RenderScale:      cfg.Extraction.RenderScale,
		}),
		content.WithCache(content.NewCache(cfg.Extraction.CacheTTL)),
		content.WithLogger(withSystem(logger, "content")),
		content.WithMetrics(app.Metrics),
	}
	if cfg.OCR.IsEnabled() {
		app.OCR = ocr.NewPool(ocr.NewEngineFactory(ocr.EngineConfig{
			Language:       cfg.OCR.Language,
			TessdataPrefix: cfg.OCR.TessdataPrefix,
		}), cfg.OCR.PoolSize, withSystem(logger, "ocr"))
		contentOpts = append(contentOpts, content.WithRecognizer(app.OCR))
	}
	app.Content = content.NewService(pdf.NewFitzOpener(), contentOpts...)

	indexer := corpus.NewIndexer(app.Content, corpus.Options{
		Workers:             cfg.Indexing.Workers,
		ContentDateFallback: cfg.Extraction.UseContentDate(),
	}, withSystem(logger, "indexer"), app.Metrics)

	orchOpts := []reconcile.Option{
		reconcile.WithCardMarker(cfg.Matching.CardMarker),
		reconcile.WithLogger(withSystem(logger, "reconcile")),
		reconcile.WithMetrics(app.Metrics),
	}
	if app.OCR != nil {
		orchOpts = append(orchOpts, reconcile.WithReleaser(app.OCR))
	}
	if opts.Record {
		store, err := storage.NewStorage(cfg.Storage.DatabasePath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		app.Store = store
		orchOpts = append(orchOpts, reconcile.WithStorage(store))
	}

	app.Orchestrator = reconcile.NewOrchestrator(
		indexer,
		matcher.NewMatcher(matcher.Config{AmountTolerance: tolerance}),
		orchOpts...,
	)
	app.Loader = service.NewFileInputLoader(
		statement.NewCSVReader(statementColumns(cfg.Statement)),
		cfg.IgnoredPatternsPath,
		logger,
	)
	return app, nil
}

// Close shuts the OCR pool and the database
func (a *App) Close() error {
	var errs []error
	if a.OCR != nil {
		errs = append(errs, a.OCR.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func withSystem(logger *slog.Logger, system string) *slog.Logger {
	return logger.With(logging.SystemKey, system)
}

func statementColumns(s config.StatementConfig) statement.Columns {
	return statement.Columns{
		Delimiter: s.DelimiterRune(),
		Date:      s.Date,
		Reference: s.Reference,
		Label:     s.Label,
		Amount:    s.Amount,
		Debit:     s.Debit,
		Credit:    s.Credit,
		Detail:    s.Detail,
	}
}
