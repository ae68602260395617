package service

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/eshaffer321/invoice-matcher/internal/adapters/filesystem"
	"github.com/eshaffer321/invoice-matcher/internal/adapters/statement"
	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
)

// NewFileInputLoader reads the statement CSV, walks the corpus for PDFs and
// loads the ignored patterns. The patterns file is re-read per job so edits
// apply without a restart.
func NewFileInputLoader(reader *statement.CSVReader, patternsPath string, logger *slog.Logger) InputLoader {
	return func(req ReconcileRequest) (reconcile.Input, error) {
		rows, err := reader.ReadFile(req.StatementPath)
		if err != nil {
			return reconcile.Input{}, fmt.Errorf("failed to read statement: %w", err)
		}

		handles, err := filesystem.ListDocumentHandles(req.CorpusRoot, req.Folders)
		if err != nil {
			return reconcile.Input{}, fmt.Errorf("failed to list documents: %w", err)
		}

		return reconcile.Input{
			Handles:         handles,
			Transactions:    rows,
			IgnoredPatterns: filesystem.LoadIgnoredPatterns(patternsPath, logger),
			StatementName:   filepath.Base(req.StatementPath),
			CorpusRoot:      req.CorpusRoot,
		}, nil
	}
}
