// Package corpus indexes document handles into dated records for matching.
//
// Documents are independent, so extraction runs on a bounded worker pool.
// Output order follows input order regardless of completion order.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/invoice-matcher/internal/application/content"
	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
)

// Extractor produces content for a document handle
type Extractor interface {
	Extract(ctx context.Context, h documents.Handle) (documents.Content, error)
}

// ProgressFunc is called after each processed document
type ProgressFunc func(done, total int)

// Options configures an Indexer
type Options struct {
	Workers             int  // Default: number of CPUs
	ContentDateFallback bool // date undated file names from their text
}

// Failure is a document dropped because extraction failed
type Failure struct {
	Path  string
	Error string
}

// Result is the indexed corpus. Records holds dated documents only.
type Result struct {
	Records    []documents.Record
	Failed     []Failure
	Undateable []string
	Total      int
}

// Indexer runs content extraction over a corpus
type Indexer struct {
	extractor Extractor
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewIndexer creates an indexer. logger and m may be nil.
func NewIndexer(extractor Extractor, opts Options, logger *slog.Logger, m *metrics.Metrics) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		extractor: extractor,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}
}

type outcome struct {
	record     *documents.Record
	failure    *Failure
	undateable bool
}

// Index processes handles and returns the corpus. On cancellation it stops
// scheduling documents and returns what finished together with ctx.Err().
// Document-level failures never fail the batch.
func (ix *Indexer) Index(ctx context.Context, handles []documents.Handle, progress ProgressFunc) (*Result, error) {
	total := len(handles)
	outcomes := make([]*outcome, total)

	var (
		progressMu sync.Mutex
		done       int
	)
	report := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(ix.opts.Workers)

	for i, h := range handles {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o := ix.indexOne(ctx, h)
			if o != nil {
				outcomes[i] = o
				report()
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Records:    make([]documents.Record, 0, total),
		Failed:     make([]Failure, 0),
		Undateable: make([]string, 0),
		Total:      total,
	}
	for i, o := range outcomes {
		switch {
		case o == nil:
			continue
		case o.failure != nil:
			result.Failed = append(result.Failed, *o.failure)
		case o.undateable:
			result.Undateable = append(result.Undateable, handles[i].Identity())
		default:
			result.Records = append(result.Records, *o.record)
		}
	}

	return result, ctx.Err()
}

// indexOne returns nil when the document was interrupted by cancellation.
// A panic inside the extractor drops only this document.
func (ix *Indexer) indexOne(ctx context.Context, h documents.Handle) (out *outcome) {
	identity := h.Identity()

	defer func() {
		if r := recover(); r != nil {
			out = ix.failed(identity, fmt.Errorf("%w: %s: extractor panic: %v", content.ErrUnreadable, identity, r))
		}
	}()

	c, err := ix.extractor.Extract(ctx, h)
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil
		}
		return ix.failed(identity, err)
	}

	date, source, err := documents.ResolveFileDate(identity, c.Text, ix.opts.ContentDateFallback)
	if err != nil {
		ix.metrics.ObserveDocument(metrics.DocumentUndateable)
		ix.logger.Warn("skipping undateable document", slog.String("path", identity))
		return &outcome{undateable: true}
	}

	record := documents.NewRecord(identity, c)
	record.FileDate = &date
	record.DateSource = source

	ix.metrics.ObserveDocument(metrics.DocumentIndexed)
	ix.logger.Debug("indexed document",
		slog.String("path", identity),
		slog.String("date", date.Format("2006-01-02")),
		slog.String("date_source", string(source)),
		slog.Int("amounts", len(record.Amounts)),
		slog.Bool("used_ocr", record.UsedOCR),
	)
	return &outcome{record: &record}
}

func (ix *Indexer) failed(identity string, err error) *outcome {
	ix.metrics.ObserveDocument(metrics.DocumentFailed)
	ix.logger.Warn("dropping unreadable document",
		slog.String("path", identity),
		slog.String("error", err.Error()),
	)
	return &outcome{failure: &Failure{Path: identity, Error: err.Error()}}
}
