// Package content turns a document handle into searchable text and amounts.
//
// The native PDF text layer is read first. OCR runs only where that layer
// is too thin: page by page for pages under MinPageChars, then once over
// the whole document if the total is still under MinDocumentChars and no
// page needed OCR.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eshaffer321/invoice-matcher/internal/adapters/pdf"
	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/extract"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
)

// ErrUnreadable marks a document that could not be read or parsed at all
var ErrUnreadable = errors.New("document unreadable")

// Recognizer runs OCR on a rendered page image
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Options tunes when OCR kicks in
type Options struct {
	MinPageChars     int     // Default: 10
	MinDocumentChars int     // Default: 20
	RenderScale      float64 // Default: 1.5
}

// DefaultOptions returns the standard thresholds
func DefaultOptions() Options {
	return Options{
		MinPageChars:     10,
		MinDocumentChars: 20,
		RenderScale:      1.5,
	}
}

// Service extracts document content
type Service struct {
	opener  pdf.Opener
	ocr     Recognizer
	cache   *Cache
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithRecognizer enables OCR. Without one, thin documents are flagged as scanned.
func WithRecognizer(r Recognizer) Option {
	return func(s *Service) { s.ocr = r }
}

// WithCache reuses content for documents already seen
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithOptions overrides the thresholds
func WithOptions(o Options) Option {
	return func(s *Service) { s.opts = o }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records OCR page counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a content service reading PDFs with opener
func NewService(opener pdf.Opener, opts ...Option) *Service {
	s := &Service{
		opener: opener,
		opts:   DefaultOptions(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	defaults := DefaultOptions()
	if s.opts.MinPageChars <= 0 {
		s.opts.MinPageChars = defaults.MinPageChars
	}
	if s.opts.MinDocumentChars <= 0 {
		s.opts.MinDocumentChars = defaults.MinDocumentChars
	}
	if s.opts.RenderScale <= 0 {
		s.opts.RenderScale = defaults.RenderScale
	}
	return s
}

// Cache returns the content cache, nil when caching is off
func (s *Service) Cache() *Cache {
	return s.cache
}

// Extract reads h and returns its content. Failures wrap ErrUnreadable,
// except context cancellation which is returned as is.
func (s *Service) Extract(ctx context.Context, h documents.Handle) (documents.Content, error) {
	data, err := h.Read()
	if err != nil {
		return documents.Content{}, fmt.Errorf("%w: read %s: %w", ErrUnreadable, h.Identity(), err)
	}

	var key string
	if s.cache != nil {
		key = Key(data)
		if c, ok := s.cache.Get(key); ok {
			s.metrics.ObserveDocument(metrics.DocumentCached)
			return c, nil
		}
	}

	doc, err := s.opener.Open(data)
	if err != nil {
		return documents.Content{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, h.Identity(), err)
	}
	defer doc.Close()

	c, err := s.extract(ctx, h.Identity(), doc)
	if err != nil {
		return documents.Content{}, err
	}

	if s.cache != nil {
		s.cache.Set(key, c)
	}
	return c, nil
}

func (s *Service) extract(ctx context.Context, identity string, doc pdf.Document) (documents.Content, error) {
	pages := doc.NumPages()
	usedOCR := false

	texts := make([]string, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return documents.Content{}, err
		}

		text, err := doc.PageText(i)
		if err != nil {
			return documents.Content{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, identity, err)
		}

		if s.ocr != nil && charCount(text) < s.opts.MinPageChars {
			if ocrText, ok := s.ocrPage(ctx, identity, doc, i); ok {
				text = ocrText
				usedOCR = true
			}
		}
		texts[i] = text
	}
	if err := ctx.Err(); err != nil {
		return documents.Content{}, err
	}

	finalText := strings.Join(texts, "\n")

	if s.ocr != nil && !usedOCR && charCount(finalText) < s.opts.MinDocumentChars {
		s.logger.Debug("document text layer too thin, running full OCR",
			"path", identity,
			"chars", charCount(finalText))

		ocrTexts := make([]string, 0, pages)
		for i := 0; i < pages; i++ {
			if t, ok := s.ocrPage(ctx, identity, doc, i); ok {
				ocrTexts = append(ocrTexts, t)
			}
		}
		if err := ctx.Err(); err != nil {
			return documents.Content{}, err
		}
		if ocrText := strings.Join(ocrTexts, "\n"); charCount(ocrText) > charCount(finalText) {
			finalText = ocrText
			usedOCR = true
		}
	}

	return documents.Content{
		Text:      finalText,
		Amounts:   extract.Amounts(finalText),
		UsedOCR:   usedOCR,
		IsScanned: !usedOCR && charCount(finalText) < s.opts.MinDocumentChars,
		Pages:     pages,
	}, nil
}

// ocrPage renders and recognizes page i. A failure keeps the native text.
func (s *Service) ocrPage(ctx context.Context, identity string, doc pdf.Document, i int) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}

	img, err := doc.RenderPNG(i, s.opts.RenderScale)
	if err != nil {
		s.metrics.ObserveOCRPage(metrics.OCRFailed)
		s.logger.Debug("page render failed", "path", identity, "page", i+1, "error", err)
		return "", false
	}

	text, err := s.ocr.Recognize(ctx, img)
	if err != nil {
		s.metrics.ObserveOCRPage(metrics.OCRFailed)
		s.logger.Debug("ocr failed", "path", identity, "page", i+1, "error", err)
		return "", false
	}

	s.metrics.ObserveOCRPage(metrics.OCRSucceeded)
	s.logger.Debug("ocr page recognized", "path", identity, "page", i+1, "chars", charCount(text))
	return text, true
}

func charCount(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}
