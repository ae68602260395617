// Package pdf reads the text layer of PDF documents and rasterizes pages
// for OCR, backed by MuPDF through go-fitz.
package pdf

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// baseDPI is MuPDF's native resolution; a render scale multiplies it.
const baseDPI = 72.0

// Document is an open PDF. Implementations are not safe for concurrent use.
type Document interface {
	NumPages() int
	// PageText returns the native text layer of page i (0-based)
	PageText(i int) (string, error)
	// RenderPNG rasterizes page i at scale × 72 dpi
	RenderPNG(i int, scale float64) ([]byte, error)
	Close() error
}

// Opener opens a document from its raw bytes
type Opener interface {
	Open(data []byte) (Document, error)
}

// FitzOpener opens documents with MuPDF
type FitzOpener struct{}

// NewFitzOpener creates the MuPDF-backed opener
func NewFitzOpener() *FitzOpener {
	return &FitzOpener{}
}

// Open implements Opener
func (o *FitzOpener) Open(data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("open pdf: empty document")
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPages() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) PageText(i int) (string, error) {
	text, err := d.doc.Text(i)
	if err != nil {
		return "", fmt.Errorf("page %d text: %w", i+1, err)
	}
	return text, nil
}

func (d *fitzDocument) RenderPNG(i int, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	img, err := d.doc.ImagePNG(i, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("page %d render: %w", i+1, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
