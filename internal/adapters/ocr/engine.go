// Package ocr runs Tesseract over rendered page images.
//
// A Tesseract client is not safe for concurrent use, so engines are handed
// out by a Pool: one engine per concurrent caller, created lazily on first
// need and terminated by Terminate or Close.
package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the Tesseract language pack used for invoices
const DefaultLanguage = "fra"

// Recognizer turns one page image into text
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// Factory creates a fresh engine
type Factory func() (Recognizer, error)

// EngineConfig configures a Tesseract engine
type EngineConfig struct {
	Language       string
	TessdataPrefix string
}

// Engine wraps one gosseract client
type Engine struct {
	client *gosseract.Client
}

// NewEngine creates a Tesseract engine for cfg.Language
func NewEngine(cfg EngineConfig) (*Engine, error) {
	lang := cfg.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language %q: %w", lang, err)
	}

	return &Engine{client: client}, nil
}

// NewEngineFactory returns a Factory building engines from cfg
func NewEngineFactory(cfg EngineConfig) Factory {
	return func() (Recognizer, error) {
		return NewEngine(cfg)
	}
}

// Recognize implements Recognizer
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

// Close terminates the underlying Tesseract API
func (e *Engine) Close() error {
	return e.client.Close()
}
