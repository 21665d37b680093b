// Package ocr extracts text content from measurement report PDFs.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"
)

// Extractor extracts text content from a PDF payload.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// Config selects and configures the extraction provider.
type Config struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg Config) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
