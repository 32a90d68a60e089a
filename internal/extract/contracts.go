// Package extract turns an uploaded attachment into plain text for the
// extraction pipeline. Every supported file belongs to exactly one variant.
package extract

import (
	"context"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/ocr"
)

// Extractor is one file variant: file -> text.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

type Result struct {
	Text     string
	Kind     constants.FileKind
	Method   string // "text" | "pdf-text" | "pdf-ocr" | "office-html" | "image-ocr" | "spreadsheet"
	Pages    int
	Duration time.Duration
	Warnings []string
}

// OCR is the subset of *ocr.Engine the variants need.
type OCR interface {
	Image(ctx context.Context, path string) (ocr.Result, error)
	PDF(ctx context.Context, path string) (ocr.Result, error)
	Convert(ctx context.Context, path, format, outDir string) (string, error)
}

// Rectifier flattens a photographed table into a binarized scan.
type Rectifier interface {
	RectifyFile(path string) (string, error)
}

// QueryText prefixes the extracted table to the message text the way the
// model expects it.
func QueryText(content, text string) string {
	return "[ТАБЛИЦА]:\n" + content + "\n\n" + text
}
