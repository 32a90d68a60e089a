// Package ocr drives the external document tools: tesseract for images,
// pdftoppm for scanned PDFs and LibreOffice for format conversion.
package ocr

import (
	"log/slog"
	"time"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "rus"
	TessdataDir   string
	PSM           int // 6 suits table-like blocks

	Pdftoppm string // if empty -> "pdftoppm"
	DPI      int    // rasterization DPI for scanned PDFs, default 300
	MaxPages int    // 0 = no limit

	Soffice string // LibreOffice binary; if empty -> "soffice"
}

type Result struct {
	Text       string
	Pages      int
	Method     string // "image-ocr" | "pdf-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the command runner; tests use it to stub binaries.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "rus"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Soffice == "" {
		cfg.Soffice = "soffice"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	e := &Engine{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}
