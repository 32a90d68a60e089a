package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// ImageTable rectifies a photographed table before recognizing it.
type ImageTable struct {
	rect Rectifier
	ocr  OCR
	log  *slog.Logger
}

func NewImageTable(rect Rectifier, engine OCR, logger *slog.Logger) *ImageTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageTable{rect: rect, ocr: engine, log: logger}
}

func (it *ImageTable) Extract(ctx context.Context, path string) (Result, error) {
	scan, err := it.rect.RectifyFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("rectify: %w", err)
	}
	defer func() {
		if err := os.Remove(scan); err != nil {
			it.log.Warn("extract.image.cleanup_failed", "path", scan, "error", err)
		}
	}()

	res, err := it.ocr.Image(ctx, scan)
	if err != nil {
		return Result{}, err
	}
	it.log.Debug("extract.image.ocr", "path", path, "confidence", res.Confidence)
	return Result{Text: res.Text, Method: res.Method, Pages: 1, Warnings: res.Warnings}, nil
}
