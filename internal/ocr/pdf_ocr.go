package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PDF rasterizes every page of a scanned PDF and recognizes each one.
func (e *Engine) PDF(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	tmpDir, err := os.MkdirTemp("", "agro-pp-*")
	if err != nil {
		return Result{}, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("ocr.pdf.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return Result{Method: "pdf-ocr", Warnings: []string{string(errb)}}, fmt.Errorf("pdftoppm: %w", err)
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return Result{Method: "pdf-ocr", Warnings: []string{"pdftoppm produced no images"}}, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, w, err := e.tesseract(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	text := Normalize(b.String())
	e.logger.Info("ocr.pdf.ok", "path", path, "pages", len(matches), "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return Result{
		Text:       text,
		Pages:      len(matches),
		Method:     "pdf-ocr",
		Language:   e.cfg.TesseractLang,
		Duration:   time.Since(start),
		Warnings:   warns,
		Confidence: heuristicConfidence(text),
	}, nil
}
