package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Image recognizes the text of one image file.
func (e *Engine) Image(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	txt, warn, err := e.tesseract(ctx, path)
	if err != nil {
		return Result{Method: "image-ocr", Warnings: warn}, err
	}
	txt = Normalize(txt)
	conf := heuristicConfidence(txt)
	e.logger.Info("ocr.image.ok", "path", path, "chars", len(txt), "confidence", conf, "elapsed_ms", time.Since(start).Milliseconds())
	return Result{
		Text:       txt,
		Pages:      1,
		Method:     "image-ocr",
		Language:   e.cfg.TesseractLang,
		Duration:   time.Since(start),
		Warnings:   warn,
		Confidence: conf,
	}, nil
}

func (e *Engine) tesseract(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang> [--psm N] [--tessdata-dir D]
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}

	// minor cleanup of obvious line noise
	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return txt, nil, nil
}

var (
	reDate    = regexp.MustCompile(`\b\d{1,2}[./]\d{1,2}(?:[./]\d{2,4})?\b`)
	reFigures = regexp.MustCompile(`\b\d+\s*/\s*\d+\b|\b\d+[.,]\d+\b`)
	reUnits   = regexp.MustCompile(`(?:^|\P{L})(?:га|ц)(?:\P{L}|$)|отд`)
)

// heuristicConfidence scores how much recognized text looks like a field
// report: dates, paired figures and units each add to a small base.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2)
	if reDate.MatchString(txt) {
		score += 0.2
	}
	if reFigures.MatchString(txt) {
		score += 0.2
	}
	if reUnits.MatchString(strings.ToLower(txt)) {
		score += 0.2
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
