package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/ledongthuc/pdf"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// Office handles text documents. PDFs use their text layer and fall back
// to OCR for scans; everything else goes through LibreOffice HTML export.
type Office struct {
	ocr  OCR
	conv *converter.Converter
	log  *slog.Logger
}

func NewOffice(engine OCR, logger *slog.Logger) *Office {
	if logger == nil {
		logger = slog.Default()
	}
	return &Office{
		ocr: engine,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		log: logger,
	}
}

func (o *Office) Extract(ctx context.Context, path string) (Result, error) {
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "pdf":
		return o.pdf(ctx, path)
	case "html", "htm":
		b, err := os.ReadFile(path)
		if err != nil {
			return Result{}, err
		}
		return o.markdown(string(b))
	}

	dir, err := os.MkdirTemp("", "agro-office-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(dir)

	out, err := o.ocr.Convert(ctx, path, "html", dir)
	if err != nil {
		return Result{}, err
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return Result{}, err
	}
	return o.markdown(string(b))
}

func (o *Office) markdown(html string) (Result, error) {
	md, err := o.conv.ConvertString(html)
	if err != nil {
		return Result{}, fmt.Errorf("html to markdown: %w", err)
	}
	return Result{Text: strings.TrimSpace(md), Method: "office-html", Pages: 1}, nil
}

func (o *Office) pdf(ctx context.Context, path string) (Result, error) {
	text, pages, err := pdfText(path)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: strings.TrimSpace(text), Method: "pdf-text", Pages: pages}, nil
	}
	warn := "pdf has no text layer"
	if err != nil {
		warn = err.Error()
	}
	o.log.Info("extract.pdf.ocr_fallback", "path", path, "reason", warn)

	res, err := o.ocr.PDF(ctx, path)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text:     res.Text,
		Method:   res.Method,
		Pages:    res.Pages,
		Warnings: append([]string{warn}, res.Warnings...),
	}, nil
}

// pdfText reads the embedded text layer.
func pdfText(path string) (text string, pages int, err error) {
	// the reader panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rd); err != nil {
		return "", 0, fmt.Errorf("pdf text: %w", err)
	}
	return buf.String(), r.NumPage(), nil
}
