package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
)

// Registry dispatches a file to its variant by extension.
type Registry struct {
	variants map[constants.FileKind]Extractor
	log      *slog.Logger
}

func NewRegistry(engine OCR, rect Rectifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		variants: map[constants.FileKind]Extractor{
			constants.KindText:        Text{},
			constants.KindOffice:      NewOffice(engine, logger),
			constants.KindImageTable:  NewImageTable(rect, engine, logger),
			constants.KindSpreadsheet: NewSpreadsheet(engine, logger),
		},
		log: logger,
	}
}

// Supports reports whether path has an extension some variant handles.
func (r *Registry) Supports(path string) bool {
	_, ok := constants.KindForExt(filepath.Ext(path))
	return ok
}

func (r *Registry) Extract(ctx context.Context, path string) (Result, error) {
	kind, ok := constants.KindForExt(filepath.Ext(path))
	if !ok {
		return Result{}, common.NewAppError(common.CodeAttachment,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), common.ErrUnsupported)
	}
	start := time.Now()
	r.log.Info("extract.start", "path", path, "kind", kind)

	res, err := r.variants[kind].Extract(ctx, path)
	if err != nil {
		r.log.Error("extract.failed", "path", path, "kind", kind, "error", err)
		return Result{}, common.NewAppError(common.CodeAttachment, "extract attachment text", err)
	}
	res.Kind = kind
	res.Duration = time.Since(start)
	r.log.Info("extract.ok",
		"path", path,
		"kind", kind,
		"method", res.Method,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
