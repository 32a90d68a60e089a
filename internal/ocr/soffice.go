package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Convert runs LibreOffice headless to turn path into format (e.g. "html",
// "xlsx") inside outDir and returns the converted file's path.
func (e *Engine) Convert(ctx context.Context, path, format, outDir string) (string, error) {
	// soffice --headless --convert-to <format> --outdir <dir> <file>
	_, errb, err := e.runner.Run(ctx, e.cfg.Soffice, "--headless", "--convert-to", format, "--outdir", outDir, path)
	if err != nil {
		return "", fmt.Errorf("soffice convert to %s: %w: %s", format, err, truncate(string(errb), 512))
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ext := format
	if i := strings.IndexByte(ext, ':'); i >= 0 {
		ext = ext[:i]
	}
	out := filepath.Join(outDir, base+"."+ext)
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("soffice produced no output: %w", err)
	}
	e.logger.Debug("ocr.convert.ok", "input", path, "output", out)
	return out, nil
}
