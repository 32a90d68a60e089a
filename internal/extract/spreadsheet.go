package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// Spreadsheet renders every non-empty sheet as a markdown table.
// Legacy .xls files are converted to xlsx with LibreOffice first.
type Spreadsheet struct {
	ocr OCR
	log *slog.Logger
}

func NewSpreadsheet(engine OCR, logger *slog.Logger) *Spreadsheet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spreadsheet{ocr: engine, log: logger}
}

func (s *Spreadsheet) Extract(ctx context.Context, path string) (Result, error) {
	if constants.NormalizeExt(filepath.Ext(path)) == "xls" {
		dir, err := os.MkdirTemp("", "agro-xls-*")
		if err != nil {
			return Result{}, err
		}
		defer os.RemoveAll(dir)
		if path, err = s.ocr.Convert(ctx, path, "xlsx", dir); err != nil {
			return Result{}, err
		}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn("extract.spreadsheet.close_failed", "path", path, "error", err)
		}
	}()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return Result{}, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rows = trimRows(rows)
		if len(rows) == 0 {
			continue
		}
		table := markdownTable(rows)
		if len(sheets) > 1 {
			table = "Лист: " + sheet + "\n" + table
		}
		parts = append(parts, table)
	}
	if len(parts) == 0 {
		return Result{}, fmt.Errorf("workbook %s has no data", filepath.Base(path))
	}
	return Result{Text: strings.Join(parts, "\n\n"), Method: "spreadsheet", Pages: len(parts)}, nil
}

// trimRows drops blank rows and pads the rest to a common width.
func trimRows(rows [][]string) [][]string {
	width := 0
	out := rows[:0]
	for _, row := range rows {
		blank := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		if len(row) > width {
			width = len(row)
		}
		out = append(out, row)
	}
	for i, row := range out {
		for len(row) < width {
			row = append(row, "")
		}
		out[i] = row
	}
	return out
}

func markdownTable(rows [][]string) string {
	var b strings.Builder
	tw := tablewriter.NewWriter(&b)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(rows[0])
	tw.AppendBulk(rows[1:])
	tw.Render()
	return strings.TrimRight(b.String(), "\n")
}
