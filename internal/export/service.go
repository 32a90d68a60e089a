package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/repository"
)

// SheetName is the single sheet of an exported workbook.
const SheetName = "Отчет"

// Lister is the read side of the operation store.
type Lister interface {
	List(ctx context.Context, f repository.Filter) ([]entity.StoredOperation, error)
}

// Service produces XLSX bytes for operation exports.
type Service struct {
	repo   Lister
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, now: time.Now, logger: logger}
}

// FileName names the workbook for the window the way operators expect it.
func FileName(from, to *time.Time) string {
	if from != nil && to != nil {
		return fmt.Sprintf("Отчёт %s - %s.xlsx", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return "Отчёт.xlsx"
}

// ExportOperationsXLSX returns an XLSX workbook (as bytes) for the date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all operations.
func (s *Service) ExportOperationsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var filter repository.Filter
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		filter.From = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		filter.To = &t
	}
	if filter.From != nil && filter.To == nil {
		today := s.now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		filter.To = &t
	}

	ops, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	headers := []string{
		"id",
		string(constants.FieldDate),
		string(constants.FieldDivision),
		string(constants.FieldOperation),
		string(constants.FieldCulture),
		string(constants.FieldAreaDay),
		string(constants.FieldAreaTotal),
		string(constants.FieldYieldDay),
		string(constants.FieldYieldTotal),
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, op := range ops {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, op.ID)
		if op.Date != nil {
			write(2, op.Date.Format(constants.DateLayout))
		}
		write(3, deref(op.Unit))
		write(4, op.Operation)
		write(5, deref(op.Culture))
		for col, v := range []*float64{op.AreaDay, op.AreaTotal, op.YieldDay, op.YieldTotal} {
			if v != nil {
				write(6+col, *v)
			}
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(SheetName, "B", "B", 12) // date
	_ = f.SetColWidth(SheetName, "C", "C", 22) // division
	_ = f.SetColWidth(SheetName, "D", "E", 28) // operation, culture
	_ = f.SetColWidth(SheetName, "F", "I", 20) // measures

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(ops),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
