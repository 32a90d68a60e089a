package correction

import (
	"context"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/olekukonko/tablewriter"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

// Button payloads of the accept / reject keyboard.
const (
	CallbackAccept = "final_yes"
	CallbackReject = "final_no"

	AcceptLabel = "Финальный отчёт ✅"
	RejectLabel = "Промежуточный отчёт ⚠️"

	AcceptedReply = "Отчёт записан в сводную таблицу ✅"
	RejectedReply = "Отчёт не записан в сводную таблицу ⚠️"
)

// yieldScale converts the model's kilogram-scale yields to centners.
const yieldScale = 100

// Store persists accepted reports.
type Store interface {
	Insert(ctx context.Context, ops []entity.StoredOperation) error
}

// Report is a finalized set of records ready for the operator's verdict.
type Report struct {
	Records []entity.OperationRecord
	Table   string
	Source  string
	Author  string
}

func NewReport(records []entity.OperationRecord, source, author string) Report {
	final := Finalize(records)
	return Report{Records: final, Table: renderTable(final), Source: source, Author: author}
}

// Finalize drops the source fragments and keeps yields, divided by 100,
// only when some record is a harvest. The input is not modified.
func Finalize(records []entity.OperationRecord) []entity.OperationRecord {
	harvest := entity.HasOperation(records, constants.HarvestOperation)
	out := make([]entity.OperationRecord, len(records))
	for i, r := range records {
		r.Source = ""
		for _, f := range []constants.Field{constants.FieldYieldDay, constants.FieldYieldTotal} {
			if harvest {
				r.SetMeasure(f, r.Measure(f).Scaled(yieldScale))
			} else {
				r.SetMeasure(f, nil)
			}
		}
		out[i] = r
	}
	return out
}

// HTML is the table wrapped for Telegram's HTML parse mode.
func (r Report) HTML() string {
	return "<pre>" + html.EscapeString(r.Table) + "</pre>"
}

// GroupMessage is the copy posted to the supervisors' chat.
func (r Report) GroupMessage() string {
	p := bluemonday.StrictPolicy()
	return "Отчёт от " + p.Sanitize(r.Author) + ":\n\n" + r.HTML() + "\nИсходный текст:\n\n" + p.Sanitize(r.Source)
}

// Commit stores the report's records. Dates are parsed back from dd.mm.yyyy.
func (r Report) Commit(ctx context.Context, store Store) error {
	rows, err := entity.ToStored(r.Records)
	if err != nil {
		return common.NewAppError(common.CodePersistence, "report cannot be stored", err)
	}
	if err := store.Insert(ctx, rows); err != nil {
		return common.NewAppError(common.CodePersistence, "insert report", err)
	}
	return nil
}

// renderTable prints the records as an aligned plain-text table with one
// column per field present in any record.
func renderTable(records []entity.OperationRecord) string {
	var cols []constants.Field
	for _, f := range constants.AllFields() {
		for i := range records {
			if _, ok := records[i].Value(f); ok {
				cols = append(cols, f)
				break
			}
		}
	}
	if len(cols) == 0 {
		return ""
	}

	var b strings.Builder
	tw := tablewriter.NewWriter(&b)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = string(c)
	}
	tw.SetHeader(header)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetBorder(false)
	tw.SetHeaderLine(false)
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator("")
	tw.SetRowSeparator("")
	tw.SetTablePadding(" ")
	tw.SetNoWhiteSpace(true)
	for i := range records {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j], _ = records[i].Value(c)
		}
		tw.Append(row)
	}
	tw.Render()
	return strings.TrimRight(b.String(), "\n")
}
