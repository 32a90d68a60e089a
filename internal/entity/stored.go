package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// StoredOperation is a persisted row of the operations table.
type StoredOperation struct {
	ID         int64
	Date       *time.Time
	Unit       *string
	Operation  string
	Culture    *string
	AreaDay    *float64
	AreaTotal  *float64
	YieldDay   *float64
	YieldTotal *float64
}

// ConversionError names the record field that cannot be stored as typed.
type ConversionError struct {
	Index int
	Field constants.Field
	Value string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("record %d: field %q has value %q that cannot be stored", e.Index+1, e.Field, e.Value)
}

// ToStored converts finalized records into rows: dates are parsed from
// day-month-year and measures must be numeric.
func ToStored(records []OperationRecord) ([]StoredOperation, error) {
	out := make([]StoredOperation, 0, len(records))
	for i, r := range records {
		row := StoredOperation{
			Operation: r.Operation,
			Unit:      r.Division,
			Culture:   r.Culture,
		}
		if d := strings.TrimSpace(r.Date); d != "" {
			t, err := time.Parse(constants.DateLayout, d)
			if err != nil {
				return nil, &ConversionError{Index: i, Field: constants.FieldDate, Value: r.Date}
			}
			row.Date = &t
		}
		targets := map[constants.Field]**float64{
			constants.FieldAreaDay:    &row.AreaDay,
			constants.FieldAreaTotal:  &row.AreaTotal,
			constants.FieldYieldDay:   &row.YieldDay,
			constants.FieldYieldTotal: &row.YieldTotal,
		}
		for f, dst := range targets {
			m := r.Measure(f)
			if m == nil {
				continue
			}
			if !m.IsNumber() {
				return nil, &ConversionError{Index: i, Field: f, Value: m.String()}
			}
			v := m.Value
			*dst = &v
		}
		out = append(out, row)
	}
	return out, nil
}

// Labels renders the row keyed by display labels, with "id" first.
func (s StoredOperation) Labels() map[string]any {
	out := map[string]any{
		"id":                              s.ID,
		string(constants.FieldOperation):  s.Operation,
		string(constants.FieldDate):       nil,
		string(constants.FieldDivision):   s.Unit,
		string(constants.FieldCulture):    s.Culture,
		string(constants.FieldAreaDay):    s.AreaDay,
		string(constants.FieldAreaTotal):  s.AreaTotal,
		string(constants.FieldYieldDay):   s.YieldDay,
		string(constants.FieldYieldTotal): s.YieldTotal,
	}
	if s.Date != nil {
		out[string(constants.FieldDate)] = s.Date.Format(constants.DateLayout)
	}
	return out
}
