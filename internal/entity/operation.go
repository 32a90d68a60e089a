package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// OperationRecord is one extracted field operation. JSON uses the display
// labels from constants; decoding also accepts the identifier-safe aliases.
type OperationRecord struct {
	Date       string
	Operation  string
	Source     string
	Division   *string
	Culture    *string
	AreaDay    *Measure
	AreaTotal  *Measure
	YieldDay   *Measure
	YieldTotal *Measure
}

// Value returns the textual value of f and whether the field is present.
func (r *OperationRecord) Value(f constants.Field) (string, bool) {
	switch f {
	case constants.FieldDate:
		return r.Date, true
	case constants.FieldOperation:
		return r.Operation, true
	case constants.FieldSource:
		return r.Source, r.Source != ""
	case constants.FieldDivision:
		return derefString(r.Division)
	case constants.FieldCulture:
		return derefString(r.Culture)
	}
	if m := *r.measure(f); m != nil {
		return m.String(), true
	}
	return "", false
}

// Set writes value into f. Numeric fields keep the value as a number when it parses as one.
func (r *OperationRecord) Set(f constants.Field, value string) {
	switch f {
	case constants.FieldDate:
		r.Date = value
	case constants.FieldOperation:
		r.Operation = value
	case constants.FieldSource:
		r.Source = value
	case constants.FieldDivision:
		r.Division = &value
	case constants.FieldCulture:
		r.Culture = &value
	default:
		if p := r.measure(f); p != nil {
			*p = ParseMeasure(value)
		}
	}
}

// Measure returns the area or yield value stored under f.
func (r *OperationRecord) Measure(f constants.Field) *Measure {
	if p := r.measure(f); p != nil {
		return *p
	}
	return nil
}

// SetMeasure replaces the area or yield value stored under f; nil removes it.
func (r *OperationRecord) SetMeasure(f constants.Field, m *Measure) {
	if p := r.measure(f); p != nil {
		*p = m
	}
}

func (r *OperationRecord) measure(f constants.Field) **Measure {
	switch f {
	case constants.FieldAreaDay:
		return &r.AreaDay
	case constants.FieldAreaTotal:
		return &r.AreaTotal
	case constants.FieldYieldDay:
		return &r.YieldDay
	case constants.FieldYieldTotal:
		return &r.YieldTotal
	}
	var none *Measure
	return &none
}

// Unresolved lists the fields holding the unresolved sentinel, in record order.
func (r *OperationRecord) Unresolved() []constants.Field {
	var out []constants.Field
	for _, f := range constants.AllFields() {
		if v, ok := r.Value(f); ok && v == constants.Unresolved {
			out = append(out, f)
		}
	}
	return out
}

func (r OperationRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(f constants.Field, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := marshalNoEscape(string(f))
		if err != nil {
			return err
		}
		val, err := marshalNoEscape(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}
	for _, f := range constants.AllFields() {
		var err error
		switch f {
		case constants.FieldDate:
			err = write(f, r.Date)
		case constants.FieldOperation:
			err = write(f, r.Operation)
		case constants.FieldSource:
			if r.Source != "" {
				err = write(f, r.Source)
			}
		case constants.FieldDivision:
			if r.Division != nil {
				err = write(f, *r.Division)
			}
		case constants.FieldCulture:
			if r.Culture != nil {
				err = write(f, *r.Culture)
			}
		default:
			if m := r.Measure(f); m != nil {
				err = write(f, *m)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *OperationRecord) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	rec, err := RecordFromMap(m)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// RecordFromMap builds a record from a decoded JSON object keyed by labels or
// aliases. Unknown keys and null values are ignored. It performs no
// vocabulary checks.
func RecordFromMap(m map[string]any) (OperationRecord, error) {
	var rec OperationRecord
	for key, raw := range m {
		f, ok := constants.CanonicalField(key)
		if !ok || raw == nil {
			continue
		}
		if constants.IsNumeric(f) {
			ms, err := measureFromAny(raw)
			if err != nil {
				return OperationRecord{}, fmt.Errorf("field %q: %w", f, err)
			}
			rec.SetMeasure(f, ms)
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return OperationRecord{}, fmt.Errorf("field %q: expected string, got %T", f, raw)
		}
		rec.Set(f, s)
	}
	return rec, nil
}

// String renders the record the way it is shown to the model: a JSON object with display labels.
func (r OperationRecord) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%+v", struct{ Date, Operation string }{r.Date, r.Operation})
	}
	return string(b)
}

func derefString(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ContainsUnresolved reports whether any record holds the unresolved sentinel.
func ContainsUnresolved(records []OperationRecord) bool {
	for i := range records {
		if len(records[i].Unresolved()) > 0 {
			return true
		}
	}
	return false
}

// HasOperation reports whether any record's operation equals op, ignoring case.
func HasOperation(records []OperationRecord, op string) bool {
	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.Operation), op) {
			return true
		}
	}
	return false
}
