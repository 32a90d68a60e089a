package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Measure is an area or yield value: a number, or text the pipeline could
// not turn into one (normally the unresolved sentinel).
type Measure struct {
	Value float64
	Text  string
}

// NumberMeasure returns a numeric measure.
func NumberMeasure(v float64) *Measure {
	return &Measure{Value: v}
}

// ParseMeasure reads s as a number, accepting a decimal comma and
// thousands spaces. Anything else is kept verbatim as text.
func ParseMeasure(s string) *Measure {
	trimmed := strings.TrimSpace(s)
	candidate := strings.ReplaceAll(trimmed, " ", "")
	candidate = strings.ReplaceAll(candidate, "\u00a0", "")
	candidate = strings.Replace(candidate, ",", ".", 1)
	if v, err := strconv.ParseFloat(candidate, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
		return &Measure{Value: v}
	}
	return &Measure{Text: trimmed}
}

func (m *Measure) IsNumber() bool {
	return m != nil && m.Text == ""
}

// Scaled divides a numeric measure by div; text measures are returned unchanged.
func (m *Measure) Scaled(div float64) *Measure {
	if !m.IsNumber() || div == 0 {
		return m
	}
	return &Measure{Value: m.Value / div}
}

func (m *Measure) String() string {
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

func (m Measure) MarshalJSON() ([]byte, error) {
	if m.Text != "" {
		return json.Marshal(m.Text)
	}
	return []byte(strconv.FormatFloat(m.Value, 'f', -1, 64)), nil
}

func (m *Measure) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := measureFromAny(v)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

func measureFromAny(v any) (*Measure, error) {
	switch t := v.(type) {
	case float64:
		return &Measure{Value: t}, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return &Measure{Value: f}, nil
	case int:
		return &Measure{Value: float64(t)}, nil
	case string:
		return ParseMeasure(t), nil
	default:
		return nil, fmt.Errorf("measure: unsupported value %T", v)
	}
}
