package entity

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// ExtractionResult is what a worker returns for one submission: either the
// extracted records or the fixed error text.
type ExtractionResult struct {
	Records       []OperationRecord
	Unprocessable bool
}

// UnprocessableResult is the result carrying constants.ErrorText.
func UnprocessableResult() ExtractionResult {
	return ExtractionResult{Unprocessable: true}
}

// Message is the operator-facing text of an unprocessable result.
func (r ExtractionResult) Message() string {
	if r.Unprocessable {
		return constants.ErrorText
	}
	return ""
}

// MarshalJSON encodes records as a JSON array and the unprocessable result
// as the JSON string of the error text.
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	if r.Unprocessable {
		return marshalNoEscape(constants.ErrorText)
	}
	records := r.Records
	if records == nil {
		records = []OperationRecord{}
	}
	return marshalNoEscape(records)
}

func (r *ExtractionResult) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return fmt.Errorf("extraction result: empty body")
	}
	switch trimmed[0] {
	case '"':
		*r = UnprocessableResult()
		return nil
	case '[':
		var records []OperationRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return fmt.Errorf("extraction result: %w", err)
		}
		*r = ExtractionResult{Records: records}
		return nil
	default:
		return fmt.Errorf("extraction result: unexpected body %q", truncate(string(trimmed), 64))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
