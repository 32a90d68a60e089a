package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

// FieldError is a schema failure naming the offending record, field and value.
// Index is -1 when the failure concerns the whole document.
type FieldError struct {
	Index   int
	Field   string
	Value   any
	Message string
}

func (e *FieldError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("schema: %s", e.Message)
	}
	return fmt.Sprintf("schema: record %d field %q value %v: %s", e.Index, e.Field, e.Value, e.Message)
}

// Validator checks decoded model output against the record schema and the
// allowed vocabularies.
type Validator struct {
	entities *Entities
	schema   *jsonschema.Schema
}

// NewValidator compiles the record list schema for e.
func NewValidator(e *Entities) (*Validator, error) {
	b, err := json.Marshal(BuildRecordListSchema(e))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("records.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("records.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{entities: e, schema: compiled}, nil
}

// Validate turns a decoded JSON value into typed records, or fails with a *FieldError.
func (v *Validator) Validate(raw any) ([]entity.OperationRecord, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, &FieldError{Index: -1, Field: "$", Value: raw, Message: fmt.Sprintf("expected a JSON array of records, got %T", raw)}
	}
	if err := v.schema.Validate(list); err != nil {
		return nil, toFieldError(err, list)
	}

	records := make([]entity.OperationRecord, 0, len(list))
	for i, item := range list {
		m, _ := item.(map[string]any)
		rec, err := entity.RecordFromMap(m)
		if err != nil {
			return nil, &FieldError{Index: i, Field: "$", Value: item, Message: err.Error()}
		}
		if err := v.checkVocabulary(i, rec); err != nil {
			return nil, err
		}
		if rec.Division != nil && *rec.Division == "" {
			rec.Division = nil
		}
		if rec.Culture != nil && *rec.Culture == "" {
			rec.Culture = nil
		}
		records = append(records, rec)
	}
	return records, nil
}

func (v *Validator) checkVocabulary(i int, rec entity.OperationRecord) error {
	if !v.entities.Allows(VocabOperation, rec.Operation) {
		return &FieldError{Index: i, Field: string(constants.FieldOperation), Value: rec.Operation, Message: "not in the allowed list"}
	}
	if rec.Culture != nil && *rec.Culture != "" && !v.entities.Allows(VocabCulture, *rec.Culture) {
		return &FieldError{Index: i, Field: string(constants.FieldCulture), Value: *rec.Culture, Message: "not in the allowed list"}
	}
	if rec.Division != nil && *rec.Division != "" && !v.entities.Allows(VocabDivision, *rec.Division) {
		return &FieldError{Index: i, Field: string(constants.FieldDivision), Value: *rec.Division, Message: "not in the allowed list"}
	}
	return nil
}

var reQuoted = regexp.MustCompile(`'([^']+)'`)

func toFieldError(err error, list []any) *FieldError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &FieldError{Index: -1, Field: "$", Message: err.Error()}
	}
	leaf := pickLeaf(ve)

	fe := &FieldError{Index: -1, Field: "$", Message: leaf.Message}
	parts := strings.Split(strings.TrimPrefix(leaf.InstanceLocation, "/"), "/")
	if len(parts) > 0 && parts[0] != "" {
		if idx, convErr := strconv.Atoi(parts[0]); convErr == nil {
			fe.Index = idx
		}
	}
	if len(parts) > 1 {
		fe.Field = unescapePointer(parts[1])
	} else if m := reQuoted.FindStringSubmatch(leaf.Message); m != nil {
		fe.Field = m[1]
	}
	if fe.Index >= 0 && fe.Index < len(list) {
		if obj, ok := list[fe.Index].(map[string]any); ok {
			fe.Value = obj[fe.Field]
		}
	}
	return fe
}

// pickLeaf chooses the most telling leaf failure. Inside an anyOf every
// branch fails, so a vocabulary or pattern miss is preferred over the
// null/const alternatives; otherwise the deepest leaf wins.
func pickLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	var best *jsonschema.ValidationError
	bestRank, bestDepth := -1, -1
	var walk func(e *jsonschema.ValidationError, depth int)
	walk = func(e *jsonschema.ValidationError, depth int) {
		if len(e.Causes) == 0 {
			rank := 0
			switch {
			case strings.HasSuffix(e.KeywordLocation, "/enum"):
				rank = 2
			case strings.HasSuffix(e.KeywordLocation, "/pattern"):
				rank = 1
			}
			if rank > bestRank || (rank == bestRank && depth > bestDepth) {
				best, bestRank, bestDepth = e, rank, depth
			}
			return
		}
		for _, c := range e.Causes {
			walk(c, depth+1)
		}
	}
	walk(ve, 0)
	return best
}

func unescapePointer(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}
