package schema

import (
	"github.com/LazarevaL/agro-llm-hack/constants"
)

// numericPattern accepts "12", "12.5", "12,5" and "1 250".
const numericPattern = `^\s*-?\d[\d ]*([.,]\d+)?\s*$`

// BuildRecordListSchema returns a JSON-Schema (draft 2020-12 subset) for a
// list of operation records as a generic map. Enum lists are fresh copies of
// the vocabularies plus the unresolved sentinel.
func BuildRecordListSchema(e *Entities) map[string]any {
	props := map[string]any{
		string(constants.FieldDate):      map[string]any{"type": "string"},
		string(constants.FieldOperation): map[string]any{"type": "string", "enum": e.Allowed(VocabOperation)},
		string(constants.FieldSource):    map[string]any{"type": "string"},
		string(constants.FieldDivision):  optionalEnum(e.Allowed(VocabDivision)),
		string(constants.FieldCulture):   optionalEnum(e.Allowed(VocabCulture)),
	}
	for _, f := range constants.NumericFields() {
		props[string(f)] = measureProp()
		props[constants.Alias(f)] = measureProp()
	}

	record := map[string]any{
		"type":       "object",
		"properties": props,
		"required": []string{
			string(constants.FieldDate),
			string(constants.FieldOperation),
			string(constants.FieldSource),
		},
	}
	return map[string]any{
		"type":  "array",
		"items": record,
	}
}

// optionalEnum allows null and "" (both mean absent) or a vocabulary member.
func optionalEnum(allowed []string) map[string]any {
	return map[string]any{
		"anyOf": []any{
			map[string]any{"type": "null"},
			map[string]any{"const": ""},
			map[string]any{"type": "string", "enum": allowed},
		},
	}
}

func measureProp() map[string]any {
	return map[string]any{
		"anyOf": []any{
			map[string]any{"type": "null"},
			map[string]any{"type": "number"},
			map[string]any{"type": "string", "pattern": numericPattern},
			map[string]any{"const": constants.Unresolved},
		},
	}
}
