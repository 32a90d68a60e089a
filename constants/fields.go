package constants

import "strings"

// Field is the display label of an OperationRecord field. Labels are the
// wire names at every boundary: broker replies, chat tables and the
// persistence mapping.
type Field string

const (
	FieldDate       Field = "Дата"
	FieldOperation  Field = "Операция"
	FieldSource     Field = "Данные"
	FieldDivision   Field = "Подразделение"
	FieldCulture    Field = "Культура"
	FieldAreaDay    Field = "За день, га"
	FieldAreaTotal  Field = "С начала операции, га"
	FieldYieldDay   Field = "Вал за день, ц"
	FieldYieldTotal Field = "Вал с начала, ц"
)

// Record field order, first to last. Correction prompts walk fields in this order.
var allFields = []Field{
	FieldDate,
	FieldOperation,
	FieldSource,
	FieldDivision,
	FieldCulture,
	FieldAreaDay,
	FieldAreaTotal,
	FieldYieldDay,
	FieldYieldTotal,
}

// Identifier-safe aliases for the labels that contain spaces and commas.
var aliases = map[Field]string{
	FieldAreaDay:    "За_день_га",
	FieldAreaTotal:  "С_начала_операции_га",
	FieldYieldDay:   "Вал_за_день_ц",
	FieldYieldTotal: "Вал_с_начала_ц",
}

const (
	// Unresolved marks a value the model could not map to the vocabulary.
	Unresolved = "Не определено"
	// HarvestOperation is the only operation type that carries yield fields.
	HarvestOperation = "Уборка"
	// RefusalPhrase is what the model answers for input with nothing to extract.
	RefusalPhrase = "Отчёт не может быть обработан."
	// ErrorText is the only failure text an operator ever sees for a report.
	ErrorText = "Ваш отчёт не может быть обработан 😭 Попробуйте переформулировать текст или приложить фото таблицы хорошего качества."
	// DateLayout is the day-month-year form of Дата.
	DateLayout = "02.01.2006"
)

func AllFields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// NumericFields are the area and yield fields, in record order.
func NumericFields() []Field {
	return []Field{FieldAreaDay, FieldAreaTotal, FieldYieldDay, FieldYieldTotal}
}

// Alias returns the identifier-safe alias of f, or the label itself when f has none.
func Alias(f Field) string {
	if a, ok := aliases[f]; ok {
		return a
	}
	return string(f)
}

// CanonicalField resolves a label or an alias (case and surrounding space
// insensitive) to its Field.
func CanonicalField(key string) (Field, bool) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return "", false
	}
	for _, f := range allFields {
		if normalized == strings.ToLower(string(f)) || normalized == strings.ToLower(Alias(f)) {
			return f, true
		}
	}
	return "", false
}

// IsNumeric reports whether f holds an area or yield value.
func IsNumeric(f Field) bool {
	_, ok := aliases[f]
	return ok
}
