package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

func TestParseMeasure(t *testing.T) {
	cases := []struct {
		in      string
		number  bool
		value   float64
		textOut string
	}{
		{in: "12", number: true, value: 12},
		{in: " 12,5 ", number: true, value: 12.5},
		{in: "1 250", number: true, value: 1250},
		{in: constants.Unresolved, textOut: constants.Unresolved},
		{in: "около ста", textOut: "около ста"},
		{in: "inf", textOut: "inf"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			m := ParseMeasure(tc.in)
			assert.Equal(t, tc.number, m.IsNumber())
			if tc.number {
				assert.InDelta(t, tc.value, m.Value, 1e-9)
			} else {
				assert.Equal(t, tc.textOut, m.Text)
			}
		})
	}
}

func TestRecordMarshalKeepsLabelOrder(t *testing.T) {
	div := "АОР"
	rec := OperationRecord{
		Date:      "01.05.2024",
		Operation: "Сев",
		Source:    "сев 10 га",
		Division:  &div,
		AreaDay:   NumberMeasure(10),
		AreaTotal: &Measure{Text: constants.Unresolved},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Дата":"01.05.2024","Операция":"Сев","Данные":"сев 10 га","Подразделение":"АОР","За день, га":10,"С начала операции, га":"Не определено"}`,
		string(b))
}

func TestRecordUnmarshalAcceptsAliases(t *testing.T) {
	raw := `{"Дата":"01.05.2024","Операция":"Уборка","Данные":"x","За_день_га":"15","Вал_с_начала_ц":1200.5,"Культура":null,"extra":1}`

	var rec OperationRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Equal(t, "Уборка", rec.Operation)
	assert.Nil(t, rec.Culture)
	require.NotNil(t, rec.AreaDay)
	assert.InDelta(t, 15, rec.AreaDay.Value, 1e-9)
	require.NotNil(t, rec.YieldTotal)
	assert.InDelta(t, 1200.5, rec.YieldTotal.Value, 1e-9)
	assert.Nil(t, rec.YieldDay)
}

func TestUnresolvedFieldsInRecordOrder(t *testing.T) {
	culture := constants.Unresolved
	rec := OperationRecord{
		Date:       "01.05.2024",
		Operation:  constants.Unresolved,
		Source:     "x",
		Culture:    &culture,
		YieldTotal: &Measure{Text: constants.Unresolved},
	}
	assert.Equal(t,
		[]constants.Field{constants.FieldOperation, constants.FieldCulture, constants.FieldYieldTotal},
		rec.Unresolved())
	assert.True(t, ContainsUnresolved([]OperationRecord{rec}))
}

func TestExtractionResultWireForms(t *testing.T) {
	b, err := json.Marshal(UnprocessableResult())
	require.NoError(t, err)

	var back ExtractionResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Unprocessable)
	assert.Equal(t, constants.ErrorText, back.Message())

	b, err = json.Marshal(ExtractionResult{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &back))
}

func TestToStoredRejectsTextMeasures(t *testing.T) {
	recs := []OperationRecord{{
		Date:      "01.05.2024",
		Operation: "Сев",
		AreaDay:   &Measure{Text: "много"},
	}}
	_, err := ToStored(recs)

	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, constants.FieldAreaDay, convErr.Field)
}

func TestToStoredParsesDayMonthYear(t *testing.T) {
	rows, err := ToStored([]OperationRecord{{Date: "01.05.2024", Operation: "Сев", AreaDay: NumberMeasure(3)}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Date)
	assert.Equal(t, "2024-05-01", rows[0].Date.Format("2006-01-02"))
	assert.InDelta(t, 3, *rows[0].AreaDay, 1e-9)
}
