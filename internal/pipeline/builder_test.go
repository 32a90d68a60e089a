package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/llm"
	"github.com/LazarevaL/agro-llm-hack/internal/schema"
)

type call struct {
	instruction string
	text        string
}

type scriptedPredictor struct {
	replies []string
	errs    []error
	calls   []call
}

func (s *scriptedPredictor) Predict(_ context.Context, instruction, text string) (string, error) {
	i := len(s.calls)
	s.calls = append(s.calls, call{instruction: instruction, text: text})
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i >= len(s.replies) {
		return "", errors.New("unexpected call")
	}
	return s.replies[i], nil
}

func newTestBuilder(t *testing.T, p llm.Predictor, opts ...Option) (*Builder, *llm.Prompts) {
	t.Helper()
	e := &schema.Entities{
		Types:        []string{"Сев", "Уборка", "Пахота"},
		Cultures:     []string{"Подсолнечник товарный", "Пшеница озимая товарная"},
		Divisions:    []string{"АОР"},
		Subdivisions: []string{"Отд 12"},
	}
	v, err := schema.NewValidator(e)
	require.NoError(t, err)
	prompts, err := llm.NewPrompts(e)
	require.NoError(t, err)
	prompts = prompts.WithClock(func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) })
	return NewBuilder(p, prompts, v, nil, opts...), prompts
}

const (
	stageOneOK = "```json\n[{\"Дата\": \"2024-05-01\", \"Операция\": \"Сев\", \"Культура\": \"Подсолнечник товарный\", \"Данные\": \"Сев подсолнечника Отд 12 40/340\"}]\n```"
	stageTwoOK = `[{"Дата": "01.05.2024", "Операция": "Сев", "Культура": "Подсолнечник товарный", "Данные": "Сев подсолнечника Отд 12 40/340", "Подразделение": "Отд 12", "За_день_га": 40, "С_начала_операции_га": 340, "Вал_за_день_ц": 0, "Вал_с_начала_ц": 0}]`
)

func TestBuildTwoStages(t *testing.T) {
	p := &scriptedPredictor{replies: []string{stageOneOK, stageTwoOK}}
	b, prompts := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "Сев подсолнечника Отд 12 40/340")
	require.NoError(t, err)
	require.False(t, res.Unprocessable)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "01.05.2024", rec.Date)
	assert.Equal(t, "Отд 12", *rec.Division)
	assert.InDelta(t, 40, rec.AreaDay.Value, 1e-9)
	assert.InDelta(t, 340, rec.AreaTotal.Value, 1e-9)

	require.Len(t, p.calls, 2)
	initial, _ := prompts.Initial()
	final, _ := prompts.Final()
	assert.Equal(t, initial, p.calls[0].instruction)
	assert.Equal(t, "Сев подсолнечника Отд 12 40/340", p.calls[0].text)
	assert.Equal(t, final, p.calls[1].instruction)
	assert.Contains(t, p.calls[1].text, `"Дата":"01.05.2024"`, "ISO date reformatted before stage two")
}

func TestBuildStageTwoCallsOncePerRecord(t *testing.T) {
	stageOne := `[{"Дата":"01.05.2024","Операция":"Сев","Данные":"a"},{"Дата":"01.05.2024","Операция":"Пахота","Данные":"b"}]`
	two := func(op, src string) string {
		return `[{"Дата":"01.05.2024","Операция":"` + op + `","Данные":"` + src + `","За_день_га":1,"С_начала_операции_га":2,"Вал_за_день_ц":0,"Вал_с_начала_ц":0}]`
	}
	p := &scriptedPredictor{replies: []string{stageOne, two("Сев", "a"), two("Пахота", "b")}}
	b, _ := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "report")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Сев", res.Records[0].Operation)
	assert.Equal(t, "Пахота", res.Records[1].Operation)
	require.Len(t, p.calls, 3)
	assert.Contains(t, p.calls[1].text, `"Данные":"a"`)
	assert.Contains(t, p.calls[2].text, `"Данные":"b"`)
}

func TestBuildRefusalSkipsRepair(t *testing.T) {
	p := &scriptedPredictor{replies: []string{"Отчёт не может быть обработан."}}
	b, _ := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "привет")
	require.NoError(t, err)
	assert.True(t, res.Unprocessable)
	assert.Len(t, p.calls, 1)
}

func TestBuildRepairsBrokenJSONOnce(t *testing.T) {
	broken := `[{"Дата": "01.05.2024", "Операция": "Сев" "Данные": "x"}]`
	fixed := `[{"Дата": "01.05.2024", "Операция": "Сев", "Данные": "x"}]`
	stageTwo := `[{"Дата":"01.05.2024","Операция":"Сев","Данные":"x","За_день_га":1,"С_начала_операции_га":2,"Вал_за_день_ц":0,"Вал_с_начала_ц":0}]`
	p := &scriptedPredictor{replies: []string{broken, fixed, stageTwo}}
	b, prompts := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "report")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	require.Len(t, p.calls, 3)
	fixJSON, _ := prompts.FixJSON(broken)
	assert.Equal(t, fixJSON, p.calls[1].instruction)
	assert.Equal(t, broken, p.calls[1].text)
}

func TestBuildRepairsSchemaFailureWithParsedStructure(t *testing.T) {
	bad := `[{"Дата": "01.05.2024", "Операция": "Сев", "Культура": "Рис", "Данные": "x"}]`
	fixed := `[{"Дата": "01.05.2024", "Операция": "Сев", "Культура": "Не определено", "Данные": "x"}]`
	stageTwo := `[{"Дата":"01.05.2024","Операция":"Сев","Культура":"Не определено","Данные":"x","За_день_га":1,"С_начала_операции_га":2,"Вал_за_день_ц":0,"Вал_с_начала_ц":0}]`
	p := &scriptedPredictor{replies: []string{bad, fixed, stageTwo}}
	b, _ := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "report")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Не определено", *res.Records[0].Culture)

	require.Len(t, p.calls, 3)
	assert.Contains(t, p.calls[1].instruction, `"Культура":"Рис"`)
	assert.Empty(t, p.calls[1].text)
}

func TestBuildFailsAfterRepairBudget(t *testing.T) {
	broken := `[{"Дата": "01.05.2024" "Операция": "Сев"}]`
	p := &scriptedPredictor{replies: []string{broken, broken}}
	b, _ := newTestBuilder(t, p)

	_, err := b.Build(context.Background(), "report")
	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, StageInitial, xerr.Stage)
	assert.Equal(t, KindParseFailed, xerr.Outcome.Kind)
	assert.Equal(t, 1, xerr.Attempts)
	assert.Len(t, p.calls, 2)
}

func TestBuildWithoutRepairs(t *testing.T) {
	bad := `[{"Дата": "01.05.2024", "Операция": "Посев", "Данные": "x"}]`
	p := &scriptedPredictor{replies: []string{bad}}
	b, _ := newTestBuilder(t, p, WithMaxRepairs(0))

	_, err := b.Build(context.Background(), "report")
	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindSchemaFailed, xerr.Outcome.Kind)
	assert.Equal(t, "Операция", xerr.Outcome.Field())
	var fe *schema.FieldError
	assert.ErrorAs(t, err, &fe)
	assert.Len(t, p.calls, 1)
}

func TestBuildMissingNumericFieldIsUnprocessable(t *testing.T) {
	stageOne := `[{"Дата":"01.05.2024","Операция":"Сев","Данные":"x"}]`
	stageTwo := `[{"Дата":"01.05.2024","Операция":"Сев","Данные":"x","За_день_га":1,"С_начала_операции_га":2,"Вал_за_день_ц":0}]`
	p := &scriptedPredictor{replies: []string{stageOne, stageTwo}}
	b, _ := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "report")
	require.NoError(t, err)
	assert.True(t, res.Unprocessable)
}

func TestBuildDoubleEncodedElements(t *testing.T) {
	stageOne := `["{\"Дата\":\"01.05.2024\",\"Операция\":\"Сев\",\"Данные\":\"x\"}"]`
	stageTwo := `[{"Дата":"01.05.2024","Операция":"Сев","Данные":"x","За_день_га":1,"С_начала_операции_га":2,"Вал_за_день_ц":0,"Вал_с_начала_ц":0}]`
	p := &scriptedPredictor{replies: []string{stageOne, stageTwo}}
	b, _ := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "report")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
}

func TestBuildEmptyFirstStageIsUnprocessable(t *testing.T) {
	p := &scriptedPredictor{replies: []string{"[]"}}
	b, _ := newTestBuilder(t, p)

	res, err := b.Build(context.Background(), "report")
	require.NoError(t, err)
	assert.True(t, res.Unprocessable)
	assert.Len(t, p.calls, 1)
}

func TestBuildInferenceFailure(t *testing.T) {
	p := &scriptedPredictor{errs: []error{errors.New("connection reset")}}
	b, _ := newTestBuilder(t, p)

	_, err := b.Build(context.Background(), "report")
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeInference))
}

func TestDecodeKeepsUnparsableDates(t *testing.T) {
	v, err := decode(`[{"Дата":"вчера"},{"Дата":"2024-05-01T08:30:00"}]`)
	require.NoError(t, err)
	reformatDates(v)
	list := v.([]any)
	assert.Equal(t, "вчера", list[0].(map[string]any)["Дата"])
	assert.Equal(t, "01.05.2024", list[1].(map[string]any)["Дата"])
}
