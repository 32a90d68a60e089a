package correction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

func str(s string) *string { return &s }

func record(op, source string, culture string, yieldDay string) entity.OperationRecord {
	return entity.OperationRecord{
		Date:       "05.09.2025",
		Operation:  op,
		Source:     source,
		Division:   str("АОР"),
		Culture:    str(culture),
		AreaDay:    entity.NumberMeasure(10),
		AreaTotal:  entity.NumberMeasure(100),
		YieldDay:   entity.ParseMeasure(yieldDay),
		YieldTotal: entity.NumberMeasure(5000),
	}
}

type fakeStore struct {
	rows []entity.StoredOperation
	err  error
}

func (f *fakeStore) Insert(_ context.Context, ops []entity.StoredOperation) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, ops...)
	return nil
}

func TestSessionWalksUnresolvedFieldsInOrder(t *testing.T) {
	records := []entity.OperationRecord{
		record("Уборка", "Уборка подсолнечника 10/100", constants.Unresolved, constants.Unresolved),
		record("Пахота", "Пахота 10/100", "Подсолнечник", "0"),
	}
	records[1].Operation = constants.Unresolved

	s, first := NewSession(records, "исходный текст", "Иван")
	require.True(t, NeedsCorrection(records))
	assert.True(t, strings.HasPrefix(first, Intro+"\n\n"))
	assert.Contains(t, first, "Запись 1. Нераспознанные данные: ```\nУборка подсолнечника 10/100```\n\nВведите значение для поля 'Культура':")
	assert.Equal(t, 3, s.Remaining())

	step, err := s.Answer(" Подсолнечник ")
	require.NoError(t, err)
	assert.False(t, step.Done())
	assert.Equal(t, "Запись 1. Нераспознанные данные: ```\nУборка подсолнечника 10/100```\n\nВведите значение для поля 'Вал за день, ц':", step.Prompt)

	step, err = s.Answer("1 250,5")
	require.NoError(t, err)
	assert.Contains(t, step.Prompt, "Запись 2.")
	assert.Contains(t, step.Prompt, "'Операция'")

	step, err = s.Answer("Пахота")
	require.NoError(t, err)
	require.True(t, step.Done())
	assert.Equal(t, 0, s.Remaining())

	rep := step.Report
	require.Len(t, rep.Records, 2)
	assert.Equal(t, "Подсолнечник", *rep.Records[0].Culture)
	assert.InDelta(t, 12.505, rep.Records[0].YieldDay.Value, 1e-9)
	assert.Equal(t, "Пахота", rep.Records[1].Operation)
	assert.Equal(t, "исходный текст", rep.Source)
	assert.Equal(t, "Иван", rep.Author)

	_, err = s.Answer("ещё")
	assert.ErrorIs(t, err, ErrFinished)
}

func TestSessionRejectsEmptyAnswer(t *testing.T) {
	records := []entity.OperationRecord{record("Сев", "x", constants.Unresolved, "0")}
	s, _ := NewSession(records, "", "")

	_, err := s.Answer("   ")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, Pending{Entry: 0, Field: constants.FieldCulture}, cur)
}

func TestSessionDoesNotMutateInput(t *testing.T) {
	records := []entity.OperationRecord{record("Сев", "x", constants.Unresolved, "0")}
	s, _ := NewSession(records, "", "")
	_, err := s.Answer("Пшеница озимая")
	require.NoError(t, err)
	assert.Equal(t, constants.Unresolved, *records[0].Culture)
}

func TestNewSessionWithoutUnresolved(t *testing.T) {
	s, prompt := NewSession([]entity.OperationRecord{record("Сев", "x", "Пшеница", "0")}, "", "")
	assert.Empty(t, prompt)
	_, ok := s.Current()
	assert.False(t, ok)
	assert.False(t, NeedsCorrection([]entity.OperationRecord{record("Сев", "x", "Пшеница", "0")}))
}

func TestFinalizeScalesYieldsForHarvest(t *testing.T) {
	in := []entity.OperationRecord{
		record("Уборка", "src", "Пшеница", "2500"),
		record("Пахота", "src", "Пшеница", "0"),
	}
	out := Finalize(in)

	assert.Empty(t, out[0].Source)
	assert.InDelta(t, 25.0, out[0].YieldDay.Value, 1e-9)
	assert.InDelta(t, 50.0, out[0].YieldTotal.Value, 1e-9)
	assert.InDelta(t, 0.0, out[1].YieldDay.Value, 1e-9)
	assert.Equal(t, "src", in[0].Source)
	assert.InDelta(t, 2500.0, in[0].YieldDay.Value, 1e-9)
}

func TestFinalizeDropsYieldsWithoutHarvest(t *testing.T) {
	out := Finalize([]entity.OperationRecord{record("Сев", "src", "Пшеница", "10")})

	assert.Nil(t, out[0].YieldDay)
	assert.Nil(t, out[0].YieldTotal)
	rep := NewReport(out, "", "")
	assert.NotContains(t, rep.Table, string(constants.FieldYieldDay))
	assert.NotContains(t, rep.Table, string(constants.FieldSource))
	assert.Contains(t, rep.Table, string(constants.FieldAreaDay))
}

func TestReportHTMLAndGroupMessage(t *testing.T) {
	rep := NewReport([]entity.OperationRecord{record("Сев", "src", "Пшеница", "0")}, "Отд <b>12</b> & 3", "Анна <script>")

	assert.True(t, strings.HasPrefix(rep.HTML(), "<pre>"))
	assert.True(t, strings.HasSuffix(rep.HTML(), "</pre>"))
	assert.Contains(t, rep.Table, "05.09.2025")
	assert.Contains(t, rep.Table, "Пшеница")

	msg := rep.GroupMessage()
	assert.True(t, strings.HasPrefix(msg, "Отчёт от Анна "))
	assert.Contains(t, msg, ":\n\n<pre>")
	assert.Contains(t, msg, "</pre>\nИсходный текст:\n\n")
	assert.NotContains(t, msg, "<b>")
	assert.NotContains(t, msg, "<script>")
	assert.Contains(t, msg, "Отд 12 &amp; 3")
}

func TestCommitParsesDates(t *testing.T) {
	rep := NewReport([]entity.OperationRecord{record("Уборка", "src", "Пшеница", "300")}, "", "")
	store := &fakeStore{}

	require.NoError(t, rep.Commit(context.Background(), store))
	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC), *row.Date)
	assert.Equal(t, "АОР", *row.Unit)
	assert.InDelta(t, 3.0, *row.YieldDay, 1e-9)
}

func TestCommitRejectsNonNumericMeasure(t *testing.T) {
	r := record("Сев", "src", "Пшеница", "0")
	r.AreaDay = entity.ParseMeasure("много")
	rep := NewReport([]entity.OperationRecord{r}, "", "")
	store := &fakeStore{}

	err := rep.Commit(context.Background(), store)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodePersistence))
	var conv *entity.ConversionError
	assert.True(t, errors.As(err, &conv))
	assert.Empty(t, store.rows)
}

func TestCommitPropagatesStoreError(t *testing.T) {
	rep := NewReport([]entity.OperationRecord{record("Сев", "src", "Пшеница", "0")}, "", "")

	err := rep.Commit(context.Background(), &fakeStore{err: errors.New("db down")})
	assert.ErrorContains(t, err, "db down")
}
