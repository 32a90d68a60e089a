package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/repository"
)

type fakeLister struct {
	got repository.Filter
	ops []entity.StoredOperation
	err error
}

func (f *fakeLister) List(_ context.Context, filter repository.Filter) ([]entity.StoredOperation, error) {
	f.got = filter
	return f.ops, f.err
}

func TestExportWritesOneRowPerOperation(t *testing.T) {
	d := time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)
	unit, area := "АОР", 12.5
	repo := &fakeLister{ops: []entity.StoredOperation{
		{ID: 7, Date: &d, Unit: &unit, Operation: "Пахота", AreaDay: &area},
	}}
	s := NewService(repo, nil)

	b, err := s.ExportOperationsXLSX(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, repo.got.From)
	assert.Nil(t, repo.got.To)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "Дата", "Подразделение", "Операция", "Культура", "За день, га", "С начала операции, га", "Вал за день, ц", "Вал с начала, ц"}, rows[0])
	assert.Equal(t, []string{"7", "05.09.2025", "АОР", "Пахота", "", "12.5"}, rows[1])
}

func TestExportOpenEndedWindowEndsToday(t *testing.T) {
	repo := &fakeLister{}
	s := NewService(repo, nil)
	s.now = func() time.Time { return time.Date(2025, 9, 10, 15, 30, 0, 0, time.UTC) }
	from := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	_, err := s.ExportOperationsXLSX(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), *repo.got.From)
	assert.Equal(t, time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC), *repo.got.To)
}

func TestExportPropagatesListError(t *testing.T) {
	s := NewService(&fakeLister{err: errors.New("db down")}, nil)
	_, err := s.ExportOperationsXLSX(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "db down")
}

func TestFileName(t *testing.T) {
	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Отчёт 2025-09-01 - 2025-09-10.xlsx", FileName(&from, &to))
	assert.Equal(t, "Отчёт.xlsx", FileName(nil, &to))
}
