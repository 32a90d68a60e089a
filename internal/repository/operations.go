package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

// Filter narrows List to a date range; nil bounds are open.
type Filter struct {
	From *time.Time
	To   *time.Time
}

type OperationRepository interface {
	Insert(ctx context.Context, ops []entity.StoredOperation) error
	ListAll(ctx context.Context) ([]entity.StoredOperation, error)
	List(ctx context.Context, f Filter) ([]entity.StoredOperation, error)
	UpdateByID(ctx context.Context, id int64, changed map[string]any) (entity.StoredOperation, error)
}

// columns maps display labels to column names. The mixed-case names are
// quoted so Postgres keeps them as created.
var columns = map[constants.Field]string{
	constants.FieldDate:       "date",
	constants.FieldDivision:   "unit",
	constants.FieldOperation:  "operation",
	constants.FieldCulture:    "cultura",
	constants.FieldAreaDay:    `"GA_per_day"`,
	constants.FieldAreaTotal:  `"GA_per_operation"`,
	constants.FieldYieldDay:   "val_per_day",
	constants.FieldYieldTotal: "val_per_operation",
}

const selectColumns = `id, date, unit, operation, cultura, "GA_per_day", "GA_per_operation", val_per_day, val_per_operation`

type operationRepository struct {
	db     *DB
	table  string
	logger *slog.Logger
}

func NewOperationRepository(db *DB, logger *slog.Logger) OperationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &operationRepository{db: db, table: tableName(db.Dialect), logger: logger}
}

func tableName(d Dialect) string {
	if d == DialectPostgres {
		return "reports.generation_info"
	}
	return "generation_info"
}

// rebind rewrites ? placeholders for the dialect.
func (r *operationRepository) rebind(q string) string {
	if r.db.Dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Insert stores all rows in one transaction.
func (r *operationRepository) Insert(ctx context.Context, ops []entity.StoredOperation) error {
	if len(ops) == 0 {
		return nil
	}
	log := r.logger
	if chatID, ok := common.ChatIDFromContext(ctx); ok {
		log = log.With("chat_id", chatID)
	}
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin insert")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, r.rebind(fmt.Sprintf(
		`INSERT INTO %s (date, unit, operation, cultura, "GA_per_day", "GA_per_operation", val_per_day, val_per_operation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, r.table)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, op := range ops {
		if _, err := stmt.ExecContext(ctx,
			op.Date, op.Unit, op.Operation, op.Culture,
			op.AreaDay, op.AreaTotal, op.YieldDay, op.YieldTotal,
		); err != nil {
			log.Error("failed to insert operation", "operation", op.Operation, "error", err)
			return common.WrapError(err, "insert operation")
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit insert")
	}
	log.Info("operations inserted", "count", len(ops))
	return nil
}

func (r *operationRepository) ListAll(ctx context.Context) ([]entity.StoredOperation, error) {
	return r.List(ctx, Filter{})
}

func (r *operationRepository) List(ctx context.Context, f Filter) ([]entity.StoredOperation, error) {
	q := fmt.Sprintf("SELECT %s FROM %s", selectColumns, r.table)
	var where []string
	var args []any
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, *f.To)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := r.db.SQL.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		r.logger.Error("failed to list operations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.StoredOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (r *operationRepository) get(ctx context.Context, id int64) (entity.StoredOperation, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectColumns, r.table)), id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.StoredOperation{}, common.ErrNotFound
	}
	return op, err
}

// UpdateByID writes only the changed fields, keyed by display label, and
// returns the updated row.
func (r *operationRepository) UpdateByID(ctx context.Context, id int64, changed map[string]any) (entity.StoredOperation, error) {
	if len(changed) == 0 {
		return r.get(ctx, id)
	}
	labels := make([]string, 0, len(changed))
	for k := range changed {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	sets := make([]string, 0, len(labels))
	args := make([]any, 0, len(labels)+1)
	for _, label := range labels {
		f := constants.Field(label)
		col, ok := columns[f]
		if !ok {
			return entity.StoredOperation{}, fmt.Errorf("%w: unknown field %q", common.ErrInvalidInput, label)
		}
		v, err := columnValue(f, changed[label])
		if err != nil {
			return entity.StoredOperation{}, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	res, err := r.db.SQL.ExecContext(ctx, r.rebind(fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", r.table, strings.Join(sets, ", "))), args...)
	if err != nil {
		r.logger.Error("failed to update operation", "id", id, "error", err)
		return entity.StoredOperation{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.StoredOperation{}, common.ErrNotFound
	}
	r.logger.Info("operation updated", "id", id, "fields", labels)
	return r.get(ctx, id)
}

// columnValue converts an API value for f into what the column stores.
func columnValue(f constants.Field, v any) (any, error) {
	if v == nil {
		if f == constants.FieldOperation {
			return nil, fmt.Errorf("field %q cannot be empty", f)
		}
		return nil, nil
	}
	switch {
	case f == constants.FieldDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			d, err := time.Parse(constants.DateLayout, strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("field %q: want dd.mm.yyyy, got %q", f, t)
			}
			return d, nil
		}
	case constants.IsNumeric(f):
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			m := entity.ParseMeasure(t)
			if !m.IsNumber() {
				return nil, fmt.Errorf("field %q: %q is not a number", f, t)
			}
			return m.Value, nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("field %q: unsupported value %T", f, v)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (entity.StoredOperation, error) {
	var (
		op                                       entity.StoredOperation
		date                                     sql.NullTime
		unit, culture                            sql.NullString
		areaDay, areaTotal, yieldDay, yieldTotal sql.NullFloat64
	)
	if err := s.Scan(&op.ID, &date, &unit, &op.Operation, &culture, &areaDay, &areaTotal, &yieldDay, &yieldTotal); err != nil {
		return entity.StoredOperation{}, err
	}
	if date.Valid {
		t := date.Time
		op.Date = &t
	}
	op.Unit = nullString(unit)
	op.Culture = nullString(culture)
	op.AreaDay = nullFloat(areaDay)
	op.AreaTotal = nullFloat(areaTotal)
	op.YieldDay = nullFloat(yieldDay)
	op.YieldTotal = nullFloat(yieldTotal)
	return op, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}
