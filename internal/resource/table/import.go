package table

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-dataport/internal/data/database"
	"github.com/target/mmk-dataport/internal/data/pgxutil"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/filterspec"
)

const (
	rowSavepoint            = "dataport_row"
	unsupportedValueMessage = "Unsupported value."
)

// rowError is a per-row failure that does not abort the batch.
type rowError struct {
	field   string
	message string
}

func (e *rowError) Error() string { return e.message }

// ImportBatch upserts rows by key column inside one transaction. Each row runs in its own savepoint
// so constraint violations fail that row only.
func (r *Resource) ImportBatch(ctx context.Context, rows []model.ImportRow) ([]model.RowOutcome, error) {
	outcomes := make([]model.RowOutcome, 0, len(rows))
	if r.cfg.Import.Disabled {
		for _, row := range rows {
			outcomes = append(outcomes, model.RowOutcome{
				Index:   row.Index,
				Status:  model.RowFailed,
				Message: fmt.Sprintf("Resource %s does not accept imports.", r.cfg.Key),
			})
		}
		return outcomes, nil
	}

	err := pgxutil.InTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		for _, row := range rows {
			outcome, err := r.importRow(ctx, tx, row)
			if err != nil {
				return fmt.Errorf("import row %d: %w", row.Index, err)
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *Resource) importRow(ctx context.Context, tx *sql.Tx, row model.ImportRow) (model.RowOutcome, error) {
	columns, values, rerr := r.rowValues(row.Values)
	if rerr != nil {
		return failedOutcome(row.Index, rerr), nil
	}

	stmt := r.upsertStatement(columns)
	applied := false
	err := pgxutil.WithSavepoint(ctx, tx, rowSavepoint, func() error {
		var one int
		switch err := tx.QueryRowContext(ctx, stmt, values...).Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		if re := asRowError(err); re != nil {
			return failedOutcome(row.Index, re), nil
		}
		return model.RowOutcome{}, err
	}

	if !applied {
		return model.RowOutcome{Index: row.Index, Status: model.RowSkipped}, nil
	}
	return model.RowOutcome{Index: row.Index, Status: model.RowApplied}, nil
}

// asRowError keeps data and constraint errors row-scoped. Anything else aborts the batch.
func asRowError(err error) *rowError {
	mapped := apperrors.MapDBError(err)
	var appErr *apperrors.AppError
	if !errors.As(mapped, &appErr) {
		return nil
	}
	switch appErr.Code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeConflict:
		return &rowError{field: appErr.Field, message: appErr.Message}
	default:
		return nil
	}
}

func failedOutcome(index int, err *rowError) model.RowOutcome {
	return model.RowOutcome{Index: index, Status: model.RowFailed, Field: err.field, Message: err.message}
}

// rowValues picks declared columns from rec in declaration order and coerces them.
func (r *Resource) rowValues(rec model.Record) ([]string, []any, *rowError) {
	var (
		columns []string
		values  []any
	)
	for _, col := range r.cfg.Columns {
		raw, present := rec[col.Name]
		if !present {
			continue
		}
		v, err := coerce(col.Type, raw)
		if err != nil {
			return nil, nil, &rowError{field: col.Name, message: err.Error()}
		}
		columns = append(columns, col.Name)
		values = append(values, v)
	}

	keyIdx := -1
	for i, c := range columns {
		if c == r.cfg.KeyColumn {
			keyIdx = i
		}
	}
	if keyIdx < 0 || values[keyIdx] == nil {
		return nil, nil, &rowError{field: r.cfg.KeyColumn, message: "This field is required."}
	}
	return columns, values, nil
}

func (r *Resource) upsertStatement(columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	var sets, current, excluded []string
	for i, c := range columns {
		q := database.QuoteIdentifier(c)
		quoted[i] = q
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c == r.cfg.KeyColumn {
			continue
		}
		sets = append(sets, q+" = EXCLUDED."+q)
		current = append(current, "t."+q)
		excluded = append(excluded, "EXCLUDED."+q)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) VALUES (%s) ON CONFLICT (%s) ",
		database.QuoteIdentifier(r.cfg.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		database.QuoteIdentifier(r.cfg.KeyColumn),
	)
	if len(sets) == 0 {
		b.WriteString("DO NOTHING RETURNING 1")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	if r.cfg.Import.SkipUnchanged {
		fmt.Fprintf(&b, " WHERE ROW(%s) IS DISTINCT FROM ROW(%s)",
			strings.Join(current, ", "), strings.Join(excluded, ", "))
	}
	b.WriteString(" RETURNING 1")
	return b.String()
}

// coerce converts a decoded cell into a value for a column of type t. Blank strings become NULL
// for non-string columns.
func coerce(t filterspec.FieldType, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case json.Number:
		return coerce(t, v.String())
	case string:
		if t == filterspec.TypeString {
			return v, nil
		}
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		if t == filterspec.TypeDate {
			return parseDate(v)
		}
		parsed, err := filterspec.ParseValue(t, v)
		if err != nil {
			return nil, errors.New(invalidValueMessage(t))
		}
		return parsed, nil
	case bool:
		switch t {
		case filterspec.TypeBoolean:
			return v, nil
		case filterspec.TypeString:
			return strconv.FormatBool(v), nil
		default:
			return nil, errors.New(invalidValueMessage(t))
		}
	case float64, int, int64:
		if t == filterspec.TypeString {
			return fmt.Sprint(v), nil
		}
		return coerce(t, fmt.Sprint(v))
	case time.Time:
		return v, nil
	default:
		return nil, errors.New(unsupportedValueMessage)
	}
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.New(invalidValueMessage(filterspec.TypeDate))
}

func invalidValueMessage(t filterspec.FieldType) string {
	switch t {
	case filterspec.TypeInteger, filterspec.TypeFloat:
		return "Enter a number."
	case filterspec.TypeBoolean:
		return "Enter a valid boolean."
	case filterspec.TypeDate:
		return "Enter a valid date."
	case filterspec.TypeUUID:
		return "Enter a valid UUID."
	default:
		return "Enter a valid value."
	}
}
