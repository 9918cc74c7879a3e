package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// detailKey pulls the column out of "Key (name)=(Ann) already exists.".
var detailKey = regexp.MustCompile(`Key \(([^)]+)\)=`)

// pgRule turns one family of Postgres errors into an AppError.
type pgRule struct {
	match func(code string) bool
	build func(pgErr *pgconn.PgError) *AppError
}

func sqlstate(want string) func(string) bool {
	return func(code string) bool { return code == want }
}

//nolint:gochecknoglobals // static read-only lookup
var pgRules = []pgRule{
	{sqlstate(pgerrcode.UniqueViolation), func(e *pgconn.PgError) *AppError {
		field := e.ColumnName
		if m := detailKey.FindStringSubmatch(e.Detail); field == "" && m != nil {
			field = m[1]
		}
		return &AppError{Code: ErrCodeConflict, Message: "This value already exists.", Field: field}
	}},
	{sqlstate(pgerrcode.ForeignKeyViolation), func(e *pgconn.PgError) *AppError {
		msg := "Referenced record does not exist."
		if e.TableName != "" {
			msg = "Referenced record does not exist in " + e.TableName + "."
		}
		return &AppError{Code: ErrCodeValidation, Message: msg}
	}},
	{sqlstate(pgerrcode.NotNullViolation), func(e *pgconn.PgError) *AppError {
		return &AppError{Code: ErrCodeValidation, Message: "This field is required.", Field: e.ColumnName}
	}},
	{sqlstate(pgerrcode.CheckViolation), func(e *pgconn.PgError) *AppError {
		return &AppError{Code: ErrCodeValidation, Message: "This field has an invalid value.", Field: e.ColumnName}
	}},
	{pgerrcode.IsDataException, func(e *pgconn.PgError) *AppError {
		return &AppError{Code: ErrCodeValidation, Message: e.Message, Field: e.ColumnName}
	}},
	{pgerrcode.IsTransactionRollback, func(*pgconn.PgError) *AppError {
		return &AppError{Code: ErrCodeConflict, Message: "The row was modified concurrently. Please retry."}
	}},
}

// MapDBError translates driver errors into AppErrors. Context errors become timeout or canceled,
// a missing row becomes not found and Postgres errors follow pgRules, falling back to internal.
// Any other error is returned as is.
func MapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	for _, rule := range pgRules {
		if rule.match(pgErr.Code) {
			appErr := rule.build(pgErr)
			appErr.Cause = pgErr
			return appErr
		}
	}
	return &AppError{Code: ErrCodeInternal, Message: "A database error occurred. Please try again.", Cause: pgErr}
}
