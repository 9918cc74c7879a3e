// Package errors labels errors for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"io/fs"
	"net"
	"reflect"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/target/mmk-dataport/internal/errors"
)

// Classify returns a low-cardinality label for err, the error_class tag on job metrics.
// The first match wins: context errors, application codes, Postgres classes, S3 API codes,
// network and filesystem errors, then the snake_cased type of the innermost error.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "context_canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}

	if code := apperrors.GetCode(err); code != "" {
		return "app_" + string(code)
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return "postgres_" + postgresClass(pgErr.Code)
	}

	var apiErr smithy.APIError
	if goerrors.As(err, &apiErr) {
		return "s3_" + snake(apiErr.ErrorCode())
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return "network"
	}
	if goerrors.Is(err, fs.ErrNotExist) {
		return "file_not_found"
	}

	return typeName(err)
}

func postgresClass(code string) string {
	switch {
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return "integrity"
	case pgerrcode.IsDataException(code):
		return "data"
	case pgerrcode.IsConnectionException(code):
		return "connection"
	case pgerrcode.IsTransactionRollback(code):
		return "rollback"
	default:
		return "other"
	}
}

func typeName(err error) string {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := snake(t.String()); name != "" {
		return name
	}
	return "unknown"
}

// snake turns "PreconditionFailed" into "precondition_failed" and "errors.errorString" into
// "errors_errorstring".
func snake(s string) string {
	if strings.ContainsRune(s, '.') {
		return strings.ToLower(strings.ReplaceAll(s, ".", "_"))
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
