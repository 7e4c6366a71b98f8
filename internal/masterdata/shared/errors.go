package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

// ErrInUse is returned when a record is still referenced by other records.
var ErrInUse = fmt.Errorf("record is still referenced: %w", httpx.ErrConflict)

const foreignKeyViolation = "23503"

// MapWriteError turns foreign-key violations into ErrInUse when deleting a
// referenced row, or a validation error when a write points at a missing row.
func MapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != foreignKeyViolation {
		return err
	}
	if strings.Contains(pgErr.Detail, "is not present in table") {
		return fmt.Errorf("%w: %s references a missing record", httpx.ErrValidation, pgErr.TableName)
	}
	return ErrInUse
}
