package postgres

import (
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// SQLSTATE codes the checks care about.
const (
	ForeignKeyViolation       = "23503"
	UniqueViolation           = "23505"
	InvalidTextRepresentation = "22P02"
	UndefinedFunction         = "42883"
	RaiseException            = "P0001"
)

// SQLState returns the SQLSTATE of a database error, or "" for any other
// error.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsForeignKeyViolation(err error) bool {
	return SQLState(err) == ForeignKeyViolation
}

// IsInvalidEnumValue reports an enum (or other typed column) receiving a
// value it cannot represent.
func IsInvalidEnumValue(err error) bool {
	return SQLState(err) == InvalidTextRepresentation
}
