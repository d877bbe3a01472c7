package pgutils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 23: Integrity Constraint Violation
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"

	// Class 3F: Invalid Schema Name
	CodeInvalidSchemaName = "3F000"

	// Class 42: Syntax Error or Access Rule Violation
	CodeUndefinedTable  = "42P01"
	CodeDuplicateTable  = "42P07"
	CodeDuplicateObject = "42710"
)

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return containsErrorCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return containsErrorCode(err, CodeForeignKeyViolation)
}

// IsDuplicateObject reports whether err means the relation or index being
// created already exists (42P07 or 42710).
func IsDuplicateObject(err error) bool {
	return containsErrorCode(err, CodeDuplicateTable) || containsErrorCode(err, CodeDuplicateObject)
}

// IsGraphNotFound reports whether err is AGE complaining that a graph (or the
// schema backing it) does not exist.
func IsGraphNotFound(err error) bool {
	if err == nil {
		return false
	}
	if containsErrorCode(err, CodeInvalidSchemaName) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "graph") && strings.Contains(msg, "does not exist")
}

// SQLState returns the SQLSTATE carried by err, or "" if there is none.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// containsErrorCode checks the SQLSTATE of a wrapped *pgconn.PgError first and
// falls back to searching the error message for the code.
func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if state := SQLState(err); state != "" {
		return state == code
	}
	errStr := err.Error()
	return len(errStr) > 0 && (strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code))
}
