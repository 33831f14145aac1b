package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation raised
// by Postgres (pgx or lib/pq), gorm's translated error, or SQLite. When
// constraint names are given, the violation must reference one of them. SQLite
// reports "table.column" instead of index names, so callers may pass both.
func IsUniqueViolation(err error, constraints ...string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && matchesAny(pgxErr.ConstraintName, constraints)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && matchesAny(pqErr.Constraint, constraints)
	}

	msg := err.Error()
	if !errors.Is(err, gorm.ErrDuplicatedKey) &&
		!strings.Contains(msg, "duplicate key value") &&
		!strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return matchesAny(msg, constraints)
}

func matchesAny(text string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name != "" && strings.Contains(text, name) {
			return true
		}
	}
	return false
}
