package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint failure. For
// Postgres errors that name a constraint, it must equal constraint (when set).
// SQLite has no constraint names, so its message is matched instead. A
// gorm.ErrDuplicatedKey carries no constraint and always matches.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		if pg.Code != pgUniqueViolation {
			return false
		}
		return constraint == "" || pg.Constraint == "" || pg.Constraint == constraint
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
