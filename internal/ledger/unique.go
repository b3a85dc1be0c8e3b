package ledger

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	postgresUniqueViolation     = "23505"
	sqliteConstraintPrimaryKey  = 1555
	sqliteConstraintUnique      = 2067
	sqliteUniqueViolationPrefix = "UNIQUE constraint failed"
)

type sqliteCoder interface {
	Code() int
}

// IsUniqueViolation reports whether err signals a uniqueness constraint violation on
// any of the supported stores.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	var coded sqliteCoder
	if errors.As(err, &coded) {
		switch coded.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return true
		}
	}
	return strings.Contains(err.Error(), sqliteUniqueViolationPrefix)
}
