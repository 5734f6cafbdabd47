package implementation

import (
	"errors"
	"fmt"

	"devmemory-be/internal/model"
	"devmemory-be/internal/repository/contract"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// translateError maps PostgreSQL unique violations onto contract sentinels.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == model.SessionSingleActiveIndex {
			return contract.ErrActiveSessionExists
		}
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, contract.ErrDuplicate)
	}
	return err
}

func limitTo(n int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if n > 0 {
			return db.Limit(n)
		}
		return db
	}
}
