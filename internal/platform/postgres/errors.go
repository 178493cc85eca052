package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/mediaq/internal/store"
)

// SQLSTATE codes raised by the media_generation_jobs constraints
const (
	uniqueViolationCode  = "23505" // primary key
	checkViolationCode   = "23514" // asset_type, status, completed output
	notNullViolationCode = "23502"
)

// MapError translates driver errors into store sentinels. The driver error
// stays in the message; anything unrecognised is returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrJobNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolationCode:
		return fmt.Errorf("%w: %v", store.ErrJobExists, err)
	case checkViolationCode:
		return fmt.Errorf("%w: violates %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case notNullViolationCode:
		return fmt.Errorf("%w: %s is required: %v", store.ErrInvalidEntity, pgErr.ColumnName, err)
	}
	return err
}
