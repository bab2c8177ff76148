package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"catalog/pkg/platform/sentinel"
)

// MapError converts pgx errors to sentinel errors. Context errors and
// anything unrecognised pass through wrapped with the entity name.
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", entity, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, sentinel.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", entity, sentinel.ErrConflict)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", entity, sentinel.ErrNotFound)
		}
	}

	return fmt.Errorf("%s: %w", entity, err)
}
