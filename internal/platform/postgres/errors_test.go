package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"catalog/pkg/platform/sentinel"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, MapError(nil, "product"))
	assert.ErrorIs(t, MapError(pgx.ErrNoRows, "product"), sentinel.ErrNotFound)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23505"}, "product"), sentinel.ErrConflict)
	assert.ErrorIs(t, MapError(context.Canceled, "product"), context.Canceled)

	other := errors.New("connection reset by peer")
	mapped := MapError(other, "product")
	assert.ErrorIs(t, mapped, other)
	assert.NotErrorIs(t, mapped, sentinel.ErrNotFound)
	assert.Contains(t, mapped.Error(), "product")
}
