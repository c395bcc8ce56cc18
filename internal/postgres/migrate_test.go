package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/shop?sslmode=disable", migrateURL("postgres://u:p@db:5432/shop?sslmode=disable"))
	assert.Equal(t, "pgx5://db/shop", migrateURL("postgresql://db/shop"))
	assert.Equal(t, "pgx5://db/shop", migrateURL("pgx5://db/shop"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "orders_reference_code_key"}

	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", dup), "orders_reference_code_key"))
	assert.True(t, isUniqueViolation(dup, ""))
	assert.False(t, isUniqueViolation(dup, "bookings_reference_code_key"))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, isUniqueViolation(nil, ""))
}
