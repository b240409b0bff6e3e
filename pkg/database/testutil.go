package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// Mock pools stand in for *pgxpool.Pool in repository and service tests; the
// assertion keeps pgxmock aligned with the DBTX surface those tests inject.
var _ DBTX = (pgxmock.PgxPoolIface)(nil)

// NewMockPool returns a pool backed by scripted SQL expectations. Call
// ExpectationsWereMet at the end of each test.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool()
}
