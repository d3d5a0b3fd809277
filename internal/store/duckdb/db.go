package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/regionscan/regionscan/internal/store/sqlstore"
)

// DefaultSchema is the namespace duckdb creates tables in unless told otherwise.
const DefaultSchema = "main"

// Open opens the database file at path through a single connector, so an empty path
// gives one in-memory database shared by every connection of the pool.
func Open(ctx context.Context, path string, pool sqlstore.PoolConfig) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	db, err := sqlstore.InitPool(ctx, sql.OpenDB(connector), pool)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	return db, nil
}
