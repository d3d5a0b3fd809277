package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/regionscan/regionscan/internal/source"
)

type Config struct {
	// Schema is the namespace searched in information_schema.
	Schema string
	// TargetPartitions is the number of key ranges requested per partition listing.
	TargetPartitions int
}

// Store implements source.Store over any database/sql driver that exposes
// information_schema and window functions.
type Store struct {
	db               *sql.DB
	schema           string
	targetPartitions int

	// keyColumns caches each table's partitioning key. DiscoverSchema drops the entry,
	// so a table recreated with a different key is picked up on its next discovery.
	keyColumns sync.Map
}

var _ source.Store = (*Store)(nil)

func New(db *sql.DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return nil, fmt.Errorf("schema is required")
	}
	if cfg.TargetPartitions <= 0 {
		cfg.TargetPartitions = 1
	}
	return &Store{db: db, schema: strings.TrimSpace(cfg.Schema), targetPartitions: cfg.TargetPartitions}, nil
}

func (s *Store) DiscoverSchema(ctx context.Context, table string) ([]source.ColumnInfo, error) {
	s.keyColumns.Delete(table)

	query := `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	rows, err := s.db.QueryContext(ctx, query, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]source.ColumnInfo, 0)
	for rows.Next() {
		var name, typeName string
		if err := rows.Scan(&name, &typeName); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		columns = append(columns, source.ColumnInfo{Name: name, Type: TypeCode(typeName), TypeName: typeName})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", source.ErrTableNotFound, s.schema, table)
	}
	return columns, nil
}

// ListPartitions splits the table on its leading primary key column into at most
// TargetPartitions ranges using one NTILE query. Tables without a primary key are
// scanned as a single partition.
func (s *Store) ListPartitions(ctx context.Context, table string) ([]source.Partition, error) {
	key, err := s.keyColumn(ctx, table)
	if err != nil {
		return nil, err
	}
	if key == "" || s.targetPartitions == 1 {
		return []source.Partition{{Table: table, Index: 0, KeyColumn: key}}, nil
	}

	query, err := boundaryQuery(table, key, s.targetPartitions)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query partition boundaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lowers []any
	for rows.Next() {
		var lower any
		if err := rows.Scan(&lower); err != nil {
			return nil, fmt.Errorf("scan partition boundary: %w", err)
		}
		lowers = append(lowers, lower)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partition boundaries: %w", err)
	}

	return partitionsFromBounds(table, key, lowers), nil
}

func (s *Store) OpenPartition(ctx context.Context, handle source.TableHandle, partition source.Partition, stmt source.Statement) (source.Cursor, error) {
	sqlText, args, err := stmt.ForPartition(partition)
	if err != nil {
		return nil, err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("query %s: %w", handle.Table, err)
	}
	return &cursor{Rows: rows, conn: conn}, nil
}

// OpenConnections reports connections currently checked out of the pool.
func (s *Store) OpenConnections() int {
	return s.db.Stats().InUse
}

func (s *Store) keyColumn(ctx context.Context, table string) (string, error) {
	if cached, ok := s.keyColumns.Load(table); ok {
		return cached.(string), nil
	}

	query := `
SELECT kcu.column_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
 AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema = $1
  AND tc.table_name = $2
ORDER BY kcu.ordinal_position
LIMIT 1`

	var key string
	err := s.db.QueryRowContext(ctx, query, s.schema, table).Scan(&key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query primary key: %w", err)
	}
	s.keyColumns.Store(table, key)
	return key, nil
}

func boundaryQuery(table, key string, buckets int) (string, error) {
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	quotedKey, err := quoteIdent(key)
	if err != nil {
		return "", err
	}
	return `
SELECT MIN(k) AS lower_bound
FROM (
  SELECT ` + quotedKey + ` AS k, NTILE(` + strconv.Itoa(buckets) + `) OVER (ORDER BY ` + quotedKey + `) AS bucket
  FROM ` + quotedTable + `
) AS b
GROUP BY bucket
ORDER BY lower_bound`, nil
}

// partitionsFromBounds turns ascending bucket lower bounds into contiguous ranges.
// The first range is open below and the last open above, so rows written after the
// listing still belong to exactly one partition.
func partitionsFromBounds(table, key string, lowers []any) []source.Partition {
	partitions := make([]source.Partition, 0, len(lowers)+1)
	var lower any
	for i := 1; i < len(lowers); i++ {
		upper := lowers[i]
		if upper == nil {
			continue
		}
		partitions = append(partitions, source.Partition{
			Table:     table,
			Index:     len(partitions),
			KeyColumn: key,
			Lower:     lower,
			Upper:     upper,
		})
		lower = upper
	}
	return append(partitions, source.Partition{
		Table:     table,
		Index:     len(partitions),
		KeyColumn: key,
		Lower:     lower,
	})
}

func quoteIdent(name string) (string, error) {
	if name == "" || strings.Contains(name, `"`) {
		return "", &source.InvalidIdentifierError{Identifier: name, Reason: "cannot be quoted"}
	}
	return `"` + name + `"`, nil
}

type cursor struct {
	*sql.Rows
	conn *sql.Conn
}

func (c *cursor) Close() error {
	return errors.Join(c.Rows.Close(), c.conn.Close())
}
