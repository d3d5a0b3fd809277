package source

import "context"

// Store is the narrow capability the bridge needs from the external store.
type Store interface {
	// DiscoverSchema returns the table's columns in declaration order, or
	// ErrTableNotFound.
	DiscoverSchema(ctx context.Context, table string) ([]ColumnInfo, error)

	// ListPartitions returns the table's current key-range partitions. Boundaries may
	// change between calls.
	ListPartitions(ctx context.Context, table string) ([]Partition, error)

	// OpenPartition runs stmt restricted to partition over a connection owned by the
	// returned cursor. Closing the cursor releases that connection.
	OpenPartition(ctx context.Context, handle TableHandle, partition Partition, stmt Statement) (Cursor, error)
}

// Cursor is a forward-only result set; *sql.Rows satisfies it.
type Cursor interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
