package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/regionscan/regionscan/internal/dsn"
	"github.com/regionscan/regionscan/internal/observability"
)

// Table adapts one store table to the query engine's data-source contract.
type Table struct {
	name   string
	store  Store
	conn   dsn.Descriptor
	logger *slog.Logger

	mu      sync.Mutex
	columns []ColumnInfo
	fields  []Field
}

type Option func(*Table)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithDescriptor records the connection descriptor on every TableHandle the table
// produces.
func WithDescriptor(d dsn.Descriptor) Option {
	return func(t *Table) {
		t.conn = d
	}
}

func NewTable(name string, store Store, opts ...Option) (*Table, error) {
	if _, err := quoteIdent(name); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	t := &Table{
		name:   name,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Table) Name() string {
	return t.name
}

// Schema discovers and translates the table's columns on the first successful call
// and serves the cached result afterwards. Failed discoveries are not cached.
func (t *Table) Schema(ctx context.Context) ([]Field, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fields != nil {
		return append([]Field(nil), t.fields...), nil
	}

	columns, err := t.store.DiscoverSchema(ctx, t.name)
	observability.ObserveSchemaDiscovery(err)
	if err != nil {
		return nil, fmt.Errorf("discover schema for %q: %w", t.name, err)
	}
	fields, err := Translate(columns)
	if err != nil {
		return nil, fmt.Errorf("translate schema for %q: %w", t.name, err)
	}
	t.logger.DebugContext(ctx, "schema discovered",
		slog.String("table", t.name),
		slog.Int("columns", len(fields)),
	)

	t.columns = columns
	t.fields = fields
	return append([]Field(nil), fields...), nil
}

// Columns returns the store's column metadata behind Schema.
func (t *Table) Columns(ctx context.Context) ([]ColumnInfo, error) {
	if _, err := t.Schema(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ColumnInfo(nil), t.columns...), nil
}

// Scan plans one PartitionScan per store partition. The partition list is fetched on
// every call. All scans share one statement. An empty requiredColumns projects the
// full schema.
func (t *Table) Scan(ctx context.Context, requiredColumns []string, predicate Predicate) ([]*PartitionScan, error) {
	schema, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Field, len(schema))
	for _, field := range schema {
		byName[field.Name] = field
	}
	columns := requiredColumns
	if len(columns) == 0 {
		columns = make([]string, 0, len(schema))
		for _, field := range schema {
			columns = append(columns, field.Name)
		}
	}
	fields := make([]Field, 0, len(columns))
	for _, column := range columns {
		field, ok := byName[column]
		if !ok {
			return nil, fmt.Errorf("%w %q in table %q", ErrUnknownColumn, column, t.name)
		}
		fields = append(fields, field)
	}

	stmt, err := BuildStatement(t.name, columns, predicate)
	if err != nil {
		return nil, fmt.Errorf("build statement for %q: %w", t.name, err)
	}

	partitions, err := t.store.ListPartitions(ctx, t.name)
	if err != nil {
		return nil, fmt.Errorf("list partitions for %q: %w", t.name, err)
	}
	observability.ObservePartitionListing(len(partitions))

	handle := TableHandle{
		Table:   t.name,
		Columns: append([]string(nil), columns...),
		Conn:    t.conn,
	}
	scans := make([]*PartitionScan, 0, len(partitions))
	for _, partition := range partitions {
		scans = append(scans, &PartitionScan{
			handle:    handle,
			partition: partition,
			stmt:      stmt,
			fields:    fields,
			store:     t.store,
			logger:    t.logger,
		})
	}
	t.logger.InfoContext(ctx, "scan planned",
		slog.String("table", t.name),
		slog.Int("partitions", len(scans)),
		slog.Int("columns", len(columns)),
		slog.Bool("filtered", predicate != nil),
	)
	return scans, nil
}
