package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

type memTable struct {
	columns []ColumnInfo
	rows    [][]any
}

// memStore keys every table on its first column, which must hold int values in
// ascending order.
type memStore struct {
	mu          sync.Mutex
	tables      map[string]*memTable
	partitions  int
	schemaErr   error
	failAfter   map[int]int
	openErr     map[int]error
	schemaCalls atomic.Int64
	listCalls   atomic.Int64
	open        atomic.Int64
	lastStmt    Statement
}

func newMemStore(partitions int) *memStore {
	return &memStore{
		tables:     map[string]*memTable{},
		partitions: partitions,
		failAfter:  map[int]int{},
		openErr:    map[int]error{},
	}
}

func (m *memStore) DiscoverSchema(_ context.Context, table string) ([]ColumnInfo, error) {
	m.schemaCalls.Add(1)
	if m.schemaErr != nil {
		return nil, m.schemaErr
	}
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	return append([]ColumnInfo(nil), t.columns...), nil
}

func (m *memStore) ListPartitions(_ context.Context, table string) ([]Partition, error) {
	m.listCalls.Add(1)
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	key := t.columns[0].Name
	if m.partitions <= 1 || len(t.rows) == 0 {
		return []Partition{{Table: table, Index: 0, KeyColumn: key}}, nil
	}

	var bounds []any
	for i := 1; i < m.partitions; i++ {
		at := i * len(t.rows) / m.partitions
		if at == 0 || at >= len(t.rows) {
			continue
		}
		b := t.rows[at][0]
		if len(bounds) > 0 && bounds[len(bounds)-1] == b {
			continue
		}
		bounds = append(bounds, b)
	}

	partitions := make([]Partition, 0, len(bounds)+1)
	var lower any
	for i, upper := range bounds {
		partitions = append(partitions, Partition{Table: table, Index: i, KeyColumn: key, Lower: lower, Upper: upper})
		lower = upper
	}
	partitions = append(partitions, Partition{Table: table, Index: len(bounds), KeyColumn: key, Lower: lower})
	return partitions, nil
}

func (m *memStore) OpenPartition(_ context.Context, handle TableHandle, p Partition, stmt Statement) (Cursor, error) {
	if err := m.openErr[p.Index]; err != nil {
		return nil, err
	}
	t, ok := m.tables[handle.Table]
	if !ok {
		return nil, ErrTableNotFound
	}
	m.mu.Lock()
	m.lastStmt = stmt
	m.mu.Unlock()

	index := map[string]int{}
	for i, column := range t.columns {
		index[column.Name] = i
	}
	var rows [][]any
	for _, row := range t.rows {
		key := row[0].(int)
		if p.Lower != nil && key < p.Lower.(int) {
			continue
		}
		if p.Upper != nil && key >= p.Upper.(int) {
			continue
		}
		projected := make([]any, 0, len(handle.Columns))
		for _, column := range handle.Columns {
			projected = append(projected, row[index[column]])
		}
		rows = append(rows, projected)
	}

	failAt := -1
	if n, ok := m.failAfter[p.Index]; ok {
		failAt = n
	}
	m.open.Add(1)
	return &memCursor{store: m, rows: rows, pos: -1, failAt: failAt}, nil
}

type memCursor struct {
	store  *memStore
	rows   [][]any
	pos    int
	failAt int
	err    error
	closed bool
}

func (c *memCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.failAt >= 0 && c.pos+1 == c.failAt {
		c.err = errors.New("connection reset by peer")
		return false
	}
	c.pos++
	return c.pos < len(c.rows)
}

func (c *memCursor) Scan(dest ...any) error {
	row := c.rows[c.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(row), len(dest))
	}
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (c *memCursor) Err() error {
	return c.err
}

func (c *memCursor) Close() error {
	if !c.closed {
		c.closed = true
		c.store.open.Add(-1)
	}
	return nil
}

// fixtureStore mirrors the integration fixture: TABLE1 with 3 rows, TABLE2 with 6
// rows referencing TABLE1, and the lower-case "table3" with 2 rows.
func fixtureStore(partitions int) *memStore {
	store := newMemStore(partitions)
	store.tables["TABLE1"] = &memTable{
		columns: []ColumnInfo{{Name: "ID", Type: TypeBigInt}, {Name: "COL1", Type: TypeVarChar}},
		rows:    [][]any{{1, "test_row_1"}, {2, "test_row_2"}, {3, "test_row_3"}},
	}
	store.tables["TABLE2"] = &memTable{
		columns: []ColumnInfo{{Name: "ID", Type: TypeBigInt}, {Name: "TABLE1_ID", Type: TypeBigInt}},
		rows:    [][]any{{1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {6, 3}},
	}
	store.tables["table3"] = &memTable{
		columns: []ColumnInfo{{Name: "id", Type: TypeBigInt}, {Name: "col1", Type: TypeVarChar}},
		rows:    [][]any{{1, "foo"}, {2, "bar"}},
	}
	return store
}
