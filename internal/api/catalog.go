package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/regionscan/regionscan/internal/dsn"
	"github.com/regionscan/regionscan/internal/source"
)

// TableCatalog hands out one source.Table per table name so discovered schemas are
// shared across requests. A table is remembered only once its schema resolved.
type TableCatalog struct {
	store      source.Store
	descriptor dsn.Descriptor
	logger     *slog.Logger

	mu     sync.Mutex
	tables map[string]*source.Table
}

func NewTableCatalog(store source.Store, descriptor dsn.Descriptor, logger *slog.Logger) *TableCatalog {
	return &TableCatalog{
		store:      store,
		descriptor: descriptor,
		logger:     logger,
		tables:     map[string]*source.Table{},
	}
}

func (c *TableCatalog) Store() source.Store {
	return c.store
}

func (c *TableCatalog) Table(ctx context.Context, name string) (*source.Table, error) {
	c.mu.Lock()
	table, ok := c.tables[name]
	c.mu.Unlock()
	if ok {
		return table, nil
	}

	table, err := source.NewTable(name, c.store,
		source.WithLogger(c.logger),
		source.WithDescriptor(c.descriptor),
	)
	if err != nil {
		return nil, err
	}
	if _, err := table.Schema(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.tables[name]; ok {
		return existing, nil
	}
	c.tables[name] = table
	return table, nil
}
