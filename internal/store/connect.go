package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/dsn"
	"github.com/regionscan/regionscan/internal/store/duckdb"
	"github.com/regionscan/regionscan/internal/store/postgres"
	"github.com/regionscan/regionscan/internal/store/sqlstore"
)

const defaultPostgresSchema = "public"

// Backend is an opened store: the pooled handle plus the source.Store built on it.
type Backend struct {
	Descriptor dsn.Descriptor
	Schema     string
	DB         *sql.DB
	Store      *sqlstore.Store
}

// Connect opens the store addressed by cfg.Descriptor, picking the driver from the
// descriptor protocol.
func Connect(ctx context.Context, cfg config.StoreConfig, targetPartitions int) (*Backend, error) {
	descriptor := cfg.Descriptor
	if descriptor.Protocol == "" {
		parsed, err := dsn.Parse(cfg.URL)
		if err != nil {
			return nil, err
		}
		descriptor = parsed
	}

	schema := strings.TrimSpace(cfg.Schema)
	pool := sqlstore.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
	var (
		db  *sql.DB
		err error
	)
	switch descriptor.Protocol {
	case dsn.ProtocolPostgres:
		if schema == "" {
			schema = defaultPostgresSchema
		}
		params := cfg.DriverParams()
		params["search_path"] = schema
		db, err = postgres.Open(ctx, descriptor.DSN(cfg.User, cfg.Password, params), pool)
	case dsn.ProtocolDuckDB:
		if schema == "" {
			schema = duckdb.DefaultSchema
		}
		db, err = duckdb.Open(ctx, descriptor.DSN("", "", nil), pool)
	default:
		return nil, fmt.Errorf("unsupported store protocol %q", descriptor.Protocol)
	}
	if err != nil {
		return nil, err
	}

	st, err := sqlstore.New(db, sqlstore.Config{Schema: schema, TargetPartitions: targetPartitions})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{Descriptor: descriptor, Schema: schema, DB: db, Store: st}, nil
}

func (b *Backend) Close() error {
	if b == nil || b.DB == nil {
		return nil
	}
	return b.DB.Close()
}
