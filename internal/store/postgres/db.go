package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/regionscan/regionscan/internal/store/sqlstore"
)

// ApplicationName is reported to the server unless the DSN sets its own.
const ApplicationName = "regionscan"

// Open connects through pgx. Any postgres wire-compatible cluster works, including
// multi-host DSNs produced by dsn.Descriptor.
func Open(ctx context.Context, dsn string, pool sqlstore.PoolConfig) (*sql.DB, error) {
	connConfig, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.InitPool(ctx, stdlib.OpenDB(*connConfig), pool)
	if err != nil {
		return nil, fmt.Errorf("open postgres store %s:%d: %w", connConfig.Host, connConfig.Port, err)
	}
	return db, nil
}

// ParseDSN validates dsn without dialing and fills in the application name.
func ParseDSN(dsn string) (*pgx.ConnConfig, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse store dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = make(map[string]string)
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return connConfig, nil
}
