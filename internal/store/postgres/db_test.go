package postgres

import (
	"context"
	"testing"

	"github.com/regionscan/regionscan/internal/store/sqlstore"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantApp string
		wantErr bool
	}{
		{name: "empty", dsn: "  ", wantErr: true},
		{name: "garbage", dsn: "postgres://host:notaport/db", wantErr: true},
		{name: "default application", dsn: "postgres://u:p@db1:5433/regions?search_path=public", wantApp: ApplicationName},
		{name: "explicit application", dsn: "postgres://u:p@db1/regions?application_name=batch", wantApp: "batch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseDSN(tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDSN(%q) expected error", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDSN() error = %v", err)
			}
			if got := cfg.RuntimeParams["application_name"]; got != tt.wantApp {
				t.Fatalf("application_name = %q, want %q", got, tt.wantApp)
			}
		})
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", sqlstore.PoolConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
