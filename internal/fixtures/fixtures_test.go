package fixtures

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/regionscan/regionscan/internal/store/duckdb"
	"github.com/regionscan/regionscan/internal/store/sqlstore"
)

func TestLoadFixturesSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadFixtures(fsys)
	if err != nil {
		t.Fatalf("loadFixtures() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected fixture order: %+v", items)
	}
	if items[0].Name != "one" || items[1].Name != "two" {
		t.Fatalf("unexpected fixture names: %+v", items)
	}
}

func TestLoadFixturesErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadFixtures(fsys)
	if err == nil {
		t.Fatal("expected error for missing down script")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFixturesRejectsConflictingNames(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_uno.down.sql": {Data: []byte("SELECT -1;")},
	}
	if _, err := loadFixtures(fsys); err == nil {
		t.Fatal("expected error for conflicting fixture names")
	}
}

func TestEmbeddedFixturesArePaired(t *testing.T) {
	items, err := loadFixtures(embeddedFS)
	if err != nil {
		t.Fatalf("loadFixtures() error = %v", err)
	}
	if len(items) < 3 {
		t.Fatalf("len(items) = %d, want at least 3", len(items))
	}
	if !strings.Contains(items[0].UpSQL, `CREATE TABLE "TABLE1"`) {
		t.Fatalf("first fixture does not create TABLE1")
	}
}

func TestLoaderUpDownAgainstDuckDB(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	db, err := duckdb.Open(ctx, "", sqlstore.PoolConfig{})
	if err != nil {
		t.Fatalf("duckdb.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	loader := NewLoader()
	loaded, err := loader.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if loaded != 3 {
		t.Fatalf("Up() loaded %d, want 3", loaded)
	}
	assertRowCount(t, db, `"TABLE2"`, 6)
	assertRowCount(t, db, `"table3"`, 2)
	assertRowCount(t, db, `"REGION_EVENTS"`, 1000)

	again, err := loader.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("second Up() error = %v", err)
	}
	if again != 0 {
		t.Fatalf("second Up() loaded %d, want 0", again)
	}

	unloaded, err := loader.Down(ctx, db, 1)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if unloaded != 1 {
		t.Fatalf("Down() unloaded %d, want 1", unloaded)
	}

	status, err := loader.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status) != 2 || status[1].Name != "array_table" {
		t.Fatalf("Status() = %+v", status)
	}
}

func assertRowCount(t *testing.T, db *sql.DB, table string, want int64) {
	t.Helper()
	var got int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&got); err != nil {
		t.Fatalf("count %s error = %v", table, err)
	}
	if got != want {
		t.Fatalf("count %s = %d, want %d", table, got, want)
	}
}
