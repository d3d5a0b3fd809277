package fixtures

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// VersionTable records which fixture sets are loaded.
const VersionTable = "regionscan_fixture_versions"

var fixtureNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// Loader applies versioned fixture scripts (tables plus seed rows) to a store.
// Scripts are portable between the postgres and duckdb backends.
type Loader struct {
	fsys fs.FS
}

func NewLoader() *Loader {
	return &Loader{fsys: embeddedFS}
}

type fixture struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Applied describes one loaded fixture set.
type Applied struct {
	Version int64
	Name    string
}

// Up loads pending fixture sets in version order. steps <= 0 loads all of them.
func (l *Loader) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	fixtures, err := loadFixtures(l.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}
	done := make(map[int64]struct{}, len(applied))
	for _, version := range applied {
		done[version] = struct{}{}
	}

	count := 0
	for _, item := range fixtures {
		if _, ok := done[item.Version]; ok {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		if err := runScript(ctx, db, item.Version, item.UpSQL, markLoaded); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Down unloads the most recent fixture sets. steps <= 0 unloads one.
func (l *Loader) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	fixtures, err := loadFixtures(l.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}

	byVersion := make(map[int64]fixture, len(fixtures))
	for _, item := range fixtures {
		byVersion[item.Version] = item
	}

	count := 0
	for _, version := range applied {
		if count >= steps {
			break
		}
		item, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("loaded fixture %d is missing from source", version)
		}
		if err := runScript(ctx, db, item.Version, item.DownSQL, markUnloaded); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Status lists loaded fixture sets in version order.
func (l *Loader) Status(ctx context.Context, db *sql.DB) ([]Applied, error) {
	fixtures, err := loadFixtures(l.fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	versions, err := appliedVersions(ctx, db, "ASC")
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(fixtures))
	for _, item := range fixtures {
		names[item.Version] = item.Name
	}
	out := make([]Applied, 0, len(versions))
	for _, version := range versions {
		out = append(out, Applied{Version: version, Name: names[version]})
	}
	return out, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + VersionTable + ` (
	version BIGINT PRIMARY KEY,
	loaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure fixture version table: %w", err)
	}
	return nil
}

type marker func(ctx context.Context, tx *sql.Tx, version int64) error

func markLoaded(ctx context.Context, tx *sql.Tx, version int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO `+VersionTable+` (version) VALUES ($1)`, version)
	return err
}

func markUnloaded(ctx context.Context, tx *sql.Tx, version int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+VersionTable+` WHERE version = $1`, version)
	return err
}

func runScript(ctx context.Context, db *sql.DB, version int64, script string, mark marker) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("run fixture %d: %w", version, err)
	}
	if err := mark(ctx, tx, version); err != nil {
		return fmt.Errorf("record fixture %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fixture %d: %w", version, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+VersionTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query fixture versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan fixture version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixture versions: %w", err)
	}
	return versions, nil
}

func loadFixtures(fsys fs.FS) ([]fixture, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	items := map[int64]fixture{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := fixtureNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse fixture version for %q: %w", base, err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %q: %w", entry.Name(), err)
		}

		item := items[version]
		if item.Name != "" && item.Name != matches[2] {
			return nil, fmt.Errorf("fixture %d has conflicting names %q and %q", version, item.Name, matches[2])
		}
		item.Version = version
		item.Name = matches[2]
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	versions := make([]int64, 0, len(items))
	for version := range items {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	out := make([]fixture, 0, len(versions))
	for _, version := range versions {
		item := items[version]
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("fixture %d missing up SQL", version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("fixture %d missing down SQL", version)
		}
		out = append(out, item)
	}
	return out, nil
}
