package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/regionscan/regionscan/internal/source"
)

const columnsQuery = `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

const primaryKeyQuery = `
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

func TestDiscoverSchemaMapsTypes(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 4)

	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).
		WithArgs("public", "TABLE1").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("ID", "bigint").
			AddRow("COL1", "character varying").
			AddRow("AMOUNT", "numeric").
			AddRow("TAGS", "ARRAY"))

	columns, err := store.DiscoverSchema(context.Background(), "TABLE1")
	if err != nil {
		t.Fatalf("DiscoverSchema() error = %v", err)
	}
	want := []source.ColumnInfo{
		{Name: "ID", Type: source.TypeBigInt, TypeName: "bigint"},
		{Name: "COL1", Type: source.TypeVarChar, TypeName: "character varying"},
		{Name: "AMOUNT", Type: source.TypeNumeric, TypeName: "numeric"},
		{Name: "TAGS", Type: source.TypeArray, TypeName: "ARRAY"},
	}
	if len(columns) != len(want) {
		t.Fatalf("len(columns) = %d", len(columns))
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Fatalf("columns[%d] = %+v, want %+v", i, columns[i], want[i])
		}
	}
	assertSQLMock(t, mock)
}

func TestDiscoverSchemaReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 4)

	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).
		WithArgs("public", "TABLE3").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))

	_, err := store.DiscoverSchema(context.Background(), "TABLE3")
	if !errors.Is(err, source.ErrTableNotFound) {
		t.Fatalf("DiscoverSchema() error = %v, want ErrTableNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestListPartitionsBuildsContiguousRanges(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 3)

	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("public", "TABLE2").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("ID"))
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT MIN(k) AS lower_bound
FROM (
  SELECT "ID" AS k, NTILE(3) OVER (ORDER BY "ID") AS bucket
  FROM "TABLE2"
) AS b
GROUP BY bucket
ORDER BY lower_bound`)).
		WillReturnRows(sqlmock.NewRows([]string{"lower_bound"}).AddRow(int64(1)).AddRow(int64(3)).AddRow(int64(5)))

	partitions, err := store.ListPartitions(context.Background(), "TABLE2")
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	if len(partitions) != 3 {
		t.Fatalf("len(partitions) = %d", len(partitions))
	}
	if partitions[0].Lower != nil || partitions[0].Upper != int64(3) {
		t.Fatalf("partitions[0] = %+v", partitions[0])
	}
	if partitions[1].Lower != int64(3) || partitions[1].Upper != int64(5) {
		t.Fatalf("partitions[1] = %+v", partitions[1])
	}
	if partitions[2].Lower != int64(5) || partitions[2].Upper != nil {
		t.Fatalf("partitions[2] = %+v", partitions[2])
	}
	for i, p := range partitions {
		if p.Index != i || p.KeyColumn != "ID" || p.Table != "TABLE2" {
			t.Fatalf("partitions[%d] = %+v", i, p)
		}
	}
	assertSQLMock(t, mock)
}

func TestListPartitionsCachesKeyButNotBoundaries(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 2)

	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("public", "TABLE1").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("ID"))
	mock.ExpectQuery(`SELECT MIN\(k\) AS lower_bound`).
		WillReturnRows(sqlmock.NewRows([]string{"lower_bound"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectQuery(`SELECT MIN\(k\) AS lower_bound`).
		WillReturnRows(sqlmock.NewRows([]string{"lower_bound"}).AddRow(int64(1)).AddRow(int64(3)))

	first, err := store.ListPartitions(context.Background(), "TABLE1")
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	second, err := store.ListPartitions(context.Background(), "TABLE1")
	if err != nil {
		t.Fatalf("ListPartitions() second error = %v", err)
	}
	if first[0].Upper != int64(2) || second[0].Upper != int64(3) {
		t.Fatalf("boundaries should be re-read: %+v / %+v", first, second)
	}
	assertSQLMock(t, mock)
}

func TestDiscoverSchemaRefreshesCachedKey(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 1)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("public", "TABLE1").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("ID"))
	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).
		WithArgs("public", "TABLE1").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).AddRow("SEQ", "bigint"))
	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("public", "TABLE1").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("SEQ"))

	before, err := store.ListPartitions(ctx, "TABLE1")
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	if _, err := store.DiscoverSchema(ctx, "TABLE1"); err != nil {
		t.Fatalf("DiscoverSchema() error = %v", err)
	}
	after, err := store.ListPartitions(ctx, "TABLE1")
	if err != nil {
		t.Fatalf("ListPartitions() after rediscovery error = %v", err)
	}
	if before[0].KeyColumn != "ID" || after[0].KeyColumn != "SEQ" {
		t.Fatalf("key columns = %q then %q, want ID then SEQ", before[0].KeyColumn, after[0].KeyColumn)
	}
	assertSQLMock(t, mock)
}

func TestListPartitionsWithoutPrimaryKeyScansWholeTable(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 8)

	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("public", "heap").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}))

	partitions, err := store.ListPartitions(context.Background(), "heap")
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	if len(partitions) != 1 || partitions[0].KeyColumn != "" || partitions[0].Lower != nil || partitions[0].Upper != nil {
		t.Fatalf("partitions = %+v", partitions)
	}
	assertSQLMock(t, mock)
}

func TestListPartitionsEmptyTable(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 4)

	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("public", "EMPTY").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("ID"))
	mock.ExpectQuery(`SELECT MIN\(k\) AS lower_bound`).
		WillReturnRows(sqlmock.NewRows([]string{"lower_bound"}))

	partitions, err := store.ListPartitions(context.Background(), "EMPTY")
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	if len(partitions) != 1 || partitions[0].Lower != nil || partitions[0].Upper != nil {
		t.Fatalf("partitions = %+v", partitions)
	}
	assertSQLMock(t, mock)
}

func TestOpenPartitionRunsRangeQueryOnDedicatedConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 2)

	stmt, err := source.BuildStatement("TABLE2", []string{"ID", "TABLE1_ID"}, source.Eq("TABLE1_ID", int64(1)))
	if err != nil {
		t.Fatalf("BuildStatement() error = %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "ID", "TABLE1_ID" FROM "TABLE2" WHERE "TABLE1_ID" = $1 AND "ID" >= $2 AND "ID" < $3`)).
		WithArgs(int64(1), int64(1), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "TABLE1_ID"}).AddRow(int64(1), int64(1)).AddRow(int64(2), int64(1)))

	handle := source.TableHandle{Table: "TABLE2", Columns: []string{"ID", "TABLE1_ID"}}
	partition := source.Partition{Table: "TABLE2", Index: 0, KeyColumn: "ID", Lower: int64(1), Upper: int64(4)}
	cursor, err := store.OpenPartition(context.Background(), handle, partition, stmt)
	if err != nil {
		t.Fatalf("OpenPartition() error = %v", err)
	}
	if store.OpenConnections() != 1 {
		t.Fatalf("OpenConnections() = %d, want 1", store.OpenConnections())
	}

	count := 0
	for cursor.Next() {
		var id, parent any
		if err := cursor.Scan(&id, &parent); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		count++
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if err := cursor.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("rows = %d, want 2", count)
	}
	if store.OpenConnections() != 0 {
		t.Fatalf("OpenConnections() after Close = %d, want 0", store.OpenConnections())
	}
	assertSQLMock(t, mock)
}

func TestOpenPartitionReleasesConnectionOnQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	store := newStore(t, db, 1)

	stmt, err := source.BuildStatement("TABLE1", []string{"ID"}, nil)
	if err != nil {
		t.Fatalf("BuildStatement() error = %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "ID" FROM "TABLE1"`)).
		WillReturnError(errors.New("region unavailable"))

	_, err = store.OpenPartition(context.Background(), source.TableHandle{Table: "TABLE1", Columns: []string{"ID"}}, source.Partition{Table: "TABLE1"}, stmt)
	if err == nil {
		t.Fatal("expected query error")
	}
	if store.OpenConnections() != 0 {
		t.Fatalf("OpenConnections() = %d, want 0", store.OpenConnections())
	}
	assertSQLMock(t, mock)
}

func TestTypeCode(t *testing.T) {
	cases := map[string]source.SQLType{
		"VARCHAR":                  source.TypeVarChar,
		"character varying":        source.TypeVarChar,
		"DECIMAL(18,3)":            source.TypeDecimal,
		"INTEGER[]":                source.TypeArray,
		"ARRAY":                    source.TypeArray,
		"STRUCT(a INTEGER)":        source.TypeStruct,
		"MAP(VARCHAR, INTEGER)":    source.TypeStruct,
		"timestamp with time zone": source.TypeTimestampTZ,
		"TIMESTAMP":                source.TypeTimestamp,
		"BLOB":                     source.TypeVarBinary,
		"UUID":                     source.TypeOther,
	}
	for name, want := range cases {
		if got := TypeCode(name); got != want {
			t.Fatalf("TypeCode(%q) = %d, want %d", name, got, want)
		}
	}
}

func newStore(t *testing.T, db *sql.DB, partitions int) *Store {
	t.Helper()
	store, err := New(db, Config{Schema: "public", TargetPartitions: partitions})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations not met: %v", err)
	}
}
