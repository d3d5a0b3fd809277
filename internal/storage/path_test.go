package storage

import "testing"

func TestPartitionObjectPath(t *testing.T) {
	key, err := PartitionObjectPath("/exports/", "TABLE2", "0b3c", 3)
	if err != nil {
		t.Fatalf("PartitionObjectPath() error = %v", err)
	}
	want := "exports/TABLE2/export=0b3c/part-00003.parquet"
	if key != want {
		t.Fatalf("PartitionObjectPath() = %q, want %q", key, want)
	}
}

func TestExportDirWithoutPrefix(t *testing.T) {
	dir, err := ExportDir("", "table3", "abc")
	if err != nil {
		t.Fatalf("ExportDir() error = %v", err)
	}
	if dir != "table3/export=abc" {
		t.Fatalf("ExportDir() = %q", dir)
	}
}

func TestPathRejectsInvalidComponent(t *testing.T) {
	if _, err := PartitionObjectPath("exports", "../oops", "abc", 1); err == nil {
		t.Fatal("expected invalid table error")
	}
	if _, err := PartitionObjectPath("exports", "TABLE1", "a/b", 1); err == nil {
		t.Fatal("expected invalid export id error")
	}
	if _, err := PartitionObjectPath("exports", "TABLE1", "abc", -1); err == nil {
		t.Fatal("expected negative partition error")
	}
}

func TestCleanKey(t *testing.T) {
	key, err := CleanKey("/exports//TABLE1/./part-00000.parquet")
	if err != nil {
		t.Fatalf("CleanKey() error = %v", err)
	}
	if key != "exports/TABLE1/part-00000.parquet" {
		t.Fatalf("CleanKey() = %q", key)
	}
	for _, bad := range []string{"", "  ", "../secrets", "a/../../b", "."} {
		if _, err := CleanKey(bad); err == nil {
			t.Fatalf("CleanKey(%q) expected error", bad)
		}
	}
}

func TestParseExportKey(t *testing.T) {
	tests := []struct {
		prefix, key   string
		table, export string
		ok            bool
	}{
		{prefix: "exports", key: "exports/TABLE2/export=0b3c/part-00003.parquet", table: "TABLE2", export: "0b3c", ok: true},
		{prefix: "/exports/", key: "exports/table3/export=abc/part-00000.parquet", table: "table3", export: "abc", ok: true},
		{prefix: "", key: "TABLE1/export=x1/part-00000.parquet", table: "TABLE1", export: "x1", ok: true},
		{prefix: "exports", key: "other/TABLE2/export=0b3c/part-00003.parquet"},
		{prefix: "exports", key: "exports/TABLE2/part-00003.parquet"},
		{prefix: "exports", key: "exports/TABLE2/snapshot=1/part-00003.parquet"},
		{prefix: "exports", key: "exports/TABLE2/export=0b3c/nested/part.parquet"},
	}
	for _, tt := range tests {
		table, exportID, ok := ParseExportKey(tt.prefix, tt.key)
		if ok != tt.ok || table != tt.table || exportID != tt.export {
			t.Fatalf("ParseExportKey(%q, %q) = %q, %q, %v", tt.prefix, tt.key, table, exportID, ok)
		}
	}
}
