package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ExportDir is the key prefix holding every partition file of one export:
// <prefix>/<table>/export=<exportID>.
func ExportDir(prefix, table, exportID string) (string, error) {
	if err := validatePathComponent(table, "table name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(exportID, "export id"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	return path.Join(prefix, table, "export="+exportID), nil
}

// PartitionObjectPath names the file for one partition of an export.
func PartitionObjectPath(prefix, table, exportID string, partition int) (string, error) {
	if partition < 0 {
		return "", fmt.Errorf("partition index must be >= 0")
	}
	dir, err := ExportDir(prefix, table, exportID)
	if err != nil {
		return "", err
	}
	return path.Join(dir, fmt.Sprintf("part-%05d.parquet", partition)), nil
}

// ValidateTable reports whether name can be used as the table component of a key.
func ValidateTable(name string) error {
	return validatePathComponent(name, "table name")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// CleanKey normalizes an object key and rejects keys that escape their root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

// ParseExportKey splits a partition object key written under prefix back into its
// table and export id. Keys outside the <prefix>/<table>/export=<id>/<file> layout
// report ok=false.
func ParseExportKey(prefix, key string) (table, exportID string, ok bool) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	rest := strings.TrimPrefix(key, "/")
	if prefix != "" {
		if !strings.HasPrefix(rest, prefix+"/") {
			return "", "", false
		}
		rest = rest[len(prefix)+1:]
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] == "" {
		return "", "", false
	}
	exportID, found := strings.CutPrefix(parts[1], "export=")
	if !found || validatePathComponent(parts[0], "table name") != nil || validatePathComponent(exportID, "export id") != nil {
		return "", "", false
	}
	return parts[0], exportID, true
}
