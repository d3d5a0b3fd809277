package regionscanctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/regionscan/regionscan/internal/config"
)

func TestRunSchemaAndPartitions(t *testing.T) {
	env := newCLIEnv(t)

	stdout, code := env.run(t, "schema", "TABLE1")
	if code != 0 {
		t.Fatalf("schema exit code = %d, stderr=%s", code, env.stderr.String())
	}
	for _, prefix := range []string{"ID\tlong\t", "COL1\tstring\t", "AMOUNT\tdecimal\t", "CREATED_AT\ttimestamp\t"} {
		if !strings.Contains(stdout, prefix) {
			t.Fatalf("schema output missing %q:\n%s", prefix, stdout)
		}
	}

	stdout, code = env.run(t, "--partitions", "4", "partitions", "REGION_EVENTS")
	if code != 0 {
		t.Fatalf("partitions exit code = %d, stderr=%s", code, env.stderr.String())
	}
	lines := nonEmptyLines(stdout)
	if len(lines) != 4 {
		t.Fatalf("partition lines = %d, want 4:\n%s", len(lines), stdout)
	}
	if !strings.HasPrefix(lines[0], "REGION_EVENTS/0\tID\t-\t") {
		t.Fatalf("first partition = %q", lines[0])
	}
	if !strings.HasSuffix(lines[3], "\t-") {
		t.Fatalf("last partition = %q, want open upper bound", lines[3])
	}
}

func TestRunScanCountsAndPrints(t *testing.T) {
	env := newCLIEnv(t)

	stdout, code := env.run(t, "scan", "REGION_EVENTS", "--where", "REGION = 'region-1'")
	if code != 0 {
		t.Fatalf("scan exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if !strings.Contains(stdout, "partitions=3 rows=250 failed=0") {
		t.Fatalf("scan output = %q", stdout)
	}

	stdout, code = env.run(t, "scan", "table3", "--columns", "name", "--print")
	if code != 0 {
		t.Fatalf("scan --print exit code = %d, stderr=%s", code, env.stderr.String())
	}
	lines := nonEmptyLines(stdout)
	if len(lines) != 4 || lines[0] != "name" {
		t.Fatalf("scan --print output:\n%s", stdout)
	}
}

func TestRunExportAndQuery(t *testing.T) {
	env := newCLIEnv(t)
	exportDir := t.TempDir()

	stdout, code := env.run(t, "export", "TABLE2", "--local-dir", exportDir, "--prefix", "snapshots")
	if code != 0 {
		t.Fatalf("export exit code = %d, stderr=%s", code, env.stderr.String())
	}
	var dir string
	for _, field := range strings.Fields(stdout) {
		if strings.HasPrefix(field, "dir=") {
			dir = strings.TrimPrefix(field, "dir=")
		}
	}
	if !strings.HasPrefix(dir, "snapshots/TABLE2/export=") {
		t.Fatalf("export output = %q", stdout)
	}
	entries, err := os.ReadDir(filepath.Join(exportDir, dir))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("exported files = %d, want 3", len(entries))
	}

	stdout, code = env.run(t, "query",
		`SELECT COUNT(*) AS c FROM "TABLE1" t1 JOIN children c ON t1."ID" = c."TABLE1_ID"`,
		"--table", "TABLE1",
		"--export", "children="+dir,
		"--local-dir", exportDir,
	)
	if code != 0 {
		t.Fatalf("query exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if lines := nonEmptyLines(stdout); len(lines) != 2 || lines[0] != "c" || lines[1] != "6" {
		t.Fatalf("query output:\n%s", stdout)
	}
}

func TestRunExportsListVerifyPrune(t *testing.T) {
	env := newCLIEnv(t)
	exportDir := t.TempDir()

	for i := 0; i < 2; i++ {
		if _, code := env.run(t, "export", "TABLE2", "--local-dir", exportDir); code != 0 {
			t.Fatalf("export exit code = %d, stderr=%s", code, env.stderr.String())
		}
	}

	stdout, code := env.run(t, "exports", "list", "--local-dir", exportDir)
	if code != 0 {
		t.Fatalf("exports list exit code = %d, stderr=%s", code, env.stderr.String())
	}
	lines := nonEmptyLines(stdout)
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "TABLE2\t") {
		t.Fatalf("exports list output:\n%s", stdout)
	}

	stdout, code = env.run(t, "exports", "verify", "TABLE2", "--local-dir", exportDir)
	if code != 0 {
		t.Fatalf("exports verify exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if strings.TrimSpace(stdout) != "exports=2 objects=6 rows=12 missing=0 corrupt=0" {
		t.Fatalf("exports verify output = %q", stdout)
	}

	stdout, code = env.run(t, "exports", "prune", "TABLE2", "--keep", "1", "--safety-age", "0s", "--local-dir", exportDir)
	if code != 0 {
		t.Fatalf("exports prune exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if strings.TrimSpace(stdout) != "exports=2 deleted=1 objects_deleted=3 failures=0" {
		t.Fatalf("exports prune output = %q", stdout)
	}

	stdout, _ = env.run(t, "exports", "list", "TABLE2", "--local-dir", exportDir)
	if len(nonEmptyLines(stdout)) != 1 {
		t.Fatalf("exports list after prune:\n%s", stdout)
	}
}

func TestRunFixturesStatusAndDown(t *testing.T) {
	env := newCLIEnv(t)

	stdout, code := env.run(t, "fixtures", "status")
	if code != 0 {
		t.Fatalf("status exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if len(nonEmptyLines(stdout)) != 3 {
		t.Fatalf("status output:\n%s", stdout)
	}

	stdout, code = env.run(t, "fixtures", "down", "--steps", "2")
	if code != 0 || strings.TrimSpace(stdout) != "unloaded=2" {
		t.Fatalf("down exit code = %d output = %q stderr=%s", code, stdout, env.stderr.String())
	}
	if _, code := env.run(t, "scan", "REGION_EVENTS"); code != 1 {
		t.Fatalf("scan of unloaded table exit code = %d, want 1", code)
	}
	if !strings.Contains(env.stderr.String(), "table not found") {
		t.Fatalf("stderr = %q", env.stderr.String())
	}
}

func TestRunReportsUsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	cases := [][]string{
		{},
		{"bogus"},
		{"schema"},
		{"scan", "TABLE1", "--no-such-flag"},
		{"scan", "TABLE1", "--where", "nonsense"},
		{"query", "SELECT 1"},
		{"query", "SELECT 1", "--export", "missing-dir"},
		{"fixtures"},
		{"exports"},
		{"exports", "list", "a", "b"},
		{"exports", "prune", "--keep", "0", "--local-dir", "unused"},
		{"--concurrency", "0", "scan", "TABLE1"},
		{"--store-url", "oracle:h:1:/db", "scan", "TABLE1"},
	}
	for _, args := range cases {
		if _, code := env.run(t, args...); code != 2 {
			t.Fatalf("Run(%q) exit code = %d, want 2, stderr=%s", args, code, env.stderr.String())
		}
	}
}

type cliEnv struct {
	cfg    config.Config
	stderr bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	cfg, err := config.Load("regionscanctl", func(key string) (string, bool) {
		if key == "REGIONSCAN_PROFILE" {
			return "test", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Store.URL = "duckdb:::" + filepath.Join(t.TempDir(), "cli.duckdb")

	env := &cliEnv{cfg: cfg}
	if stdout, code := env.run(t, "fixtures", "up"); code != 0 || strings.TrimSpace(stdout) != "loaded=3" {
		t.Fatalf("fixtures up exit code = %d output = %q stderr=%s", code, stdout, env.stderr.String())
	}
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	var stdout bytes.Buffer
	e.stderr.Reset()
	code := Run(context.Background(), args, Options{Config: e.cfg, Stdout: &stdout, Stderr: &e.stderr})
	return stdout.String(), code
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
