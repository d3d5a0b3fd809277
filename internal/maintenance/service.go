package maintenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/regionscan/regionscan/internal/storage"
)

type Config struct {
	// Prefix is the export prefix the exporter writes under.
	Prefix            string
	RetentionInterval time.Duration
	KeepExports       int
	SafetyAge         time.Duration
}

type Service struct {
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Export is one export directory as found in the object store.
type Export struct {
	Table        string
	ExportID     string
	Dir          string
	Objects      []storage.ObjectInfo
	SizeBytes    int64
	LastModified time.Time
}

type RetentionSummary struct {
	TablesScanned  int `json:"tables_scanned"`
	ExportsScanned int `json:"exports_scanned"`
	ExportsDeleted int `json:"exports_deleted"`
	ObjectsDeleted int `json:"objects_deleted"`
	Failures       int `json:"failures"`
}

type IntegritySummary struct {
	ExportsScanned      int   `json:"exports_scanned"`
	ObjectsChecked      int   `json:"objects_checked"`
	Rows                int64 `json:"rows"`
	MissingPartitions   int   `json:"missing_partitions"`
	CorruptObjects      int   `json:"corrupt_objects"`
	OperationalFailures int   `json:"operational_failures"`
}

// Run applies retention every RetentionInterval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Config.RetentionInterval <= 0 {
		return fmt.Errorf("retention interval must be > 0")
	}

	ticker := time.NewTicker(s.Config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunRetentionOnce(ctx, "")
			if err != nil {
				s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
		}
	}
}

// ListExports groups the objects under the export prefix into exports, newest first.
// An empty table lists every table.
func (s *Service) ListExports(ctx context.Context, table string) ([]Export, error) {
	s.ensureDefaults()
	if s.ObjectStore == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix := strings.Trim(strings.TrimSpace(s.Config.Prefix), "/")
	if prefix == "" {
		return nil, fmt.Errorf("export prefix is required")
	}
	listPrefix := prefix
	if table != "" {
		if err := storage.ValidateTable(table); err != nil {
			return nil, err
		}
		listPrefix = path.Join(prefix, table)
	}

	objects, err := s.ObjectStore.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	byDir := make(map[string]*Export)
	for _, object := range objects {
		objectTable, exportID, ok := storage.ParseExportKey(prefix, object.Key)
		if !ok || (table != "" && objectTable != table) {
			continue
		}
		dir := path.Dir(object.Key)
		export, found := byDir[dir]
		if !found {
			export = &Export{Table: objectTable, ExportID: exportID, Dir: dir}
			byDir[dir] = export
		}
		export.Objects = append(export.Objects, object)
		export.SizeBytes += object.Size
		if object.LastModified.After(export.LastModified) {
			export.LastModified = object.LastModified
		}
	}

	out := make([]Export, 0, len(byDir))
	for _, export := range byDir {
		slices.SortFunc(export.Objects, func(a, b storage.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
		out = append(out, *export)
	}
	slices.SortFunc(out, func(a, b Export) int {
		if c := strings.Compare(a.Table, b.Table); c != 0 {
			return c
		}
		if c := b.LastModified.Compare(a.LastModified); c != 0 {
			return c
		}
		return strings.Compare(b.ExportID, a.ExportID)
	})
	return out, nil
}

// RunRetentionOnce keeps the newest KeepExports exports of each table and deletes the
// rest once they are older than SafetyAge.
func (s *Service) RunRetentionOnce(ctx context.Context, table string) (RetentionSummary, error) {
	exports, err := s.ListExports(ctx, table)
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return RetentionSummary{}, err
	}

	summary := RetentionSummary{ExportsScanned: len(exports)}
	failures := make([]string, 0)
	cutoff := s.Clock().Add(-s.Config.SafetyAge)

	kept := make(map[string]int)
	for _, export := range exports {
		if _, seen := kept[export.Table]; !seen {
			summary.TablesScanned++
		}
		if kept[export.Table] < s.Config.KeepExports {
			kept[export.Table]++
			continue
		}
		if export.LastModified.After(cutoff) {
			continue
		}

		keys := make([]string, 0, len(export.Objects))
		for _, object := range export.Objects {
			keys = append(keys, object.Key)
		}
		if err := storage.DeleteAll(ctx, s.ObjectStore, keys); err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("table %s delete export %s: %v", export.Table, export.ExportID, err))
			continue
		}
		summary.ObjectsDeleted += len(keys)
		summary.ExportsDeleted++
		s.Logger.InfoContext(ctx, "export removed",
			slog.String("table", export.Table),
			slog.String("export_id", export.ExportID),
			slog.Int("objects", len(export.Objects)),
			slog.Int64("size_bytes", export.SizeBytes),
		)
	}

	retentionExportsDeletedTotal.Add(float64(summary.ExportsDeleted))
	retentionObjectsDeletedTotal.Add(float64(summary.ObjectsDeleted))
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce opens every partition object of every export as parquet and
// checks that partition numbering has no gaps.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context, table string) (IntegritySummary, error) {
	exports, err := s.ListExports(ctx, table)
	if err != nil {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return IntegritySummary{}, err
	}

	summary := IntegritySummary{ExportsScanned: len(exports)}
	const maxIssueSamples = 20
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	for _, export := range exports {
		indexes := make([]int, 0, len(export.Objects))
		for _, object := range export.Objects {
			var index int
			if _, err := fmt.Sscanf(path.Base(object.Key), "part-%05d.parquet", &index); err == nil {
				indexes = append(indexes, index)
			}

			summary.ObjectsChecked++
			rows, err := s.countRows(ctx, object)
			if err != nil {
				var corrupt *corruptObjectError
				if errors.As(err, &corrupt) {
					summary.CorruptObjects++
				} else {
					summary.OperationalFailures++
				}
				addIssue(fmt.Sprintf("export %s: %v", export.Dir, err))
				continue
			}
			summary.Rows += rows
		}

		slices.Sort(indexes)
		for want, got := range indexes {
			if got != want {
				summary.MissingPartitions += got - want
				addIssue(fmt.Sprintf("export %s missing partition %d", export.Dir, want))
				break
			}
		}
	}

	integrityObjectsCheckedTotal.Add(float64(summary.ObjectsChecked))
	integrityCorruptObjectsTotal.Add(float64(summary.CorruptObjects))
	if issueCount > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

type corruptObjectError struct {
	key string
	err error
}

func (e *corruptObjectError) Error() string {
	return fmt.Sprintf("object %s is not readable parquet: %v", e.key, e.err)
}

func (e *corruptObjectError) Unwrap() error {
	return e.err
}

func (s *Service) countRows(ctx context.Context, object storage.ObjectInfo) (int64, error) {
	reader, err := s.ObjectStore.Get(ctx, object.Key)
	if err != nil {
		return 0, fmt.Errorf("get object %s: %w", object.Key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read object %s: %w", object.Key, err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, &corruptObjectError{key: object.Key, err: err}
	}
	return file.NumRows(), nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Config.KeepExports < 1 {
		s.Config.KeepExports = 3
	}
}
