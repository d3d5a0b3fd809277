package regionscanctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/export"
	"github.com/regionscan/regionscan/internal/fixtures"
	"github.com/regionscan/regionscan/internal/query"
	querydb "github.com/regionscan/regionscan/internal/query/duckdb"
	"github.com/regionscan/regionscan/internal/source"
	"github.com/regionscan/regionscan/internal/storage"
)

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Print the discovered schema of a table",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			table, err := a.table(backend, args[0])
			if err != nil {
				return err
			}
			columns, err := table.Columns(ctx)
			if err != nil {
				return err
			}
			fields, err := table.Schema(ctx)
			if err != nil {
				return err
			}
			for i, field := range fields {
				writeRow(a.stdout, []any{field.Name, string(field.Type), columns[i].TypeName})
			}
			return nil
		},
	}
}

func (a *app) partitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions <table>",
		Short: "Print the current key-range partitions of a table",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			partitions, err := backend.Store.ListPartitions(ctx, args[0])
			if err != nil {
				return err
			}
			for _, partition := range partitions {
				key := partition.KeyColumn
				if key == "" {
					key = "-"
				}
				writeRow(a.stdout, []any{partition.ID(), key, bound(partition.Lower), bound(partition.Upper)})
			}
			return nil
		},
	}
}

type scanFlags struct {
	columns string
	where   []string
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.columns, "columns", "", "comma separated columns to read (default: all)")
	cmd.Flags().StringArrayVar(&f.where, "where", nil, "pushed down condition, repeatable and ANDed")
}

func (a *app) scans(cmd *cobra.Command, table *source.Table, flags scanFlags) ([]*source.PartitionScan, error) {
	predicate, err := source.ParseWhere(flags.where)
	if err != nil {
		return nil, usageError{err}
	}
	return table.Scan(cmd.Context(), splitColumns(flags.columns), predicate)
}

func (a *app) scanCommand() *cobra.Command {
	var (
		flags     scanFlags
		printRows bool
	)
	cmd := &cobra.Command{
		Use:   "scan <table>",
		Short: "Scan a table partition by partition",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			table, err := a.table(backend, args[0])
			if err != nil {
				return err
			}
			scans, err := a.scans(cmd, table, flags)
			if err != nil {
				return err
			}

			var (
				total   int64
				results []engine.PartitionResult
			)
			if printRows {
				rows, partitionResults, err := a.runner().Collect(ctx, scans)
				if err != nil {
					return err
				}
				results = partitionResults
				if len(scans) > 0 {
					writeRow(a.stdout, toAny(scans[0].Handle().Columns))
				}
				for _, row := range rows {
					writeRow(a.stdout, row)
				}
				total = int64(len(rows))
			} else {
				total, results, err = a.runner().CountRows(ctx, scans)
				if err != nil {
					return err
				}
			}

			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
				}
			}
			_, _ = fmt.Fprintf(a.stdout, "partitions=%d rows=%d failed=%d\n", len(results), total, failed)
			return engine.Failed(results)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&printRows, "print", false, "print the scanned rows as TSV")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	var (
		flags    scanFlags
		localDir string
	)
	allOrNothing := a.cfg.Export.AllOrNothing
	prefix := a.cfg.Export.Prefix
	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Export a table to parquet, one object per partition",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			objects, err := a.objectStore(ctx, localDir)
			if err != nil {
				return err
			}
			backend, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			table, err := a.table(backend, args[0])
			if err != nil {
				return err
			}
			scans, err := a.scans(cmd, table, flags)
			if err != nil {
				return err
			}

			exporter := &export.Exporter{
				Store:        objects,
				Runner:       a.runner(),
				Prefix:       prefix,
				AllOrNothing: allOrNothing,
				Logger:       a.logger,
			}
			result, err := exporter.Export(ctx, table.Name(), scans)
			for _, object := range result.Objects {
				writeRow(a.stdout, []any{object.Key, object.Rows, object.Size})
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "export_id=%s dir=%s objects=%d\n", result.ExportID, result.Dir, len(result.Objects))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&localDir, "local-dir", "", "write to this directory instead of the configured object store")
	cmd.Flags().StringVar(&prefix, "prefix", prefix, "object key prefix")
	cmd.Flags().BoolVar(&allOrNothing, "all-or-nothing", allOrNothing, "remove uploaded objects when any partition fails")
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	var (
		tables   []string
		exports  []string
		localDir string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run SQL over scanned tables and exported parquet sets",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(tables) == 0 && len(exports) == 0 {
				return usageError{fmt.Errorf("at least one --table or --export is required")}
			}
			request := query.Request{SQL: args[0], RowLimit: limit}
			for _, raw := range exports {
				name, dir, ok := strings.Cut(raw, "=")
				if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(dir) == "" {
					return usageError{fmt.Errorf("--export must be NAME=DIR, got %q", raw)}
				}
				request.Exports = append(request.Exports, query.ExportSource{Name: strings.TrimSpace(name), Dir: strings.TrimSpace(dir)})
			}

			var objects storage.ObjectStore
			if len(request.Exports) > 0 {
				var err error
				if objects, err = a.objectStore(ctx, localDir); err != nil {
					return err
				}
			}

			if len(tables) > 0 {
				backend, err := a.connect(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = backend.Close() }()
				for _, name := range tables {
					table, err := a.table(backend, name)
					if err != nil {
						return err
					}
					scans, err := table.Scan(ctx, nil, nil)
					if err != nil {
						return err
					}
					request.Tables = append(request.Tables, query.TableSource{Name: table.Name(), Scans: scans})
				}
			}

			result, err := querydb.NewEngine(a.runner(), objects).Execute(ctx, request)
			if err != nil {
				return err
			}
			writeRow(a.stdout, toAny(result.Columns))
			for _, row := range result.Rows {
				writeRow(a.stdout, row)
			}
			a.logger.Info("query finished",
				"rows", len(result.Rows),
				"scanned_partitions", result.ScannedPartitions,
				"scanned_rows", result.ScannedRows,
				"scanned_files", result.ScannedFiles,
				"duration_ms", result.Duration.Milliseconds(),
			)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&tables, "table", nil, "live table exposed to the query, repeatable")
	cmd.Flags().StringArrayVar(&exports, "export", nil, "exported parquet set exposed as NAME=DIR, repeatable")
	cmd.Flags().StringVar(&localDir, "local-dir", "", "read exports from this directory instead of the configured object store")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum result rows (0 for no limit)")
	return cmd
}

func (a *app) fixturesCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Load or unload the sample tables",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return usageError{fmt.Errorf("fixtures requires up, down or status")}
		},
	}
	cmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of fixture sets to apply (0 for all on up, 1 on down)")

	cmd.AddCommand(
		&cobra.Command{
			Use:  "up",
			Args: exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				backend, err := a.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = backend.Close() }()
				applied, err := fixtures.NewLoader().Up(cmd.Context(), backend.DB, steps)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "loaded=%d\n", applied)
				return nil
			},
		},
		&cobra.Command{
			Use:  "down",
			Args: exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				backend, err := a.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = backend.Close() }()
				removed, err := fixtures.NewLoader().Down(cmd.Context(), backend.DB, steps)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "unloaded=%d\n", removed)
				return nil
			},
		},
		&cobra.Command{
			Use:  "status",
			Args: exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				backend, err := a.connect(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = backend.Close() }()
				applied, err := fixtures.NewLoader().Status(cmd.Context(), backend.DB)
				if err != nil {
					return err
				}
				for _, entry := range applied {
					writeRow(a.stdout, []any{entry.Version, entry.Name})
				}
				return nil
			},
		},
	)
	return cmd
}

func bound(value any) string {
	if value == nil {
		return "-"
	}
	return formatValue(value)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
