package regionscanctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/regionscan/regionscan/internal/maintenance"
)

func (a *app) exportsCommand() *cobra.Command {
	var localDir string
	prefix := a.cfg.Export.Prefix
	keep := a.cfg.Maintenance.KeepExports
	safetyAge := a.cfg.Maintenance.SafetyAge

	service := func(cmd *cobra.Command) (*maintenance.Service, error) {
		objects, err := a.objectStore(cmd.Context(), localDir)
		if err != nil {
			return nil, err
		}
		return &maintenance.Service{
			ObjectStore: objects,
			Config:      maintenance.Config{Prefix: prefix, KeepExports: keep, SafetyAge: safetyAge},
			Logger:      a.logger,
		}, nil
	}

	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List, prune or verify parquet exports",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return usageError{fmt.Errorf("exports requires list, prune or verify")}
		},
	}
	cmd.PersistentFlags().StringVar(&localDir, "local-dir", "", "read exports from this directory instead of the configured object store")
	cmd.PersistentFlags().StringVar(&prefix, "prefix", prefix, "object key prefix")

	list := &cobra.Command{
		Use:   "list [table]",
		Short: "List exports, newest first per table",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			exports, err := svc.ListExports(cmd.Context(), optionalArg(args))
			if err != nil {
				return err
			}
			for _, export := range exports {
				writeRow(a.stdout, []any{export.Table, export.ExportID, len(export.Objects), export.SizeBytes, export.LastModified})
			}
			return nil
		},
	}

	prune := &cobra.Command{
		Use:   "prune [table]",
		Short: "Delete all but the newest exports of each table",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return usageError{fmt.Errorf("--keep must be >= 1")}
			}
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			summary, err := svc.RunRetentionOnce(cmd.Context(), optionalArg(args))
			_, _ = fmt.Fprintf(a.stdout, "exports=%d deleted=%d objects_deleted=%d failures=%d\n",
				summary.ExportsScanned, summary.ExportsDeleted, summary.ObjectsDeleted, summary.Failures)
			return err
		},
	}
	prune.Flags().IntVar(&keep, "keep", keep, "exports to keep per table")
	prune.Flags().DurationVar(&safetyAge, "safety-age", safetyAge, "never delete exports younger than this")

	verify := &cobra.Command{
		Use:   "verify [table]",
		Short: "Open every exported object and check partition numbering",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			start := time.Now()
			summary, err := svc.RunIntegrityCheckOnce(cmd.Context(), optionalArg(args))
			_, _ = fmt.Fprintf(a.stdout, "exports=%d objects=%d rows=%d missing=%d corrupt=%d\n",
				summary.ExportsScanned, summary.ObjectsChecked, summary.Rows, summary.MissingPartitions, summary.CorruptObjects)
			a.logger.InfoContext(cmd.Context(), "integrity check finished", "duration", time.Since(start), "ok", err == nil)
			return err
		},
	}

	cmd.AddCommand(list, prune, verify)
	return cmd
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) > n {
			return usageError{fmt.Errorf("expected at most %d argument(s), got %d", n, len(args))}
		}
		return nil
	}
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
