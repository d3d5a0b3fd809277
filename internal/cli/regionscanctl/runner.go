package regionscanctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/dsn"
	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/observability"
	"github.com/regionscan/regionscan/internal/source"
	"github.com/regionscan/regionscan/internal/storage"
	"github.com/regionscan/regionscan/internal/storage/local"
	"github.com/regionscan/regionscan/internal/storage/s3"
	"github.com/regionscan/regionscan/internal/store"
)

type Options struct {
	Config config.Config
	Stdout io.Writer
	Stderr io.Writer
}

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

// Run executes one regionscanctl command and returns the process exit code: 0 on
// success, 1 on failure, 2 on invalid usage.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := &app{cfg: defaults.Config, stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

type app struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "regionscanctl",
		Short:         "Inspect, scan and export tables of a partitioned SQL store",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return usageError{fmt.Errorf("a command is required")}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.Store.URL, "store-url", a.cfg.Store.URL, "store descriptor <protocol>:<hosts>:<port>:<path>")
	flags.StringVar(&a.cfg.Store.Schema, "schema", a.cfg.Store.Schema, "schema holding the tables")
	flags.IntVar(&a.cfg.Scan.TargetPartitions, "partitions", a.cfg.Scan.TargetPartitions, "target number of partitions per table")
	flags.IntVar(&a.cfg.Scan.Concurrency, "concurrency", a.cfg.Scan.Concurrency, "partitions scanned in parallel")
	flags.StringVar(&a.cfg.Observability.MetricsAddr, "metrics-addr", a.cfg.Observability.MetricsAddr, "serve prometheus metrics on this address while running")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.prepare(cmd.Context())
	}

	root.AddCommand(
		a.schemaCommand(),
		a.partitionsCommand(),
		a.scanCommand(),
		a.exportCommand(),
		a.exportsCommand(),
		a.queryCommand(),
		a.fixturesCommand(),
	)
	return root
}

func (a *app) prepare(ctx context.Context) error {
	if a.cfg.Scan.Concurrency <= 0 {
		return usageError{fmt.Errorf("--concurrency must be > 0")}
	}
	if a.cfg.Scan.TargetPartitions <= 0 {
		return usageError{fmt.Errorf("--partitions must be > 0")}
	}
	descriptor, err := dsn.Parse(a.cfg.Store.URL)
	if err != nil {
		return usageError{err}
	}
	a.cfg.Store.Descriptor = descriptor
	a.logger = observability.NewLogger(a.cfg, a.stderr)

	if addr := strings.TrimSpace(a.cfg.Observability.MetricsAddr); addr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, addr, a.logger); err != nil {
				a.logger.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

func (a *app) connect(ctx context.Context) (*store.Backend, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	backend, err := store.Connect(connectCtx, a.cfg.Store, a.cfg.Scan.TargetPartitions)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return backend, nil
}

func (a *app) table(backend *store.Backend, name string) (*source.Table, error) {
	return source.NewTable(name, backend.Store,
		source.WithLogger(a.logger),
		source.WithDescriptor(backend.Descriptor),
	)
}

func (a *app) runner() *engine.Runner {
	return engine.NewRunner(a.cfg.Scan.Concurrency, a.logger)
}

func (a *app) objectStore(ctx context.Context, localDir string) (storage.ObjectStore, error) {
	if strings.TrimSpace(localDir) != "" {
		return local.New(localDir)
	}
	return s3.New(ctx, a.cfg.ObjectStore)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("expected %d argument(s), got %d", n, len(args))}
		}
		return nil
	}
}

func splitColumns(raw string) []string {
	var columns []string
	for _, column := range strings.Split(raw, ",") {
		if column = strings.TrimSpace(column); column != "" {
			columns = append(columns, column)
		}
	}
	return columns
}

func writeRow(w io.Writer, values []any) {
	cells := make([]string, len(values))
	for i, value := range values {
		cells[i] = formatValue(value)
	}
	_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("%x", typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}
