package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rizalgowandy/duckdb/pkg/logger"
	"github.com/rizalgowandy/duckdb/pkg/metrics"
	"github.com/rizalgowandy/duckdb/pkg/observability"
	"github.com/rizalgowandy/duckdb/pkg/scan"
	"github.com/rizalgowandy/duckdb/pkg/sink"
)

var version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	LogLevel    string
	LogFormat   string
	Trace       bool
	MetricsAddr string
	Timeout     time.Duration
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:   "csvscan",
		Short: "csvscan - CSV sniffing and typed ingestion",
		Long: `csvscan detects the dialect, header and column types of CSV files and
reads them into typed Arrow batches, written as Arrow IPC, Parquet,
newline-delimited JSON or into a PostgreSQL table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(gf)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown(gf)
		},
	}

	root.PersistentFlags().StringVar(&gf.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&gf.LogFormat, "log-format", "console", "Log encoding (console, json)")
	root.PersistentFlags().BoolVar(&gf.Trace, "trace", false, "Export OpenTelemetry spans to stderr")
	root.PersistentFlags().StringVar(&gf.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	root.PersistentFlags().DurationVar(&gf.Timeout, "timeout", 0, "Abort after this duration (0 disables)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "csvscan v%s\n", version)
			fmt.Fprintf(stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newSniffCmd(gf, stdout))
	root.AddCommand(newScanCmd(gf))
	return root
}

func setup(gf *globalFlags) error {
	if err := logger.Init(logger.Config{
		Level:       gf.LogLevel,
		Encoding:    gf.LogFormat,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	if gf.Trace {
		cfg := observability.DefaultConfig()
		cfg.ServiceVersion = version
		if err := observability.Initialize(cfg); err != nil {
			return err
		}
	}
	if gf.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: gf.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

func teardown(gf *globalFlags) error {
	if gf.Trace {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(ctx); err != nil {
			return err
		}
	}
	_ = logger.Sync()
	return nil
}

func commandContext(gf *globalFlags) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if gf.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, gf.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func scannerOptions(gf *globalFlags, columns []string) []scan.Option {
	opts := []scan.Option{scan.WithLogger(logger.Get())}
	if gf.MetricsAddr != "" {
		opts = append(opts, scan.WithMetrics(metrics.Default()))
	}
	if len(columns) > 0 {
		opts = append(opts, scan.WithColumns(columns...))
	}
	return opts
}

func newSniffCmd(gf *globalFlags, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sniff <file>",
		Short: "Detect dialect, header and column types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := readerConfig(v, args[0])
			if err != nil {
				return err
			}
			sc, err := scan.New(cfg, scannerOptions(gf, nil)...)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(gf)
			defer cancel()

			res, err := sc.Sniff(ctx)
			if err != nil {
				return err
			}
			return writeJSON(stdout, res)
		},
	}
	addReaderFlags(cmd.Flags())
	return cmd
}

func newScanCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Read a CSV file into typed output",
		Long: `Read a CSV file into typed output.

Example:
  csvscan scan data.csv.gz --parallel 4 -f parquet -o s3://bucket/data.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := readerConfig(v, args[0])
			if err != nil {
				return err
			}
			sc, err := scan.New(cfg, scannerOptions(gf, v.GetStringSlice("select"))...)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(gf)
			defer cancel()

			opts := sinkOptions(v, cfg)
			opts.Logger = logger.Get()
			out, err := sink.Open(ctx, opts)
			if err != nil {
				return err
			}

			stats, err := sc.ScanTo(ctx, out)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.ErrOrStderr(), stats)
		},
	}
	addReaderFlags(cmd.Flags())
	addSinkFlags(cmd.Flags())
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
