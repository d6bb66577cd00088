package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lmittmann/tint"
	"github.com/malbeclabs/blockprop/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// BuildInfo is reported on the build info metric.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func Run(info BuildInfo) ExitCode {
	if err := NewRootCmd(info).Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(info BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "blockprop",
		Short:        "Ethereum beacon block propagation analysis from Xatu public data.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, err := cmd.Root().PersistentFlags().GetString("metrics-addr")
			if err != nil {
				return fmt.Errorf("failed to get metrics-addr flag: %w", err)
			}
			if metricsAddr == "" {
				return nil
			}
			verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.Date).Set(1)
			return serveMetrics(newLogger(cmd.ErrOrStderr(), verbose), metricsAddr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "set debug logging level")
	flags.Bool("json", false, "print results as JSON")
	flags.Bool("force-refresh", false, "re-download partitions and rebuild reports")
	flags.StringP("network", "n", "", "network to analyze (mainnet, holesky, sepolia)")
	flags.StringP("config", "c", "", "path to a YAML config file")
	flags.String("base-url", "", "partition base URL, http(s):// or s3://")
	flags.String("database", "", "partition database name")
	flags.String("cache-dir", "", "local partition cache directory")
	flags.Int("concurrency", 0, "number of days fetched in parallel")
	flags.String("metrics-addr", "", "address to serve prometheus metrics on, disabled when empty")

	rootCmd.AddCommand(
		NewDayCmd().Command(),
		NewRangeCmd().Command(),
		NewBlockArrivalCmd().Command(),
		NewNodeCmd().Command(),
		NewUsersCmd().Command(),
		NewUserCmd().Command(),
		NewTablesCmd().Command(),
	)

	return rootCmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func serveMetrics(log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("Prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.Serve(listener, mux); err != nil {
			log.Error("Prometheus metrics server stopped", "error", err)
		}
	}()
	return nil
}
