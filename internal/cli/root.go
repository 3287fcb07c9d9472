package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/pathsql/pkg/config"
	"github.com/malbeclabs/pathsql/pkg/logger"
	"github.com/malbeclabs/pathsql/pkg/metrics"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func Run(build BuildInfo) ExitCode {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeError
	}

	cfg := config.Default()
	envErr := cfg.ApplyEnv(os.LookupEnv)

	rootCmd := NewRootCmd(&cfg, build)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return fmt.Errorf("invalid environment: %w", envErr)
		}
		return cfg.Validate()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

// NewRootCmd builds the command tree around cfg. Flags write into cfg.
func NewRootCmd(cfg *config.Config, build BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pathsql",
		Short:         "Generate validated ClickHouse trace analytics queries for service critical paths.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", build.Version, build.Commit, build.Date),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "set debug logging level")
	cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		NewGenerateCmd(cfg, build).Command(),
		NewValidateCmd().Command(),
		NewModelsCmd(cfg).Command(),
		NewSchemaCmd(cfg).Command(),
	)
	return rootCmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Verbose)
}

// serveMetrics exposes /metrics on addr until ctx is done. It returns once the listener is bound.
func serveMetrics(ctx context.Context, log *slog.Logger, addr string, build BuildInfo) error {
	if addr == "" {
		return nil
	}
	metrics.BuildInfo.WithLabelValues(build.Version, build.Commit, build.Date).Set(1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to serve prometheus metrics", "error", err)
		}
	}()
	return nil
}
