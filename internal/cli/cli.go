// ============================================================================
// Ruvltra CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for the ruvltra execution core.
//
// Command Structure:
//   ruvltra                        # Root command
//   ├── serve                      # Start the stdio JSON-RPC server
//   │   └── --config, -c          # Specify config file
//   ├── tools                      # Print the tool catalog as JSON
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// serve Command:
//   Starts the full execution core:
//   1. Load config (file, then RUVLTRA_* env overrides, then clamping)
//   2. Route slog to stderr; stdout is reserved for the JSON-RPC stream
//   3. Create the worker pool
//   4. Start the Prometheus /metrics server (if enabled)
//   5. Serve JSON-RPC 2.0 on stdin/stdout until EOF or SIGINT/SIGTERM
//   6. Gracefully shut the pool down (flushes pattern memories)
//
//   Examples:
//     ./ruvltra serve
//     ./ruvltra serve -c configs/local.yaml
//
// tools Command:
//   Prints the advertised tool catalog so clients can inspect schemas
//   without speaking the protocol.
//
// ============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ruvltra/ruvltra-go/internal/config"
	"github.com/ruvltra/ruvltra-go/internal/engine"
	"github.com/ruvltra/ruvltra-go/internal/mcp"
	"github.com/ruvltra/ruvltra-go/internal/pool"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ruvltra",
		Short: "Ruvltra: a local code-assistance execution core",
		Long: `Ruvltra runs a worker pool of inference engines behind a JSON-RPC 2.0
stdio surface. Each worker owns a ranked chain of generation backends
(HTTP, native, embedded, mock) and a per-worker pattern memory that
learns project preferences across tasks.`,
		Version: Version,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildToolsCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the stdio JSON-RPC server",
		Long:  "Start the worker pool and serve ruvltra_* tools over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Load(configFile)

	// stdout belongs to the protocol; all logging goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting ruvltra",
		"version", Version,
		"minWorkers", cfg.Pool.MinWorkers,
		"maxWorkers", cfg.Pool.MaxWorkers,
		"sona", cfg.Sona.Enabled,
	)

	p := pool.New(cfg, engine.Extras{})

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := p.Metrics().StartServer(cfg.Metrics.Port); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server := mcp.NewServer(mcp.NewMediator(p), os.Stdin, os.Stdout, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped", "error", err)
		} else {
			logger.Info("client closed the stream")
		}
	}

	logger.Info("shutting down pool")
	p.Shutdown()
	logger.Info("shutdown complete")
	return nil
}

func buildToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the advertised tool catalog as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := json.MarshalIndent(mcp.Catalog(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode catalog: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
