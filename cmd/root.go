// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/config"
	"github.com/Thermoquad/cardiostat/internal/logging"
	"github.com/Thermoquad/cardiostat/internal/metrics"
)

// Config file
var cfgFile string

var (
	appConfig      *config.Config
	logger         = zap.NewNop()
	registry       *prometheus.Registry
	decoderMetrics *metrics.DecoderMetrics
	stopMetrics    context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "cardiostat",
	Short: "BMD101 ECG Stream Analyzer",
	Long: `Cardiostat - A CLI tool for monitoring, recording and analyzing the serial
output of BMD101 ECG sensor modules (ECG 4 click).

Frames are decoded byte by byte and only released once their checksum has
been verified. Commands are provided for raw frame logging, error detection,
plotting, recording, replaying and publishing decoded frames.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a config file (--config, or cardiostat.yaml in
the working directory) and CARDIOSTAT_* environment variables.

For WebSocket authentication, the password is read from the CARDIOSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:            "1.0.0",
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (YAML, TOML or JSON)")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 57600, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Diagnostics
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console or json)")
	flags.String("log-file", "", "Also write logs to this rolling file")
	flags.Bool("metrics", false, "Expose Prometheus metrics")
	flags.String("metrics-addr", ":9101", "Prometheus listen address")
}

// setup loads the configuration and starts logging and metrics
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	appConfig = cfg

	l, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l

	registry = metrics.NewRegistry()
	decoderMetrics = metrics.NewDecoderMetrics(registry)

	if cfg.Metrics.Enable {
		var ctx context.Context
		ctx, stopMetrics = context.WithCancel(context.Background())
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, registry, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if stopMetrics != nil {
		stopMetrics()
	}
	// Syncing stderr fails on some terminals; nothing to report
	_ = logger.Sync()
	return nil
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// isCancel reports whether err only says the command was interrupted
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
