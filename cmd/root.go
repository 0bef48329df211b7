// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/internal/config"
	"github.com/Thermoquad/vescstat/internal/logging"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	cfgFile string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Protocol flags
	replyTimeout time.Duration
	peerID       int

	// Logging flags
	logLevel  string
	logFormat string
	logFile   string

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "vescstat",
	Short: "VESC / DieBieMS UART Protocol Tool",
	Long: `vescstat - A CLI tool for talking to VESC motor controllers and DieBieMS
battery-management units over their UART packet protocol.

Provides commands for polling telemetry, sending set commands, passive frame
sniffing, a live monitor and telemetry recording.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML file (--config, or vescstat.yaml in the
working directory or $HOME/.config/vescstat) and VESCSTAT_* environment
variables, e.g. VESCSTAT_SERIAL_PORT. Flags win over the environment, which
wins over the file.

For WebSocket authentication, the password is read from the VESCSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default vescstat.yaml)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "admin", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Protocol flags
	rootCmd.PersistentFlags().DurationVar(&replyTimeout, "timeout", vesc.DefaultTimeout, "Reply deadline per exchange")
	rootCmd.PersistentFlags().IntVar(&peerID, "peer", -1, "CAN peer id to forward requests to (-1 for none)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Diagnostic log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Diagnostic log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write diagnostics to this file, rotated by size")
}

// loadConfig resolves the effective configuration and builds the logger
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	l, err := logging.New(c.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	cfg = c
	logger = l
	logger.Debug("config loaded",
		zap.Int("baud", cfg.Serial.Baud),
		zap.Duration("timeout", cfg.Protocol.Timeout),
		zap.Int("peer", cfg.Protocol.PeerID))
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
