// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openlumen/lumend/internal/config"
)

var (
	// Daemon flags
	dataDir  string
	logLevel string

	// Serial connection flags (client commands)
	portName string
	baudRate int

	// WebSocket connection flags (client commands)
	wsURL         string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "lumend",
	Short: "ArtNet LED lighting node",
	Long: `Lumend - an ArtNet DMX lighting node for addressable LED strips.

The daemon (lumend run) receives single-universe ArtDMX over UDP and drives
LED strips, with a framed serial/WebSocket control protocol and an HTTP
configuration API. Client commands talk to a running node.

Connection modes for client commands:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host:8080/api/control`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "/var/lib/lumend", "Data directory (store, config, logs)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (trace..error)")

	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads the config file from the data directory and applies
// command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
