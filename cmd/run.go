// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openlumen/lumend/internal/bridge"
	"github.com/openlumen/lumend/internal/conn"
	"github.com/openlumen/lumend/internal/httpapi"
	"github.com/openlumen/lumend/internal/logging"
	"github.com/openlumen/lumend/internal/network"
	"github.com/openlumen/lumend/internal/node"
	"github.com/openlumen/lumend/internal/pixel"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lighting node daemon",
	Long: `Start the node: boot-loop check, connectivity, ArtNet ingest, the
serial control bridge, and the HTTP configuration API.

Exits with status 0 on a controlled restart request so a process supervisor
can bring it back up.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// traceDriver stands in for the LED strip driver on hosts without one
// attached; frames are visible at trace level.
type traceDriver struct{}

func (traceDriver) Render(pixels []pixel.RGB, brightness uint8) error {
	log.Trace().Int("pixels", len(pixels)).Uint8("brightness", brightness).Msg("frame")
	return nil
}

func runNode(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogPath())
	log.Info().Str("dataDir", cfg.DataDir).Msg("lumend starting")

	n, err := node.New(cfg, network.NewHostTransport(), traceDriver{}, nil)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpapi.NewServer(n).Start(ctx, cfg.HTTP.Addr); err != nil {
			log.Error().Err(err).Msg("http api failed")
		}
	}()

	// The serial control bridge is independent of network state; a missing
	// port is not fatal, the node stays reachable over HTTP.
	if cfg.Serial.Port != "" {
		if c, err := conn.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud); err != nil {
			log.Warn().Err(err).Str("port", cfg.Serial.Port).Msg("serial control bridge unavailable")
		} else {
			b := bridge.New(c, nil, n.Status, n.RequestRestart, n.HandleCommand)
			go func() {
				if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("serial bridge stopped")
				}
			}()
		}
	}

	err = n.Run(ctx)
	switch {
	case errors.Is(err, node.ErrRestartRequested):
		log.Info().Msg("exiting for supervisor restart")
		return nil
	case errors.Is(err, context.Canceled):
		log.Info().Msg("shutting down")
		return nil
	default:
		return err
	}
}
