// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors

package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/openlumen/lumend/internal/conn"
	"github.com/openlumen/lumend/pkg/ctrlproto"
)

var sniffShowStats bool

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Display control protocol frames in human-readable format",
	Long: `Continuously decode and display control protocol frames as they arrive
on the connection, with timestamp, command name, and decoded payload.

Useful for diagnosing link quality and protocol issues between a controller
and a node. Supports both serial and WebSocket connections.`,
	RunE: runSniff,
}

func init() {
	sniffCmd.Flags().BoolVar(&sniffShowStats, "stats", false, "Print frame/error statistics on exit")
	rootCmd.AddCommand(sniffCmd)
}

func runSniff(cmd *cobra.Command, args []string) error {
	c, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	fmt.Printf("Lumend - Control Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		_ = c.Close()
	}()

	decoder := ctrlproto.NewDecoder()
	stats := ctrlproto.NewStatistics()
	buf := make([]byte, 256)

	defer func() {
		if sniffShowStats {
			stats.CalculateRates()
			fmt.Print(stats.String())
		}
	}()

	for {
		n, err := c.Read(buf)
		if err != nil {
			if errors.Is(err, conn.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			return nil
		}

		// Evaluated lazily: a stale partial frame is dropped once new
		// bytes arrive.
		if decoder.CheckTimeout() {
			stats.RecordTimeout()
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.Feed(buf[i])
			if frame != nil || err != nil {
				stats.Update(frame, err)
			}
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(ctrlproto.FormatFrame(frame))
			}
		}
	}
}
