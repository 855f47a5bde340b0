// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors
//
// Lumend - ArtNet LED lighting node daemon
//
// Receives DMX-over-IP (ArtNet) data and framed serial control commands
// and drives addressable LED strips through a pluggable driver.

package main

import (
	"os"

	"github.com/openlumen/lumend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
