// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors

package cmd

import (
	"fmt"

	"github.com/openlumen/lumend/internal/conn"
)

// OpenConnection opens either a serial or WebSocket control connection
// based on the persistent flags.
func OpenConnection() (conn.Connection, string, error) {
	if wsURL != "" {
		c, err := conn.OpenWebSocket(wsURL, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return c, fmt.Sprintf("WebSocket %s", wsURL), nil
	}

	if portName == "" {
		return nil, "", fmt.Errorf("no connection specified (use --port or --url)")
	}

	c, err := conn.OpenSerial(portName, baudRate)
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("Serial %s @ %d baud", portName, baudRate), nil
}
