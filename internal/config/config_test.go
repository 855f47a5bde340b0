// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Defaults(dir), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	body := `
log_level = "debug"

[serial]
port = "/dev/ttyACM1"

[artnet]
bind = "0.0.0.0:6454"

[boot]
threshold = 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(body), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, "0.0.0.0:6454", cfg.ArtNet.Bind)
	assert.Equal(t, uint32(5), cfg.Boot.Threshold)
	// Untouched fields keep defaults.
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 60, cfg.Boot.WindowSeconds)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("not [valid"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults(dir)
	cfg.Serial.Port = "/dev/ttyS3"
	cfg.Network.BackoffBaseSeconds = 10
	require.NoError(t, cfg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestPaths(t *testing.T) {
	cfg := Defaults("/var/lib/lumend")
	assert.Equal(t, "/var/lib/lumend/lumend.db", cfg.StorePath())
	assert.Equal(t, "/var/lib/lumend/lumend.log", cfg.LogPath())
}
