// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package config loads the host-side bootstrap configuration: everything
// the process needs before the settings store is open (paths, ports,
// listen addresses). Device behavior itself lives in the settings store,
// not here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is the config file looked up in the data directory.
const DefaultFileName = "lumend.toml"

type Serial struct {
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

type HTTP struct {
	Addr string `toml:"addr"`
}

type ArtNet struct {
	Bind string `toml:"bind"`
}

type Boot struct {
	Threshold     uint32 `toml:"threshold"`
	WindowSeconds int    `toml:"window_seconds"`
}

type Network struct {
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	BackoffBaseSeconds    int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds     int `toml:"backoff_max_seconds"`
	ApTimeoutSeconds      int `toml:"ap_timeout_seconds"`
}

type Config struct {
	DataDir  string  `toml:"data_dir"`
	LogLevel string  `toml:"log_level"`
	Serial   Serial  `toml:"serial"`
	HTTP     HTTP    `toml:"http"`
	ArtNet   ArtNet  `toml:"artnet"`
	Boot     Boot    `toml:"boot"`
	Network  Network `toml:"network"`
}

// Defaults returns the stock configuration rooted at dataDir.
func Defaults(dataDir string) Config {
	return Config{
		DataDir:  dataDir,
		LogLevel: "info",
		Serial: Serial{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
		HTTP: HTTP{
			Addr: ":8080",
		},
		ArtNet: ArtNet{
			Bind: ":6454",
		},
		Boot: Boot{
			Threshold:     3,
			WindowSeconds: 60,
		},
		Network: Network{
			ConnectTimeoutSeconds: 15,
			BackoffBaseSeconds:    30,
			BackoffMaxSeconds:     300,
		},
	}
}

// Load reads the config file under dataDir, overlaying the defaults. A
// missing file is not an error: first run returns pure defaults.
func Load(dataDir string) (Config, error) {
	cfg := Defaults(dataDir)

	raw, err := os.ReadFile(filepath.Join(dataDir, DefaultFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// Save writes the config file under its data directory.
func (c Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(c.DataDir, DefaultFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// StorePath returns the settings database path.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "lumend.db")
}

// LogPath returns the rotating log file path.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "lumend.log")
}
