// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package boot detects crash loops across process restarts. Each start is
// recorded in the bootstat namespace; too many starts inside a short window
// means the node is cycling before it stabilizes and should come up in a
// minimal safe configuration instead.
package boot

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openlumen/lumend/internal/store"
)

const (
	// DefaultThreshold is the number of rapid restarts that counts as a loop.
	DefaultThreshold = 3
	// DefaultWindow is how soon after the previous start a restart counts as
	// rapid.
	DefaultWindow = 60 * time.Second
)

const (
	keyBootCount = "bootCount"
	keyLastBoot  = "lastBootMillis"
)

// Supervisor records boot attempts and decides whether the node is looping.
type Supervisor struct {
	ns        *store.Namespace
	clock     clockwork.Clock
	threshold uint32
	window    time.Duration
}

// NewSupervisor creates a supervisor with the default threshold and window.
// A nil clock selects the real clock.
func NewSupervisor(ns *store.Namespace, clock clockwork.Clock) *Supervisor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Supervisor{
		ns:        ns,
		clock:     clock,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
	}
}

// SetThreshold overrides the restart count that triggers loop detection.
func (s *Supervisor) SetThreshold(n uint32) {
	if n > 0 {
		s.threshold = n
	}
}

// SetWindow overrides the rapid-restart window.
func (s *Supervisor) SetWindow(d time.Duration) {
	if d > 0 {
		s.window = d
	}
}

// CheckAndRecord registers this boot attempt and reports whether a boot loop
// was detected. On detection the counter is reset so that the recovery boot
// itself does not immediately re-trigger. Storage failures are logged and
// treated as no history; crash protection must never block startup.
func (s *Supervisor) CheckAndRecord() bool {
	now := s.clock.Now().UnixMilli()

	var count uint32
	var last int64
	if err := s.ns.View(func(t *store.Txn) error {
		count = t.GetUint32(keyBootCount, 0)
		last = t.GetInt64(keyLastBoot, 0)
		return nil
	}); err != nil {
		log.Warn().Err(err).Msg("boot history unavailable")
		count, last = 0, 0
	}

	// A previous run that stayed up past the window clears the streak.
	if last != 0 && now-last >= s.window.Milliseconds() {
		count = 0
	}
	count++

	looping := count >= s.threshold
	if looping {
		log.Warn().
			Uint32("count", count).
			Dur("window", s.window).
			Msg("boot loop detected")
		count = 0
	}

	if err := s.ns.Update(func(t *store.Txn) error {
		if err := t.PutUint32(keyBootCount, count); err != nil {
			return err
		}
		return t.PutInt64(keyLastBoot, now)
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record boot attempt")
	}

	return looping
}

// MarkStable clears the restart streak. Call it once the node has been
// running long enough to be considered healthy.
func (s *Supervisor) MarkStable() {
	if err := s.ns.Update(func(t *store.Txn) error {
		return t.PutUint32(keyBootCount, 0)
	}); err != nil {
		log.Warn().Err(err).Msg("failed to clear boot counter")
	}
}

// Count returns the recorded restart streak.
func (s *Supervisor) Count() uint32 {
	var count uint32
	_ = s.ns.View(func(t *store.Txn) error {
		count = t.GetUint32(keyBootCount, 0)
		return nil
	})
	return count
}
