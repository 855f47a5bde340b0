// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package network drives the node's connectivity lifecycle: station
// connect attempts, access-point fallback, reconnect backoff, and the
// permanent disable latch for an unrecoverable transport.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openlumen/lumend/internal/settings"
)

// State is the connectivity state, in-memory and process-lifetime.
type State uint8

const (
	StateInitializing State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateApFallback
	StateDisabled
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateApFallback:
		return "ap-fallback"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ParseState converts a state name back to a State.
func ParseState(s string) (State, error) {
	for st := StateInitializing; st <= StateDisabled; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Info is the transport's current link information.
type Info struct {
	IP   string
	RSSI int
}

// Transport abstracts the underlying network stack. Connect blocks until
// the link is up, the context expires, or the attempt fails.
type Transport interface {
	Init() error
	Connect(ctx context.Context, ssid, password string) error
	Up() bool
	StartAccessPoint(ssid string) error
	Disconnect() error
	Info() Info
}

const (
	// DefaultConnectTimeout bounds a single station connect attempt.
	DefaultConnectTimeout = 15 * time.Second
	// DefaultBackoffBase is the first reconnect delay after a failure.
	DefaultBackoffBase = 30 * time.Second
	// DefaultBackoffMax caps exponential reconnect growth.
	DefaultBackoffMax = 5 * time.Minute
)

// Status is the snapshot consumed by the HTTP API and the serial bridge.
type Status struct {
	State     State     `json:"state"`
	IP        string    `json:"ip,omitempty"`
	RSSI      int       `json:"rssi,omitempty"`
	SSID      string    `json:"ssid,omitempty"`
	Attempts  uint32    `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	NextRetry time.Time `json:"nextRetry,omitzero"`
	ChangedAt time.Time `json:"changedAt"`
}

// Machine is the connectivity state machine. Transitions happen inside
// Tick, which never blocks; the only blocking wait lives in a background
// connect goroutine bounded by the connect timeout.
type Machine struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	transport Transport
	settings  *settings.Manager

	state      State
	attempts   uint32
	lastErr    error
	backoff    time.Duration
	nextRetry  time.Time
	apDeadline time.Time
	changedAt  time.Time

	connectTimeout time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration
	apTimeout      time.Duration

	result chan error
	cancel context.CancelFunc

	snapshot atomic.Pointer[Status]
}

// NewMachine creates a machine in the Initializing state. A nil clock
// selects the real clock.
func NewMachine(tr Transport, mgr *settings.Manager, clock clockwork.Clock) *Machine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Machine{
		clock:          clock,
		transport:      tr,
		settings:       mgr,
		state:          StateInitializing,
		changedAt:      clock.Now(),
		backoff:        DefaultBackoffBase,
		connectTimeout: DefaultConnectTimeout,
		backoffBase:    DefaultBackoffBase,
		backoffMax:     DefaultBackoffMax,
		result:         make(chan error, 1),
	}
	m.publishLocked()
	return m
}

// SetConnectTimeout overrides the per-attempt connect timeout.
func (m *Machine) SetConnectTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.connectTimeout = d
	}
}

// SetBackoff overrides the reconnect backoff base and cap.
func (m *Machine) SetBackoff(base, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if base > 0 {
		m.backoffBase = base
		m.backoff = base
	}
	if max >= base {
		m.backoffMax = max
	}
}

// SetApTimeout makes the fallback access point retry the station connect
// after d. Zero leaves the AP up until an explicit reconnect request.
func (m *Machine) SetApTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apTimeout = d
}

// Start evaluates the initial transition out of Initializing. A transport
// init failure is never retried within this boot: it escalates straight to
// Disabled and persists the permanent latch, so subsequent boots skip
// network initialization entirely.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.settings.Snapshot()
	switch {
	case v.NetworkDisabled:
		log.Warn().Msg("network permanently disabled, skipping initialization")
		m.setStateLocked(StateDisabled)
		return
	case !v.WiFiEnabled || v.SafeMode:
		m.setStateLocked(StateDisabled)
		return
	}

	if err := m.transport.Init(); err != nil {
		log.Error().Err(err).Msg("network stack initialization failed, disabling permanently")
		m.lastErr = err
		if perr := m.settings.DisableNetworkPermanently(); perr != nil {
			log.Error().Err(perr).Msg("failed to persist network-disabled latch")
		}
		m.setStateLocked(StateDisabled)
		return
	}

	m.beginConnectLocked()
}

// Tick advances the machine. It polls rather than blocks: pending connect
// results are drained, link loss is detected, and due retries are started.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	switch m.state {
	case StateConnecting:
		select {
		case err := <-m.result:
			if err != nil {
				m.onConnectFailedLocked(err, now)
			} else {
				m.onConnectedLocked()
			}
		default:
		}

	case StateConnected:
		if !m.transport.Up() {
			log.Warn().Msg("network link lost")
			m.nextRetry = now.Add(m.backoff)
			m.setStateLocked(StateDisconnected)
		} else {
			m.publishLocked()
		}

	case StateDisconnected:
		if !now.Before(m.nextRetry) {
			m.beginConnectLocked()
		}

	case StateApFallback:
		if m.apTimeout > 0 && !now.Before(m.apDeadline) {
			log.Info().Msg("access point timeout, retrying station connect")
			_ = m.transport.Disconnect()
			m.beginConnectLocked()
		}
	}
}

// RequestReconnect leaves the fallback access point (or cuts a pending
// backoff short) and starts a station connect attempt now.
func (m *Machine) RequestReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateApFallback:
		_ = m.transport.Disconnect()
		m.beginConnectLocked()
	case StateDisconnected:
		m.beginConnectLocked()
	}
}

// Stop cancels any pending connect attempt and drops the link.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	_ = m.transport.Disconnect()
}

// Snapshot returns the last published status.
func (m *Machine) Snapshot() Status {
	return *m.snapshot.Load()
}

// State returns the current state.
func (m *Machine) State() State {
	return m.snapshot.Load().State
}

func (m *Machine) beginConnectLocked() {
	v := m.settings.Snapshot()
	m.attempts++
	m.setStateLocked(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	m.cancel = cancel
	go func() {
		defer cancel()
		m.result <- m.transport.Connect(ctx, v.SSID, v.Password)
	}()
}

func (m *Machine) onConnectedLocked() {
	m.backoff = m.backoffBase
	m.lastErr = nil
	info := m.transport.Info()
	log.Info().Str("ip", info.IP).Int("rssi", info.RSSI).Msg("network connected")
	m.setStateLocked(StateConnected)
}

func (m *Machine) onConnectFailedLocked(err error, now time.Time) {
	m.lastErr = err
	log.Warn().Err(err).Uint32("attempt", m.attempts).Msg("connect attempt failed")

	if m.settings.Snapshot().APFallback {
		name := m.settings.Snapshot().DeviceName
		if apErr := m.transport.StartAccessPoint(name); apErr == nil {
			log.Info().Str("ssid", name).Msg("fallback access point started")
			if m.apTimeout > 0 {
				m.apDeadline = now.Add(m.apTimeout)
			}
			m.setStateLocked(StateApFallback)
			return
		} else {
			log.Error().Err(apErr).Msg("failed to start fallback access point")
		}
	}

	m.nextRetry = now.Add(m.backoff)
	m.backoff = min(m.backoff*2, m.backoffMax)
	m.setStateLocked(StateDisconnected)
}

func (m *Machine) setStateLocked(s State) {
	if s != m.state {
		log.Info().
			Stringer("from", m.state).
			Stringer("to", s).
			Msg("connectivity state change")
		m.changedAt = m.clock.Now()
	}
	m.state = s
	m.publishLocked()
}

func (m *Machine) publishLocked() {
	st := Status{
		State:     m.state,
		Attempts:  m.attempts,
		ChangedAt: m.changedAt,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if m.state == StateDisconnected {
		st.NextRetry = m.nextRetry
	}
	if m.state == StateConnected || m.state == StateApFallback {
		info := m.transport.Info()
		st.IP = info.IP
		st.RSSI = info.RSSI
	}
	if m.state == StateConnected {
		st.SSID = m.settings.Snapshot().SSID
	}
	m.snapshot.Store(&st)
}
