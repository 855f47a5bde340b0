// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package network

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlumen/lumend/internal/settings"
	"github.com/openlumen/lumend/internal/store"
)

type fakeTransport struct {
	mu           sync.Mutex
	initErr      error
	connectErr   error
	apErr        error
	up           bool
	initCalls    int
	connectCalls int
	apCalls      int
}

func (f *fakeTransport) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakeTransport) Connect(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.up = true
	return nil
}

func (f *fakeTransport) Up() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

func (f *fakeTransport) StartAccessPoint(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apCalls++
	return f.apErr
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = false
	return nil
}

func (f *fakeTransport) Info() Info {
	return Info{IP: "192.168.1.50", RSSI: -60}
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) setUp(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = up
}

func newTestMachine(t *testing.T, tr *fakeTransport) (*Machine, *settings.Manager, *clockwork.FakeClock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lumend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mgr := settings.Load(s.Namespace(store.NamespaceSettings))
	require.NoError(t, mgr.SetCredentials("venue-wifi", "secret"))

	clock := clockwork.NewFakeClock()
	return NewMachine(tr, mgr, clock), mgr, clock
}

// tickUntil ticks the machine until the wanted state appears. Connect
// results arrive from a goroutine, so a few polls may be needed.
func tickUntil(t *testing.T, m *Machine, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.Tick()
		return m.State() == want
	}, 2*time.Second, time.Millisecond, "machine never reached %s, stuck in %s", want, m.State())
}

func TestStartSkipsInitWhenPermanentlyDisabled(t *testing.T) {
	tr := &fakeTransport{}
	m, mgr, _ := newTestMachine(t, tr)
	require.NoError(t, mgr.DisableNetworkPermanently())

	m.Start()

	assert.Equal(t, StateDisabled, m.State())
	assert.Equal(t, 0, tr.initCalls, "transport must not be touched when latched off")
}

func TestStartDisabledInSafeMode(t *testing.T) {
	tr := &fakeTransport{}
	m, mgr, _ := newTestMachine(t, tr)
	require.NoError(t, mgr.EnterSafeMode("test"))

	m.Start()

	assert.Equal(t, StateDisabled, m.State())
	assert.Equal(t, 0, tr.initCalls)
}

func TestInitFailurePersistsLatchAndNeverRetries(t *testing.T) {
	tr := &fakeTransport{initErr: errors.New("invalid mbox")}
	m, mgr, clock := newTestMachine(t, tr)

	m.Start()

	assert.Equal(t, StateDisabled, m.State())
	assert.True(t, mgr.Snapshot().NetworkDisabled, "latch must be persisted")
	assert.Equal(t, "invalid mbox", m.Snapshot().LastError)

	// Disabled is terminal for this boot: ticking never retries init.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Hour)
		m.Tick()
	}
	assert.Equal(t, 1, tr.initCalls)
	assert.Equal(t, 0, tr.connectCalls)
}

func TestConnectSuccess(t *testing.T) {
	tr := &fakeTransport{}
	m, _, _ := newTestMachine(t, tr)

	m.Start()
	assert.Equal(t, StateConnecting, m.State())
	tickUntil(t, m, StateConnected)

	st := m.Snapshot()
	assert.Equal(t, "192.168.1.50", st.IP)
	assert.Equal(t, -60, st.RSSI)
	assert.Equal(t, "venue-wifi", st.SSID)
	assert.Equal(t, uint32(1), st.Attempts)
}

func TestConnectFailureFallsBackToAccessPoint(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("no ap found")}
	m, _, _ := newTestMachine(t, tr)

	m.Start()
	tickUntil(t, m, StateApFallback)

	assert.Equal(t, 1, tr.apCalls)
	assert.Equal(t, "no ap found", m.Snapshot().LastError)
}

func TestConnectFailureWithoutFallbackBacksOff(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("auth failed")}
	m, mgr, clock := newTestMachine(t, tr)
	disableFallback(t, mgr)

	m.Start()
	tickUntil(t, m, StateDisconnected)
	require.Equal(t, 1, tr.connectCalls)

	// Not yet due.
	clock.Advance(DefaultBackoffBase - time.Second)
	m.Tick()
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 1, tr.connectCalls)

	// First retry after the base interval.
	clock.Advance(2 * time.Second)
	m.Tick()
	require.Equal(t, StateConnecting, m.State())
	tickUntil(t, m, StateDisconnected)
	require.Equal(t, 2, tr.connectCalls)

	// Second retry waits twice as long.
	clock.Advance(DefaultBackoffBase + time.Second)
	m.Tick()
	assert.Equal(t, StateDisconnected, m.State(), "backoff must have doubled")
	clock.Advance(DefaultBackoffBase)
	m.Tick()
	assert.Equal(t, StateConnecting, m.State())
}

func TestBackoffResetsOnConnected(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("flaky")}
	m, mgr, clock := newTestMachine(t, tr)
	disableFallback(t, mgr)

	m.Start()
	tickUntil(t, m, StateDisconnected)
	clock.Advance(DefaultBackoffBase)
	m.Tick()
	tickUntil(t, m, StateDisconnected) // backoff now doubled

	tr.setConnectErr(nil)
	clock.Advance(2 * DefaultBackoffBase)
	m.Tick()
	tickUntil(t, m, StateConnected)

	// Drop the link; the next retry must use the base interval again.
	tr.setUp(false)
	m.Tick()
	require.Equal(t, StateDisconnected, m.State())
	clock.Advance(DefaultBackoffBase)
	m.Tick()
	assert.Equal(t, StateConnecting, m.State())
}

func TestChangedAtMarksTransitionNotPublish(t *testing.T) {
	tr := &fakeTransport{}
	m, _, clock := newTestMachine(t, tr)

	m.Start()
	tickUntil(t, m, StateConnected)
	connectedAt := m.Snapshot().ChangedAt

	// Steady-state ticks republish the snapshot but must not restamp the
	// transition time.
	clock.Advance(time.Minute)
	m.Tick()
	require.Equal(t, StateConnected, m.State())
	assert.Equal(t, connectedAt, m.Snapshot().ChangedAt)

	tr.setUp(false)
	m.Tick()
	require.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, clock.Now(), m.Snapshot().ChangedAt)
}

func TestLinkLossDetectedByPolling(t *testing.T) {
	tr := &fakeTransport{}
	m, _, _ := newTestMachine(t, tr)

	m.Start()
	tickUntil(t, m, StateConnected)

	tr.setUp(false)
	m.Tick()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestRequestReconnectLeavesAccessPoint(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("no ap found")}
	m, _, _ := newTestMachine(t, tr)

	m.Start()
	tickUntil(t, m, StateApFallback)

	tr.setConnectErr(nil)
	m.RequestReconnect()
	assert.Equal(t, StateConnecting, m.State())
	tickUntil(t, m, StateConnected)
}

func TestAccessPointTimeoutRetriesStation(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("no ap found")}
	m, _, clock := newTestMachine(t, tr)
	m.SetApTimeout(time.Minute)

	m.Start()
	tickUntil(t, m, StateApFallback)

	tr.setConnectErr(nil)
	clock.Advance(time.Minute)
	m.Tick()
	assert.Equal(t, StateConnecting, m.State())
	tickUntil(t, m, StateConnected)
}

func disableFallback(t *testing.T, mgr *settings.Manager) {
	t.Helper()
	// AP fallback defaults on; flip it off through the settings layer the
	// way the HTTP API would.
	require.NoError(t, mgr.SetAPFallback(false))
}
