// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlumen/lumend/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lumend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadDefaultsOnEmptyStore(t *testing.T) {
	s := openTestStore(t)
	m := Load(s.Namespace(store.NamespaceSettings))

	v := m.Snapshot()
	assert.Equal(t, Defaults(), v)
	assert.Equal(t, ModeNetwork, v.Mode)
	assert.False(t, v.SafeMode)
	assert.False(t, v.NetworkDisabled)
}

func TestMutationsPersistAcrossReload(t *testing.T) {
	s := openTestStore(t)
	ns := s.Namespace(store.NamespaceSettings)

	m := Load(ns)
	require.NoError(t, m.SetMode(ModeEffect))
	require.NoError(t, m.SetBrightness(200))
	require.NoError(t, m.SetStaticColor(RGB{R: 10, G: 20, B: 30}))
	require.NoError(t, m.SetEffect(EffectChase, 50))
	require.NoError(t, m.SetCredentials("venue-wifi", "secret"))
	require.NoError(t, m.SetUniverse(7))
	require.NoError(t, m.SetTopology([]int{5, 18}, 2, 60))

	reloaded := Load(ns).Snapshot()
	assert.Equal(t, ModeEffect, reloaded.Mode)
	assert.Equal(t, uint8(200), reloaded.Brightness)
	assert.Equal(t, RGB{R: 10, G: 20, B: 30}, reloaded.StaticColor)
	assert.Equal(t, EffectChase, reloaded.Effect)
	assert.Equal(t, uint8(50), reloaded.EffectSpeed)
	assert.Equal(t, "venue-wifi", reloaded.SSID)
	assert.Equal(t, "secret", reloaded.Password)
	assert.Equal(t, uint16(7), reloaded.Universe)
	assert.Equal(t, []int{5, 18}, reloaded.Pins)
	assert.Equal(t, 120, reloaded.PixelCount())
}

func TestSetModeRejectsUnknown(t *testing.T) {
	s := openTestStore(t)
	m := Load(s.Namespace(store.NamespaceSettings))
	assert.Error(t, m.SetMode(Mode(9)))
	assert.Equal(t, ModeNetwork, m.Snapshot().Mode)
}

func TestSetTopologyRejectsZero(t *testing.T) {
	s := openTestStore(t)
	m := Load(s.Namespace(store.NamespaceSettings))
	assert.Error(t, m.SetTopology([]int{1}, 0, 10))
	assert.Error(t, m.SetTopology([]int{1}, 1, 0))
}

func TestEnterSafeMode(t *testing.T) {
	s := openTestStore(t)
	ns := s.Namespace(store.NamespaceSettings)

	m := Load(ns)
	require.NoError(t, m.SetMode(ModeNetwork))
	require.NoError(t, m.SetBrightness(255))
	require.NoError(t, m.EnterSafeMode("boot loop"))

	v := m.Snapshot()
	assert.True(t, v.SafeMode)
	assert.False(t, v.WiFiEnabled)
	assert.Equal(t, ModeStatic, v.Mode)
	assert.Equal(t, uint16(SafeModeStripCount), v.StripCount)
	assert.Equal(t, uint16(SafeModeLedsPerStrip), v.LedsPerStrip)
	assert.Equal(t, uint8(SafeModeBrightness), v.Brightness)
	assert.Equal(t, SafeModeColor, v.StaticColor)

	// Safe mode survives a restart.
	assert.True(t, Load(ns).Snapshot().SafeMode)
}

func TestDisableNetworkPermanentlyLatches(t *testing.T) {
	s := openTestStore(t)
	ns := s.Namespace(store.NamespaceSettings)

	m := Load(ns)
	require.NoError(t, m.DisableNetworkPermanently())

	v := Load(ns).Snapshot()
	assert.True(t, v.NetworkDisabled)
	assert.False(t, v.WiFiEnabled)
}

func TestFactoryResetClearsLatches(t *testing.T) {
	s := openTestStore(t)
	ns := s.Namespace(store.NamespaceSettings)

	m := Load(ns)
	require.NoError(t, m.EnterSafeMode("test"))
	require.NoError(t, m.DisableNetworkPermanently())
	require.NoError(t, m.FactoryReset())

	v := m.Snapshot()
	assert.Equal(t, Defaults(), v)
	assert.False(t, v.SafeMode)
	assert.False(t, v.NetworkDisabled)
	assert.Equal(t, Defaults(), Load(ns).Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := openTestStore(t)
	m := Load(s.Namespace(store.NamespaceSettings))

	v := m.Snapshot()
	v.Pins[0] = 99
	assert.NotEqual(t, 99, m.Snapshot().Pins[0])
}

func TestModeStrings(t *testing.T) {
	for _, mode := range []Mode{ModeNetwork, ModeStatic, ModeEffect} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	_, err := ParseMode("disco")
	assert.Error(t, err)
}
