// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package settings holds the node's durable device settings as a typed
// struct with an explicit mapping to storage keys. All mutations are
// serialized through the Manager and persisted transactionally, whichever
// ingress path (HTTP or serial control) they arrive from.
package settings

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openlumen/lumend/internal/store"
)

// Mode selects which producer owns the pixel buffer. The values are wire
// and storage stable.
type Mode uint8

const (
	ModeNetwork Mode = 0 // pixels come from ArtNet DMX data
	ModeStatic  Mode = 1 // one static color on every pixel
	ModeEffect  Mode = 2 // pixels come from a generated effect
)

// String implements fmt.Stringer
func (m Mode) String() string {
	switch m {
	case ModeNetwork:
		return "network"
	case ModeStatic:
		return "static"
	case ModeEffect:
		return "effect"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m <= ModeEffect
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "network":
		return ModeNetwork, nil
	case "static":
		return ModeStatic, nil
	case "effect":
		return ModeEffect, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Effect selects a built-in effect generator.
type Effect uint8

const (
	EffectRainbow Effect = 0
	EffectPulse   Effect = 1
	EffectChase   Effect = 3
)

// RGB is one pixel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Safe mode forces a minimal, visually distinct configuration: a short red
// strip at reduced brightness.
const (
	SafeModeStripCount   = 1
	SafeModeLedsPerStrip = 8
	SafeModeBrightness   = 64
)

// SafeModeColor is the reserved color displayed in safe mode.
var SafeModeColor = RGB{R: 255}

// Storage keys. Every Values field maps to exactly one key in the settings
// namespace.
const (
	keySSID            = "ssid"
	keyPassword        = "password"
	keyWiFiEnabled     = "wifiEnabled"
	keyAPFallback      = "apFallback"
	keyDeviceName      = "deviceName"
	keyUniverse        = "universe"
	keyPins            = "pins"
	keyStripCount      = "stripCount"
	keyLedsPerStrip    = "ledsPerStrip"
	keyBrightness      = "brightness"
	keyMode            = "mode"
	keyColorR          = "colorR"
	keyColorG          = "colorG"
	keyColorB          = "colorB"
	keyEffect          = "effect"
	keyEffectSpeed     = "effectSpeed"
	keySafeMode        = "safeMode"
	keyNetworkDisabled = "netDisabled"
)

// Values is the full durable device configuration.
type Values struct {
	SSID            string `json:"ssid"`
	Password        string `json:"-"`
	WiFiEnabled     bool   `json:"wifiEnabled"`
	APFallback      bool   `json:"apFallback"`
	DeviceName      string `json:"deviceName"`
	Universe        uint16 `json:"universe"`
	Pins            []int  `json:"pins"`
	StripCount      uint16 `json:"stripCount"`
	LedsPerStrip    uint16 `json:"ledsPerStrip"`
	Brightness      uint8  `json:"brightness"`
	Mode            Mode   `json:"mode"`
	StaticColor     RGB    `json:"staticColor"`
	Effect          Effect `json:"effect"`
	EffectSpeed     uint8  `json:"effectSpeed"`
	SafeMode        bool   `json:"safeMode"`
	NetworkDisabled bool   `json:"networkDisabled"`
}

// PixelCount returns the total pixel count of the configured topology.
func (v Values) PixelCount() int {
	return int(v.StripCount) * int(v.LedsPerStrip)
}

// Defaults returns the first-run configuration.
func Defaults() Values {
	return Values{
		WiFiEnabled:  true,
		APFallback:   true,
		DeviceName:   "lumen-node",
		Universe:     0,
		Pins:         []int{12, 14, 2, 4},
		StripCount:   1,
		LedsPerStrip: 144,
		Brightness:   128,
		Mode:         ModeNetwork,
		StaticColor:  RGB{R: 255, G: 255, B: 255},
		Effect:       EffectRainbow,
		EffectSpeed:  128,
	}
}

// Manager owns the settings copy in memory and serializes every mutation
// through one mutex and one store transaction.
type Manager struct {
	mu   sync.Mutex
	ns   *store.Namespace
	vals Values
}

// Load reads settings from the given namespace, falling back to defaults
// for missing or undecodable keys.
func Load(ns *store.Namespace) *Manager {
	m := &Manager{ns: ns, vals: Defaults()}

	err := ns.View(func(t *store.Txn) error {
		d := Defaults()
		m.vals.SSID = t.GetString(keySSID, d.SSID)
		m.vals.Password = t.GetString(keyPassword, d.Password)
		m.vals.WiFiEnabled = t.GetBool(keyWiFiEnabled, d.WiFiEnabled)
		m.vals.APFallback = t.GetBool(keyAPFallback, d.APFallback)
		m.vals.DeviceName = t.GetString(keyDeviceName, d.DeviceName)
		m.vals.Universe = t.GetUint16(keyUniverse, d.Universe)
		m.vals.Pins = t.GetInts(keyPins, d.Pins)
		m.vals.StripCount = t.GetUint16(keyStripCount, d.StripCount)
		m.vals.LedsPerStrip = t.GetUint16(keyLedsPerStrip, d.LedsPerStrip)
		m.vals.Brightness = t.GetUint8(keyBrightness, d.Brightness)
		m.vals.Mode = Mode(t.GetUint8(keyMode, uint8(d.Mode)))
		m.vals.StaticColor.R = t.GetUint8(keyColorR, d.StaticColor.R)
		m.vals.StaticColor.G = t.GetUint8(keyColorG, d.StaticColor.G)
		m.vals.StaticColor.B = t.GetUint8(keyColorB, d.StaticColor.B)
		m.vals.Effect = Effect(t.GetUint8(keyEffect, uint8(d.Effect)))
		m.vals.EffectSpeed = t.GetUint8(keyEffectSpeed, d.EffectSpeed)
		m.vals.SafeMode = t.GetBool(keySafeMode, d.SafeMode)
		m.vals.NetworkDisabled = t.GetBool(keyNetworkDisabled, d.NetworkDisabled)
		return nil
	})
	if err != nil {
		// First run or corrupted store: run on defaults.
		log.Warn().Err(err).Msg("settings load failed, using defaults")
		m.vals = Defaults()
	}

	if !m.vals.Mode.Valid() {
		m.vals.Mode = ModeStatic
	}

	return m
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

func (m *Manager) copyLocked() Values {
	v := m.vals
	v.Pins = append([]int(nil), m.vals.Pins...)
	return v
}

// persistLocked writes every settings key in one transaction.
func (m *Manager) persistLocked() error {
	v := m.vals
	return m.ns.Update(func(t *store.Txn) error {
		if err := t.PutString(keySSID, v.SSID); err != nil {
			return err
		}
		if err := t.PutString(keyPassword, v.Password); err != nil {
			return err
		}
		if err := t.PutBool(keyWiFiEnabled, v.WiFiEnabled); err != nil {
			return err
		}
		if err := t.PutBool(keyAPFallback, v.APFallback); err != nil {
			return err
		}
		if err := t.PutString(keyDeviceName, v.DeviceName); err != nil {
			return err
		}
		if err := t.PutUint16(keyUniverse, v.Universe); err != nil {
			return err
		}
		if err := t.PutInts(keyPins, v.Pins); err != nil {
			return err
		}
		if err := t.PutUint16(keyStripCount, v.StripCount); err != nil {
			return err
		}
		if err := t.PutUint16(keyLedsPerStrip, v.LedsPerStrip); err != nil {
			return err
		}
		if err := t.PutUint8(keyBrightness, v.Brightness); err != nil {
			return err
		}
		if err := t.PutUint8(keyMode, uint8(v.Mode)); err != nil {
			return err
		}
		if err := t.PutUint8(keyColorR, v.StaticColor.R); err != nil {
			return err
		}
		if err := t.PutUint8(keyColorG, v.StaticColor.G); err != nil {
			return err
		}
		if err := t.PutUint8(keyColorB, v.StaticColor.B); err != nil {
			return err
		}
		if err := t.PutUint8(keyEffect, uint8(v.Effect)); err != nil {
			return err
		}
		if err := t.PutUint8(keyEffectSpeed, v.EffectSpeed); err != nil {
			return err
		}
		if err := t.PutBool(keySafeMode, v.SafeMode); err != nil {
			return err
		}
		return t.PutBool(keyNetworkDisabled, v.NetworkDisabled)
	})
}

// mutate applies fn to the settings under the lock and persists the result.
func (m *Manager) mutate(fn func(*Values)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.vals)
	return m.persistLocked()
}

// SetMode switches the operating mode. Modes are mutually exclusive by
// construction: one field holds the single active mode.
func (m *Manager) SetMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %d", uint8(mode))
	}
	return m.mutate(func(v *Values) { v.Mode = mode })
}

// SetBrightness updates the global brightness.
func (m *Manager) SetBrightness(b uint8) error {
	return m.mutate(func(v *Values) { v.Brightness = b })
}

// SetStaticColor updates the static mode color.
func (m *Manager) SetStaticColor(c RGB) error {
	return m.mutate(func(v *Values) { v.StaticColor = c })
}

// SetEffect selects an effect and its speed.
func (m *Manager) SetEffect(effect Effect, speed uint8) error {
	return m.mutate(func(v *Values) {
		v.Effect = effect
		v.EffectSpeed = speed
	})
}

// SetCredentials updates the WiFi credentials.
func (m *Manager) SetCredentials(ssid, password string) error {
	return m.mutate(func(v *Values) {
		v.SSID = ssid
		v.Password = password
	})
}

// SetWiFiEnabled toggles station mode.
func (m *Manager) SetWiFiEnabled(enabled bool) error {
	return m.mutate(func(v *Values) { v.WiFiEnabled = enabled })
}

// SetAPFallback toggles the fallback access point.
func (m *Manager) SetAPFallback(enabled bool) error {
	return m.mutate(func(v *Values) { v.APFallback = enabled })
}

// SetDeviceName updates the device name.
func (m *Manager) SetDeviceName(name string) error {
	return m.mutate(func(v *Values) { v.DeviceName = name })
}

// SetUniverse updates the ArtNet universe.
func (m *Manager) SetUniverse(u uint16) error {
	return m.mutate(func(v *Values) { v.Universe = u })
}

// SetTopology reconfigures the LED strip layout.
func (m *Manager) SetTopology(pins []int, stripCount, ledsPerStrip uint16) error {
	if stripCount == 0 || ledsPerStrip == 0 {
		return fmt.Errorf("invalid topology: %d strips x %d leds", stripCount, ledsPerStrip)
	}
	return m.mutate(func(v *Values) {
		v.Pins = append([]int(nil), pins...)
		v.StripCount = stripCount
		v.LedsPerStrip = ledsPerStrip
	})
}

// EnterSafeMode latches the minimal safe configuration and persists it.
func (m *Manager) EnterSafeMode(reason string) error {
	log.Warn().Str("reason", reason).Msg("entering safe mode")
	return m.mutate(func(v *Values) {
		v.SafeMode = true
		v.WiFiEnabled = false
		v.Mode = ModeStatic
		v.StripCount = SafeModeStripCount
		v.LedsPerStrip = SafeModeLedsPerStrip
		v.Brightness = SafeModeBrightness
		v.StaticColor = SafeModeColor
	})
}

// DisableNetworkPermanently latches the network-disabled flag. Once set it
// is never cleared automatically; only FactoryReset removes it.
func (m *Manager) DisableNetworkPermanently() error {
	return m.mutate(func(v *Values) {
		v.NetworkDisabled = true
		v.WiFiEnabled = false
	})
}

// FactoryReset clears the settings namespace and returns to defaults. This
// is the only operation that clears NetworkDisabled and SafeMode.
func (m *Manager) FactoryReset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ns.Clear(); err != nil {
		return err
	}
	m.vals = Defaults()
	return nil
}
