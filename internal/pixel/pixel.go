// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package pixel arbitrates ownership of the shared pixel buffer between
// the three producers: network DMX data, a static color, and generated
// effects. Exactly one producer writes per mode; a mode switch zeroes the
// buffer before the new producer runs so stale pixels are never displayed.
package pixel

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openlumen/lumend/internal/settings"
)

// RGB is one pixel color.
type RGB = settings.RGB

// Driver consumes finished pixel frames. The concrete LED strip driver
// lives behind this interface.
type Driver interface {
	Render(pixels []RGB, brightness uint8) error
}

// Renderer computes one effect frame. t is the time since the effect
// started; base is the configured color for effects that use one.
type Renderer interface {
	Render(frame []RGB, t time.Duration, base RGB)
}

// Arbiter owns the pixel buffer and enforces mode exclusivity.
type Arbiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	mode      settings.Mode
	pixels    []RGB
	dirty     bool
	color     RGB
	effect    settings.Effect
	speed     uint8
	renderers map[settings.Effect]Renderer
	started   time.Time
	lastFrame time.Time
}

// NewArbiter creates an arbiter for count pixels with the default effect
// renderers installed. A nil clock selects the real clock.
func NewArbiter(count int, mode settings.Mode, clock clockwork.Clock) *Arbiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Arbiter{
		clock:     clock,
		mode:      mode,
		pixels:    make([]RGB, count),
		renderers: DefaultRenderers(),
	}
}

// SetRenderer installs or replaces the renderer for one effect.
func (a *Arbiter) SetRenderer(effect settings.Effect, r Renderer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renderers[effect] = r
}

// Mode returns the active mode.
func (a *Arbiter) Mode() settings.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetMode switches the active producer. Setting the current mode again is
// a no-op: the buffer is not cleared twice. On an actual change the whole
// buffer is zeroed synchronously before the new producer may write.
func (a *Arbiter) SetMode(mode settings.Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mode == a.mode {
		return
	}
	a.mode = mode
	a.clearLocked()
	if mode == settings.ModeEffect {
		a.started = a.clock.Now()
		a.lastFrame = time.Time{}
	}
}

// Resize changes the pixel count, clearing the buffer.
func (a *Arbiter) Resize(count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pixels = make([]RGB, count)
	a.dirty = true
}

func (a *Arbiter) clearLocked() {
	clear(a.pixels)
	a.dirty = true
}

// ApplyDMX maps consecutive 3-byte DMX groups to pixels in order,
// truncating at whichever runs out first. Ignored outside network mode.
func (a *Arbiter) ApplyDMX(channels []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != settings.ModeNetwork {
		return
	}
	n := len(channels) / 3
	if n > len(a.pixels) {
		n = len(a.pixels)
	}
	for i := 0; i < n; i++ {
		a.pixels[i] = RGB{
			R: channels[i*3],
			G: channels[i*3+1],
			B: channels[i*3+2],
		}
	}
	a.dirty = true
}

// ApplyStatic paints every pixel with one color. Ignored outside static
// mode.
func (a *Arbiter) ApplyStatic(c RGB) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.color = c
	if a.mode != settings.ModeStatic {
		return
	}
	for i := range a.pixels {
		a.pixels[i] = c
	}
	a.dirty = true
}

// SetBaseColor updates the color effects render from without repainting
// the buffer. ApplyStatic keeps it in sync thereafter.
func (a *Arbiter) SetBaseColor(c RGB) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.color = c
}

// SetEffect selects the effect and its speed and restarts its timebase.
func (a *Arbiter) SetEffect(effect settings.Effect, speed uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.effect = effect
	a.speed = speed
	a.started = a.clock.Now()
	a.lastFrame = time.Time{}
}

// frameInterval derives the refresh interval from the inverse of the
// speed setting: 255 is the fastest.
func (a *Arbiter) frameInterval() time.Duration {
	return time.Duration(256-int(a.speed)) * time.Millisecond
}

// TickEffect renders the next effect frame if the refresh interval has
// elapsed. It is a cheap time check, never a blocking delay, so it is safe
// to call from the main loop at any rate. Reports whether a frame was
// rendered.
func (a *Arbiter) TickEffect() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != settings.ModeEffect {
		return false
	}
	r, ok := a.renderers[a.effect]
	if !ok {
		return false
	}

	now := a.clock.Now()
	if !a.lastFrame.IsZero() && now.Sub(a.lastFrame) < a.frameInterval() {
		return false
	}
	a.lastFrame = now
	r.Render(a.pixels, now.Sub(a.started), a.color)
	a.dirty = true
	return true
}

// Snapshot returns a copy of the pixel buffer.
func (a *Arbiter) Snapshot() []RGB {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RGB, len(a.pixels))
	copy(out, a.pixels)
	return out
}

// TakeDirty reports whether the buffer changed since the last call and
// clears the flag. The render loop uses it to skip redundant driver
// writes.
func (a *Arbiter) TakeDirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.dirty
	a.dirty = false
	return d
}

// Flush renders the current buffer through the driver when dirty.
func (a *Arbiter) Flush(drv Driver, brightness uint8) error {
	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	a.dirty = false
	frame := make([]RGB, len(a.pixels))
	copy(frame, a.pixels)
	a.mu.Unlock()
	return drv.Render(frame, brightness)
}
