// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package pixel

import (
	"math"
	"time"

	"github.com/openlumen/lumend/internal/settings"
)

// DefaultRenderers returns the built-in effect set.
func DefaultRenderers() map[settings.Effect]Renderer {
	return map[settings.Effect]Renderer{
		settings.EffectRainbow: RainbowRenderer{},
		settings.EffectPulse:   PulseRenderer{},
		settings.EffectChase:   ChaseRenderer{},
	}
}

// wheel maps a 0..255 position onto the RGB color wheel.
func wheel(pos uint8) RGB {
	switch {
	case pos < 85:
		return RGB{R: 255 - pos*3, G: pos * 3}
	case pos < 170:
		pos -= 85
		return RGB{G: 255 - pos*3, B: pos * 3}
	default:
		pos -= 170
		return RGB{R: pos * 3, B: 255 - pos*3}
	}
}

// RainbowRenderer scrolls the full color wheel along the strip.
type RainbowRenderer struct{}

func (RainbowRenderer) Render(frame []RGB, t time.Duration, _ RGB) {
	if len(frame) == 0 {
		return
	}
	offset := uint8(t / (20 * time.Millisecond))
	for i := range frame {
		frame[i] = wheel(uint8(i*256/len(frame)) + offset)
	}
}

// PulseRenderer breathes the base color with a sine envelope.
type PulseRenderer struct{}

func (PulseRenderer) Render(frame []RGB, t time.Duration, base RGB) {
	phase := t.Seconds() * math.Pi // one full breath every 2s
	level := (math.Sin(phase) + 1) / 2
	c := RGB{
		R: uint8(float64(base.R) * level),
		G: uint8(float64(base.G) * level),
		B: uint8(float64(base.B) * level),
	}
	for i := range frame {
		frame[i] = c
	}
}

// ChaseRenderer runs a short dot of the base color down the strip.
type ChaseRenderer struct{}

const chaseWidth = 3

func (ChaseRenderer) Render(frame []RGB, t time.Duration, base RGB) {
	if len(frame) == 0 {
		return
	}
	clear(frame)
	head := int(t/(50*time.Millisecond)) % len(frame)
	for i := 0; i < chaseWidth; i++ {
		frame[(head+i)%len(frame)] = base
	}
}
