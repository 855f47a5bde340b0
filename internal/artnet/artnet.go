// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package artnet receives single-universe ArtDMX data over UDP. Every
// datagram is validated against the ArtNet header contract before any
// payload byte is trusted; rejected packets are pure no-ops.
package artnet

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// Port is the well-known ArtNet UDP port.
	Port = 6454
	// MaxChannels is the DMX universe size.
	MaxChannels = 512
	// OpDmx is the ArtDMX opcode.
	OpDmx = 0x5000

	headerSize = 18
)

var signature = []byte("Art-Net\x00")

// Stats counts ingest activity. Updated only when a packet is accepted,
// except Rejected which counts validation failures.
type Stats struct {
	Packets      uint64    `json:"packets"`
	Rejected     uint64    `json:"rejected"`
	LastSequence uint8     `json:"lastSequence"`
	LastReceived time.Time `json:"lastReceived,omitzero"`
}

// UniverseBuffer holds the most recent accepted DMX payload for one
// universe.
type UniverseBuffer struct {
	mu       sync.Mutex
	channels [MaxChannels]byte
	length   int
	sequence uint8
}

// store replaces the buffered payload.
func (u *UniverseBuffer) store(payload []byte, sequence uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	copy(u.channels[:], payload)
	u.length = len(payload)
	u.sequence = sequence
}

// Snapshot returns a copy of the buffered channel data and its sequence.
func (u *UniverseBuffer) Snapshot() ([]byte, uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]byte, u.length)
	copy(out, u.channels[:u.length])
	return out, u.sequence
}

// Ingest validates inbound datagrams for one configured universe and copies
// accepted payloads into its UniverseBuffer.
type Ingest struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	universe uint16
	buf      UniverseBuffer
	stats    Stats
}

// NewIngest creates an ingest for the given universe. A nil clock selects
// the real clock.
func NewIngest(universe uint16, clock clockwork.Clock) *Ingest {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ingest{clock: clock, universe: universe}
}

// SetUniverse changes the accepted universe.
func (g *Ingest) SetUniverse(universe uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.universe = universe
}

// HandlePacket validates one datagram and, if it passes every check, copies
// its DMX payload into the universe buffer and updates the stats. It
// reports whether the packet was accepted. Validation order:
//
//  1. minimum length (header + at least the length field)
//  2. "Art-Net\0" signature
//  3. ArtDMX opcode, little-endian
//  4. configured universe, little-endian
//  5. declared length, big-endian, clamped to 512 and to the bytes
//     actually present — the declared length is never trusted over the
//     datagram size
func (g *Ingest) HandlePacket(pkt []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(pkt) < headerSize {
		g.stats.Rejected++
		return false
	}
	if !bytes.Equal(pkt[0:8], signature) {
		g.stats.Rejected++
		return false
	}
	if binary.LittleEndian.Uint16(pkt[8:10]) != OpDmx {
		g.stats.Rejected++
		return false
	}
	if binary.LittleEndian.Uint16(pkt[14:16]) != g.universe {
		g.stats.Rejected++
		return false
	}

	length := int(binary.BigEndian.Uint16(pkt[16:18]))
	if length > MaxChannels {
		length = MaxChannels
	}
	if avail := len(pkt) - headerSize; length > avail {
		length = avail
	}

	sequence := pkt[12]
	g.buf.store(pkt[headerSize:headerSize+length], sequence)
	g.stats.Packets++
	g.stats.LastSequence = sequence
	g.stats.LastReceived = g.clock.Now()
	return true
}

// Buffer returns the universe buffer fed by this ingest.
func (g *Ingest) Buffer() *UniverseBuffer {
	return &g.buf
}

// Stats returns a copy of the ingest counters.
func (g *Ingest) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
