// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package artnet

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDmxPacket assembles a valid ArtDMX datagram.
func buildDmxPacket(universe uint16, sequence uint8, declaredLen uint16, payload []byte) []byte {
	pkt := make([]byte, headerSize+len(payload))
	copy(pkt, signature)
	binary.LittleEndian.PutUint16(pkt[8:10], OpDmx)
	// bytes 10-11: protocol version 14, big-endian
	binary.BigEndian.PutUint16(pkt[10:12], 14)
	pkt[12] = sequence
	pkt[13] = 0 // physical port
	binary.LittleEndian.PutUint16(pkt[14:16], universe)
	binary.BigEndian.PutUint16(pkt[16:18], declaredLen)
	copy(pkt[headerSize:], payload)
	return pkt
}

func TestAcceptsValidPacket(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewIngest(3, clock)

	payload := []byte{10, 20, 30, 40, 50, 60}
	require.True(t, g.HandlePacket(buildDmxPacket(3, 7, 6, payload)))

	channels, seq := g.Buffer().Snapshot()
	assert.Equal(t, payload, channels)
	assert.Equal(t, uint8(7), seq)

	st := g.Stats()
	assert.Equal(t, uint64(1), st.Packets)
	assert.Equal(t, uint64(0), st.Rejected)
	assert.Equal(t, uint8(7), st.LastSequence)
	assert.Equal(t, clock.Now(), st.LastReceived)
}

func TestRejectionsAreNoOps(t *testing.T) {
	g := NewIngest(3, nil)

	// Seed the buffer so mutation would be observable.
	require.True(t, g.HandlePacket(buildDmxPacket(3, 1, 3, []byte{1, 2, 3})))

	short := buildDmxPacket(3, 2, 3, []byte{9, 9, 9})[:17]

	badSig := buildDmxPacket(3, 2, 3, []byte{9, 9, 9})
	badSig[0] = 'X'

	badOpcode := buildDmxPacket(3, 2, 3, []byte{9, 9, 9})
	binary.LittleEndian.PutUint16(badOpcode[8:10], 0x2000) // ArtPoll

	wrongUniverse := buildDmxPacket(4, 2, 3, []byte{9, 9, 9})

	for name, pkt := range map[string][]byte{
		"short":          short,
		"bad signature":  badSig,
		"bad opcode":     badOpcode,
		"wrong universe": wrongUniverse,
	} {
		assert.False(t, g.HandlePacket(pkt), name)
	}

	// Buffer and accept stats untouched.
	channels, seq := g.Buffer().Snapshot()
	assert.Equal(t, []byte{1, 2, 3}, channels)
	assert.Equal(t, uint8(1), seq)
	st := g.Stats()
	assert.Equal(t, uint64(1), st.Packets)
	assert.Equal(t, uint64(4), st.Rejected)
	assert.Equal(t, uint8(1), st.LastSequence)
}

func TestDeclaredLengthClampedToDatagram(t *testing.T) {
	g := NewIngest(0, nil)

	// Claims 512 channels but carries only 4 bytes.
	require.True(t, g.HandlePacket(buildDmxPacket(0, 1, 512, []byte{1, 2, 3, 4})))
	channels, _ := g.Buffer().Snapshot()
	assert.Equal(t, []byte{1, 2, 3, 4}, channels)
}

func TestDeclaredLengthClampedToUniverse(t *testing.T) {
	g := NewIngest(0, nil)

	payload := make([]byte, MaxChannels+100)
	pkt := buildDmxPacket(0, 1, uint16(len(payload)), payload)
	require.True(t, g.HandlePacket(pkt))

	channels, _ := g.Buffer().Snapshot()
	assert.Len(t, channels, MaxChannels)
}

func TestDeclaredLengthShorterThanDatagram(t *testing.T) {
	g := NewIngest(0, nil)

	// Datagram carries 10 bytes but declares only 4.
	require.True(t, g.HandlePacket(buildDmxPacket(0, 1, 4, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})))
	channels, _ := g.Buffer().Snapshot()
	assert.Equal(t, []byte{1, 2, 3, 4}, channels)
}

func TestSetUniverse(t *testing.T) {
	g := NewIngest(0, nil)
	pkt := buildDmxPacket(5, 1, 1, []byte{42})

	assert.False(t, g.HandlePacket(pkt))
	g.SetUniverse(5)
	assert.True(t, g.HandlePacket(pkt))
}

// LocalAddr is polled from the node's tick loop while Start runs on
// another goroutine; both must be race-free.
func TestReceiverLocalAddrConcurrentWithStart(t *testing.T) {
	r := NewReceiver("127.0.0.1:0", NewIngest(0, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = r.LocalAddr()
			}
		}
	}()

	require.NoError(t, r.Start(ctx))
	assert.NotNil(t, r.LocalAddr())
	close(stop)
	wg.Wait()
}

func TestReceiverDeliversDatagrams(t *testing.T) {
	g := NewIngest(0, nil)
	r := NewReceiver("127.0.0.1:0", g)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))

	conn, err := net.Dial("udp", r.LocalAddr().String())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write(buildDmxPacket(0, 9, 3, []byte{7, 8, 9}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return g.Stats().Packets == 1
	}, 2*time.Second, 5*time.Millisecond)

	channels, seq := g.Buffer().Snapshot()
	assert.Equal(t, []byte{7, 8, 9}, channels)
	assert.Equal(t, uint8(9), seq)
}
