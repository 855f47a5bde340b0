// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package artnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Receiver reads ArtNet datagrams from a UDP socket and feeds them to an
// Ingest. It is armed only after connectivity comes up; construction does
// not open the socket.
type Receiver struct {
	addr   string
	ingest *Ingest

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewReceiver creates a receiver bound to addr (typically ":6454").
func NewReceiver(addr string, ingest *Ingest) *Receiver {
	return &Receiver{addr: addr, ingest: ingest}
}

// Start opens the socket and reads datagrams until ctx is canceled. The
// read loop runs in a background goroutine; Start itself returns once the
// socket is bound.
func (r *Receiver) Start(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", r.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", r.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.addr, err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	log.Info().Str("addr", conn.LocalAddr().String()).Msg("artnet receiver armed")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
					log.Error().Err(err).Msg("artnet read failed")
				}
				return
			}
			r.ingest.HandlePacket(buf[:n])
		}
	}()

	return nil
}

// LocalAddr returns the bound address, or nil before Start. Safe to call
// from any goroutine while Start runs elsewhere.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}
