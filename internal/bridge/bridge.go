// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package bridge runs the framed control protocol over a byte-stream
// connection. It pumps bytes into the incremental decoder, answers the
// reserved commands itself, and forwards application commands to a
// registered handler. The bridge is independent of network state: the node
// stays controllable over serial even with connectivity down.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openlumen/lumend/pkg/ctrlproto"
)

// timeoutPollInterval is how often the partial-frame receive timeout is
// evaluated while no bytes arrive.
const timeoutPollInterval = 100 * time.Millisecond

// Handler receives application commands (everything outside the reserved
// range). A returned error produces an invalid-parameter reply; nil
// produces an acknowledge, except for DMX data frames which are not
// individually acknowledged.
type Handler func(cmd uint8, data []byte) error

// Bridge dispatches control frames on one connection.
type Bridge struct {
	conn    io.ReadWriteCloser
	dec     *ctrlproto.Decoder
	clock   clockwork.Clock
	handler Handler
	status  func() ctrlproto.StatusPayload
	reset   func()

	writeMu    sync.Mutex
	framesSent atomic.Uint64
	framesRecv atomic.Uint64
}

// New creates a bridge on conn. status supplies the reply payload for
// status requests; reset is invoked on a system-reset command; handler
// receives application commands. A nil clock selects the real clock.
func New(conn io.ReadWriteCloser, clock clockwork.Clock, status func() ctrlproto.StatusPayload, reset func(), handler Handler) *Bridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bridge{
		conn:    conn,
		dec:     ctrlproto.NewDecoderWithClock(clock),
		clock:   clock,
		handler: handler,
		status:  status,
		reset:   reset,
	}
}

// Run reads the connection until it closes or ctx is canceled. Decode
// errors are counted and logged, never fatal: garbage from a flaky link
// must not take the bridge down.
func (b *Bridge) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	bytes := make(chan []byte, 16)

	// Closed when Run returns so the reader never blocks forever handing
	// off a chunk nobody will consume.
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := b.conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case bytes <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := b.clock.NewTicker(timeoutPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = b.conn.Close()
			return ctx.Err()

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("control read: %w", err)

		case chunk := <-bytes:
			for _, by := range chunk {
				frame, err := b.dec.Feed(by)
				if err != nil {
					log.Debug().Err(err).Msg("control frame rejected")
					continue
				}
				if frame != nil {
					b.dispatch(frame)
				}
			}

		case <-ticker.Chan():
			if b.dec.CheckTimeout() {
				log.Debug().Msg("partial control frame timed out")
			}
		}
	}
}

// dispatch handles one valid frame: reserved commands inline, application
// commands via the handler, anything else with an explicit error reply.
func (b *Bridge) dispatch(f *ctrlproto.Frame) {
	b.framesRecv.Add(1)

	switch f.Cmd() {
	case ctrlproto.CmdAck:
		// no-op

	case ctrlproto.CmdStatusRequest:
		payload := b.status()
		payload.LastError = b.dec.LastErrorCode()
		payload.FramesSent = uint32(b.framesSent.Load())
		payload.FramesReceived = uint32(b.framesRecv.Load())
		payload.ErrorCount = uint32(b.dec.ErrorCount())
		b.send(ctrlproto.NewFrame(ctrlproto.CmdStatusRequest, ctrlproto.EncodeStatus(payload)))

	case ctrlproto.CmdSystemReset:
		log.Info().Msg("system reset requested over control link")
		b.send(ctrlproto.NewAck())
		b.reset()

	case ctrlproto.CmdSetMode, ctrlproto.CmdSetBrightness, ctrlproto.CmdSetColor,
		ctrlproto.CmdSetAnimation, ctrlproto.CmdDmxData:
		if err := b.handler(f.Cmd(), f.Data()); err != nil {
			log.Warn().Err(err).
				Str("cmd", ctrlproto.CommandName(f.Cmd())).
				Msg("control command rejected")
			b.send(ctrlproto.NewError(ctrlproto.ErrCodeInvalidParam, err.Error()))
			return
		}
		// DMX frames arrive at line rate; acknowledging each would double
		// the traffic.
		if f.Cmd() != ctrlproto.CmdDmxData {
			b.send(ctrlproto.NewAck())
		}

	default:
		log.Warn().
			Uint8("cmd", f.Cmd()).
			Msg("unknown control command")
		b.send(ctrlproto.NewError(ctrlproto.ErrCodeInvalidCmd, "invalid command"))
	}
}

// send encodes and writes one frame. Write failures are logged; the read
// loop will surface a broken connection.
func (b *Bridge) send(f *ctrlproto.Frame) {
	wire, err := ctrlproto.EncodeFrame(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode control reply")
		return
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := b.conn.Write(wire); err != nil {
		log.Warn().Err(err).Msg("failed to write control reply")
		return
	}
	b.framesSent.Add(1)
}

// Send encodes and writes an unsolicited frame, for pushing DMX or
// configuration to a peer node.
func (b *Bridge) Send(f *ctrlproto.Frame) error {
	wire, err := ctrlproto.EncodeFrame(f)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := b.conn.Write(wire); err != nil {
		return err
	}
	b.framesSent.Add(1)
	return nil
}

// FramesSent returns the count of frames written.
func (b *Bridge) FramesSent() uint64 { return b.framesSent.Load() }

// FramesReceived returns the count of valid frames dispatched.
func (b *Bridge) FramesReceived() uint64 { return b.framesRecv.Load() }

// DecodeErrors returns the decoder's cumulative error count.
func (b *Bridge) DecodeErrors() uint64 { return b.dec.ErrorCount() }
