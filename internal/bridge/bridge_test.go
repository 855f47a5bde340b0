// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package bridge

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlumen/lumend/pkg/ctrlproto"
)

type testHarness struct {
	client net.Conn
	bridge *Bridge
	cancel context.CancelFunc

	mu         sync.Mutex
	commands   []uint8
	handlerErr error
	resets     int
}

func (h *testHarness) setHandlerErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlerErr = err
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	client, server := net.Pipe()
	h := &testHarness{client: client}

	status := func() ctrlproto.StatusPayload {
		return ctrlproto.StatusPayload{State: 0x02, UptimeSeconds: 42}
	}
	reset := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.resets++
	}
	handler := func(cmd uint8, _ []byte) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.commands = append(h.commands, cmd)
		return h.handlerErr
	}

	h.bridge = New(server, nil, status, reset, handler)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = h.bridge.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = client.Close()
	})
	return h
}

// writeFrame sends one encoded frame from the client side.
func (h *testHarness) writeFrame(t *testing.T, f *ctrlproto.Frame) {
	t.Helper()
	wire, err := ctrlproto.EncodeFrame(f)
	require.NoError(t, err)
	_, err = h.client.Write(wire)
	require.NoError(t, err)
}

// readFrame decodes the next reply from the client side.
func (h *testHarness) readFrame(t *testing.T) *ctrlproto.Frame {
	t.Helper()
	d := ctrlproto.NewDecoder()
	buf := make([]byte, 256)
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, h.client.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		n, err := h.client.Read(buf)
		require.NoError(t, err)
		for _, b := range buf[:n] {
			f, err := d.Feed(b)
			require.NoError(t, err)
			if f != nil {
				return f
			}
		}
	}
	t.Fatal("no reply frame before deadline")
	return nil
}

func (h *testHarness) receivedCommands() []uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint8(nil), h.commands...)
}

func TestStatusRequestGetsStatusReply(t *testing.T) {
	h := newHarness(t)

	h.writeFrame(t, ctrlproto.NewStatusRequest())
	reply := h.readFrame(t)

	require.Equal(t, ctrlproto.CmdStatusRequest, reply.Cmd())
	status, err := ctrlproto.ParseStatus(reply.Data())
	require.NoError(t, err)
	assert.Equal(t, uint8(0x02), status.State)
	assert.Equal(t, uint32(42), status.UptimeSeconds)
	assert.Equal(t, uint32(1), status.FramesReceived)
	assert.Equal(t, uint32(0), status.ErrorCount)
}

func TestUnknownCommandGetsErrorReply(t *testing.T) {
	h := newHarness(t)

	h.writeFrame(t, ctrlproto.NewFrame(0x7F, nil))
	reply := h.readFrame(t)

	require.Equal(t, ctrlproto.CmdError, reply.Cmd())
	code, msg, err := ctrlproto.ParseError(reply.Data())
	require.NoError(t, err)
	assert.Equal(t, ctrlproto.ErrCodeInvalidCmd, code)
	assert.Equal(t, "invalid command", msg)
	assert.Empty(t, h.receivedCommands(), "unknown commands must not reach the handler")
}

func TestAppCommandForwardedAndAcked(t *testing.T) {
	h := newHarness(t)

	h.writeFrame(t, ctrlproto.NewSetBrightness(200))
	reply := h.readFrame(t)

	assert.Equal(t, ctrlproto.CmdAck, reply.Cmd())
	assert.Equal(t, []uint8{ctrlproto.CmdSetBrightness}, h.receivedCommands())
}

func TestHandlerErrorGetsInvalidParamReply(t *testing.T) {
	h := newHarness(t)
	h.setHandlerErr(errors.New("mode out of range"))

	h.writeFrame(t, ctrlproto.NewSetMode(9))
	reply := h.readFrame(t)

	require.Equal(t, ctrlproto.CmdError, reply.Cmd())
	code, msg, err := ctrlproto.ParseError(reply.Data())
	require.NoError(t, err)
	assert.Equal(t, ctrlproto.ErrCodeInvalidParam, code)
	assert.Equal(t, "mode out of range", msg)
}

func TestDmxDataIsNotAcked(t *testing.T) {
	h := newHarness(t)

	dmx, err := ctrlproto.NewDmxData(0, []byte{1, 2, 3})
	require.NoError(t, err)
	h.writeFrame(t, dmx)
	h.writeFrame(t, ctrlproto.NewStatusRequest())

	// The first reply must be the status, proving no ack preceded it.
	reply := h.readFrame(t)
	assert.Equal(t, ctrlproto.CmdStatusRequest, reply.Cmd())
	assert.Equal(t, []uint8{ctrlproto.CmdDmxData}, h.receivedCommands())
}

func TestSystemResetAcksThenResets(t *testing.T) {
	h := newHarness(t)

	h.writeFrame(t, ctrlproto.NewSystemReset())
	reply := h.readFrame(t)

	assert.Equal(t, ctrlproto.CmdAck, reply.Cmd())
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.resets == 1
	}, time.Second, time.Millisecond)
}

// chattyConn returns buffered line noise on every Read, even after Close,
// the way a WebSocket wrapper with queued data behaves.
type chattyConn struct {
	reads atomic.Uint64
}

func (c *chattyConn) Read(p []byte) (int, error) {
	c.reads.Add(1)
	p[0] = 0x00
	return 1, nil
}
func (c *chattyConn) Write(p []byte) (int, error) { return len(p), nil }
func (c *chattyConn) Close() error                { return nil }

func TestReaderStopsAfterRunReturns(t *testing.T) {
	c := &chattyConn{}
	b := New(c, nil,
		func() ctrlproto.StatusPayload { return ctrlproto.StatusPayload{} },
		func() {},
		func(uint8, []byte) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-runDone, context.Canceled)

	// The reader drains its last pending chunks and exits; the connection
	// must stop being consumed shortly after.
	var prev uint64
	require.Eventually(t, func() bool {
		n := c.reads.Load()
		stable := n == prev
		prev = n
		return stable
	}, 2*time.Second, 25*time.Millisecond)
}

func TestGarbageBeforeFrameIsTolerated(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Write([]byte{0x00, 0x13, 0x37, 0xFF})
	require.NoError(t, err)
	h.writeFrame(t, ctrlproto.NewStatusRequest())

	reply := h.readFrame(t)
	assert.Equal(t, ctrlproto.CmdStatusRequest, reply.Cmd())
}

func TestCorruptFrameCountedNotFatal(t *testing.T) {
	h := newHarness(t)

	wire, err := ctrlproto.EncodeFrame(ctrlproto.NewSetBrightness(10))
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF
	_, err = h.client.Write(wire)
	require.NoError(t, err)

	h.writeFrame(t, ctrlproto.NewStatusRequest())
	reply := h.readFrame(t)

	require.Equal(t, ctrlproto.CmdStatusRequest, reply.Cmd())
	status, err := ctrlproto.ParseStatus(reply.Data())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), status.ErrorCount)
	assert.Equal(t, ctrlproto.ErrCodeChecksum, status.LastError)
	assert.Empty(t, h.receivedCommands())
}

func TestAckIsANoOp(t *testing.T) {
	h := newHarness(t)

	h.writeFrame(t, ctrlproto.NewAck())
	h.writeFrame(t, ctrlproto.NewStatusRequest())

	reply := h.readFrame(t)
	require.Equal(t, ctrlproto.CmdStatusRequest, reply.Cmd())
	status, err := ctrlproto.ParseStatus(reply.Data())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), status.FramesReceived)
}
