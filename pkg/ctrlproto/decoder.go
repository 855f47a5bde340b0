// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package ctrlproto

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultReceiveTimeout is how long a partial frame may sit without further
// bytes before the decoder discards it and resynchronizes.
const DefaultReceiveTimeout = 1000 * time.Millisecond

// Decoder implements the control protocol frame decoder state machine.
//
// Bytes are fed one at a time from a polling loop. Malformed input never
// produces a fatal condition: invalid length fields, checksum mismatches,
// buffer overflow attempts and receive timeouts each discard the offending
// partial frame, bump a counter and leave the decoder ready for the next
// start marker.
type Decoder struct {
	clock       clockwork.Clock
	lastReceive time.Time
	timeout     time.Duration
	buffer      [MaxFrameSize]byte
	index       int
	state       int

	checksumErrors uint64
	lengthErrors   uint64
	overflows      uint64
	timeouts       uint64
	lastError      uint8
}

// NewDecoder creates a new frame decoder with the default receive timeout.
func NewDecoder() *Decoder {
	return NewDecoderWithClock(nil)
}

// NewDecoderWithClock creates a decoder using the given clock for timeout
// bookkeeping. A nil clock selects the real clock.
func NewDecoderWithClock(clock clockwork.Clock) *Decoder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Decoder{
		clock:   clock,
		timeout: DefaultReceiveTimeout,
	}
}

// SetReceiveTimeout overrides the partial-frame receive timeout.
func (d *Decoder) SetReceiveTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Reset resets the decoder state to idle, discarding any partial frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.index = 0
}

// Pending returns the number of buffered bytes of an in-progress frame.
func (d *Decoder) Pending() int {
	return d.index
}

// Feed processes a single byte through the decoder state machine.
// Returns a completed, checksum-validated frame, or nil if the frame is
// incomplete. Returns an error if the current frame had to be discarded.
func (d *Decoder) Feed(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		// Only a start marker opens a frame; everything else is line noise.
		if b != StartByte {
			return nil, nil
		}
		d.buffer[0] = b
		d.index = 1
		d.state = stateLength
		d.lastReceive = d.clock.Now()
		return nil, nil

	case stateLength:
		if int(b) < MinFrameSize {
			d.lengthErrors++
			d.lastError = ErrCodeInvalidParam
			d.Reset()
			return nil, fmt.Errorf("invalid frame length: %d (min %d)", b, MinFrameSize)
		}
		d.buffer[1] = b
		d.index = 2
		d.state = stateBody
		d.lastReceive = d.clock.Now()
		return nil, nil

	case stateBody:
		if d.index >= MaxFrameSize {
			d.overflows++
			d.lastError = ErrCodeBufferOverflow
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: frame exceeds %d bytes", MaxFrameSize)
		}
		d.buffer[d.index] = b
		d.index++
		d.lastReceive = d.clock.Now()

		total := int(d.buffer[1])
		if d.index < total {
			return nil, nil
		}

		// Frame complete - validate checksum
		want := d.buffer[total-1]
		got := Checksum(d.buffer[:total-1])
		if want != got {
			d.checksumErrors++
			d.lastError = ErrCodeChecksum
			d.Reset()
			return nil, fmt.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", got, want)
		}

		frame := NewFrame(d.buffer[2], d.buffer[3:total-1])
		d.Reset()
		return frame, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid decoder state: %d", d.state)
	}
}

// CheckTimeout discards a partial frame that has not received a byte for
// longer than the receive timeout. It must be called periodically from the
// polling loop so a corrupted length byte cannot wedge the decoder. Returns
// true if a partial frame was discarded.
func (d *Decoder) CheckTimeout() bool {
	if d.index == 0 {
		return false
	}
	if d.clock.Since(d.lastReceive) <= d.timeout {
		return false
	}
	d.timeouts++
	d.lastError = ErrCodeTimeout
	d.Reset()
	return true
}

// ChecksumErrors returns the number of frames discarded for a bad checksum.
func (d *Decoder) ChecksumErrors() uint64 { return d.checksumErrors }

// LengthErrors returns the number of frames discarded for an invalid length.
func (d *Decoder) LengthErrors() uint64 { return d.lengthErrors }

// Overflows returns the number of frames discarded for exceeding the
// maximum frame size.
func (d *Decoder) Overflows() uint64 { return d.overflows }

// Timeouts returns the number of partial frames discarded by the receive
// timeout.
func (d *Decoder) Timeouts() uint64 { return d.timeouts }

// ErrorCount returns the total number of discarded frames.
func (d *Decoder) ErrorCount() uint64 {
	return d.checksumErrors + d.lengthErrors + d.overflows + d.timeouts
}

// LastErrorCode returns the protocol error code of the most recent discard,
// or ErrCodeNone if every frame decoded cleanly.
func (d *Decoder) LastErrorCode() uint8 { return d.lastError }
