// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package ctrlproto

import "time"

// Frame represents a decoded control protocol frame
type Frame struct {
	timestamp time.Time
	data      []byte
	cmd       uint8
}

// NewFrame creates a frame from a command byte and data payload.
// The data slice is copied.
func NewFrame(cmd uint8, data []byte) *Frame {
	f := &Frame{
		cmd:       cmd,
		timestamp: time.Now(),
	}
	if len(data) > 0 {
		f.data = make([]byte, len(data))
		copy(f.data, data)
	}
	return f
}

// Cmd returns the frame's command byte
func (f *Frame) Cmd() uint8 {
	return f.cmd
}

// Data returns the frame's data payload (nil for empty frames)
func (f *Frame) Data() []byte {
	return f.data
}

// Timestamp returns the frame's decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// TotalLength returns the on-wire size of the frame including the start
// marker and checksum.
func (f *Frame) TotalLength() int {
	return MinFrameSize + len(f.data)
}

// IsReserved returns true if the command is handled by the bridge layer
// itself rather than forwarded to the application handler.
func (f *Frame) IsReserved() bool {
	switch f.cmd {
	case CmdAck, CmdError, CmdStatusRequest, CmdSystemReset:
		return true
	}
	return false
}
