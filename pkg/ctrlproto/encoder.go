// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package ctrlproto

import "fmt"

// Encode creates a complete wire-formatted frame for the given command and
// data payload. Returns the frame bytes ready for transmission:
//
//	[StartByte][TotalLength][Command][Data...][Checksum]
//
// TotalLength counts every frame byte including marker and checksum, and the
// checksum is the XOR of all preceding bytes.
func Encode(cmd uint8, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(data), MaxDataSize)
	}

	total := MinFrameSize + len(data)
	frame := make([]byte, total)
	frame[0] = StartByte
	frame[1] = uint8(total)
	frame[2] = cmd
	copy(frame[3:], data)
	frame[total-1] = Checksum(frame[:total-1])

	return frame, nil
}

// EncodeFrame encodes an existing Frame back to wire format.
func EncodeFrame(f *Frame) ([]byte, error) {
	return Encode(f.Cmd(), f.Data())
}
