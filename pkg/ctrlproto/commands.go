// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package ctrlproto

import (
	"encoding/binary"
	"fmt"
)

// Command builder and parser functions for the data layouts carried inside
// frames. Builders create Frame structs ready for encoding; parsers validate
// the payload of a received frame.

// NewAck creates an acknowledge frame (0x01, no data).
func NewAck() *Frame {
	return NewFrame(CmdAck, nil)
}

// NewError creates an error frame (0x02). The data carries the error code
// followed by an optional human-readable message.
func NewError(code uint8, message string) *Frame {
	data := make([]byte, 0, 1+len(message))
	data = append(data, code)
	if len(message) > MaxDataSize-1 {
		message = message[:MaxDataSize-1]
	}
	data = append(data, message...)
	return NewFrame(CmdError, data)
}

// NewSetMode creates a mode-switch frame (0x10).
// Mode values follow the settings.Mode numbering.
func NewSetMode(mode uint8) *Frame {
	return NewFrame(CmdSetMode, []byte{mode})
}

// NewSetBrightness creates a brightness frame (0x11), 0-255.
func NewSetBrightness(brightness uint8) *Frame {
	return NewFrame(CmdSetBrightness, []byte{brightness})
}

// NewSetColor creates a static color frame (0x12) carrying one RGB triple.
func NewSetColor(r, g, b uint8) *Frame {
	return NewFrame(CmdSetColor, []byte{r, g, b})
}

// NewSetAnimation creates an animation frame (0x13) selecting an effect and
// its speed (1-255, higher is faster).
func NewSetAnimation(effect, speed uint8) *Frame {
	return NewFrame(CmdSetAnimation, []byte{effect, speed})
}

// NewStatusRequest creates a status request frame (0x20, no data).
// The node replies with a status frame built from a StatusPayload.
func NewStatusRequest() *Frame {
	return NewFrame(CmdStatusRequest, nil)
}

// NewSystemReset creates a controlled-restart frame (0x40, no data).
func NewSystemReset() *Frame {
	return NewFrame(CmdSystemReset, nil)
}

// NewDmxData creates a DMX data frame (0x30). startChannel is the zero-based
// first channel the values apply to; a full universe is split across several
// frames by the sender.
func NewDmxData(startChannel uint16, values []byte) (*Frame, error) {
	if len(values) > MaxDataSize-2 {
		return nil, fmt.Errorf("too many channel values: %d (max %d)", len(values), MaxDataSize-2)
	}
	data := make([]byte, 2+len(values))
	binary.BigEndian.PutUint16(data[0:2], startChannel)
	copy(data[2:], values)
	return NewFrame(CmdDmxData, data), nil
}

// ParseSetMode extracts the mode byte from a SetMode frame payload.
func ParseSetMode(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("set mode: missing mode byte")
	}
	return data[0], nil
}

// ParseSetBrightness extracts the brightness from a SetBrightness payload.
func ParseSetBrightness(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("set brightness: missing value byte")
	}
	return data[0], nil
}

// ParseSetColor extracts the RGB triple from a SetColor payload.
func ParseSetColor(data []byte) (r, g, b uint8, err error) {
	if len(data) < 3 {
		return 0, 0, 0, fmt.Errorf("set color: expected 3 bytes, got %d", len(data))
	}
	return data[0], data[1], data[2], nil
}

// ParseSetAnimation extracts effect and speed from a SetAnimation payload.
func ParseSetAnimation(data []byte) (effect, speed uint8, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("set animation: expected 2 bytes, got %d", len(data))
	}
	return data[0], data[1], nil
}

// ParseDmxData extracts the start channel and values from a DmxData payload.
// The values slice aliases the payload.
func ParseDmxData(data []byte) (startChannel uint16, values []byte, err error) {
	if len(data) < 2 {
		return 0, nil, fmt.Errorf("dmx data: missing start channel")
	}
	return binary.BigEndian.Uint16(data[0:2]), data[2:], nil
}

// ParseError extracts code and message from an Error frame payload.
func ParseError(data []byte) (code uint8, message string, err error) {
	if len(data) < 1 {
		return 0, "", fmt.Errorf("error frame: missing code byte")
	}
	return data[0], string(data[1:]), nil
}

// StatusPayload is the data layout of a status reply frame (0x20 response).
type StatusPayload struct {
	State          uint8 // bridge status code
	LastError      uint8 // last protocol error code
	FramesSent     uint32
	FramesReceived uint32
	ErrorCount     uint32
	UptimeSeconds  uint32
}

const statusPayloadSize = 18

// EncodeStatus serializes a StatusPayload into frame data.
func EncodeStatus(s StatusPayload) []byte {
	data := make([]byte, statusPayloadSize)
	data[0] = s.State
	data[1] = s.LastError
	binary.BigEndian.PutUint32(data[2:6], s.FramesSent)
	binary.BigEndian.PutUint32(data[6:10], s.FramesReceived)
	binary.BigEndian.PutUint32(data[10:14], s.ErrorCount)
	binary.BigEndian.PutUint32(data[14:18], s.UptimeSeconds)
	return data
}

// ParseStatus deserializes a status reply payload.
func ParseStatus(data []byte) (StatusPayload, error) {
	if len(data) < statusPayloadSize {
		return StatusPayload{}, fmt.Errorf("status payload too short: %d bytes (want %d)", len(data), statusPayloadSize)
	}
	return StatusPayload{
		State:          data[0],
		LastError:      data[1],
		FramesSent:     binary.BigEndian.Uint32(data[2:6]),
		FramesReceived: binary.BigEndian.Uint32(data[6:10]),
		ErrorCount:     binary.BigEndian.Uint32(data[10:14]),
		UptimeSeconds:  binary.BigEndian.Uint32(data[14:18]),
	}, nil
}
