// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package ctrlproto provides a reference Go implementation of the lumen
// control protocol.
//
// The control protocol is a framed binary protocol for point-to-point
// communication between a lighting node and an external controller over a
// byte stream (UART or a WebSocket byte bridge). This package provides frame
// encoding/decoding, checksum validation, and payload formatting.
package ctrlproto

// Protocol framing
const (
	StartByte = 0xAA
)

// Frame size limits. Length is the second frame byte and counts every byte
// of the frame including the start marker and the checksum.
const (
	MinFrameSize = 4   // marker + length + command + checksum
	MaxFrameSize = 256 // marker + length + command + 252 data + checksum
	MaxDataSize  = MaxFrameSize - MinFrameSize
)

// Commands - reserved, handled by the bridge layer itself
const (
	CmdAck           uint8 = 0x01
	CmdError         uint8 = 0x02
	CmdStatusRequest uint8 = 0x20
	CmdSystemReset   uint8 = 0x40
)

// Commands - application, forwarded to the registered handler
const (
	CmdSetMode       uint8 = 0x10
	CmdSetBrightness uint8 = 0x11
	CmdSetColor      uint8 = 0x12
	CmdSetAnimation  uint8 = 0x13
	CmdDmxData       uint8 = 0x30
)

// Error codes carried in the data of a CmdError frame
const (
	ErrCodeNone           uint8 = 0x00
	ErrCodeInvalidCmd     uint8 = 0x01
	ErrCodeInvalidParam   uint8 = 0x02
	ErrCodeBufferOverflow uint8 = 0x03
	ErrCodeTimeout        uint8 = 0x04
	ErrCodeChecksum       uint8 = 0x05
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateBody
)
