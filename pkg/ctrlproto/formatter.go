// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package ctrlproto

import "fmt"

// FormatFrame returns a human-readable one-or-more line representation of a
// decoded frame, used by the sniffer command.
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, CommandName(f.Cmd()), f.Cmd(), f.TotalLength())
	if len(f.Data()) > 0 {
		result += formatData(f.Cmd(), f.Data())
	}
	return result
}

// CommandName returns the mnemonic for a command byte.
func CommandName(cmd uint8) string {
	switch cmd {
	case CmdAck:
		return "ACK"
	case CmdError:
		return "ERROR"
	case CmdSetMode:
		return "SET_MODE"
	case CmdSetBrightness:
		return "SET_BRIGHTNESS"
	case CmdSetColor:
		return "SET_COLOR"
	case CmdSetAnimation:
		return "SET_ANIMATION"
	case CmdStatusRequest:
		return "STATUS"
	case CmdDmxData:
		return "DMX_DATA"
	case CmdSystemReset:
		return "SYSTEM_RESET"
	default:
		return "UNKNOWN"
	}
}

// ErrorCodeName returns the mnemonic for a protocol error code.
func ErrorCodeName(code uint8) string {
	switch code {
	case ErrCodeNone:
		return "NONE"
	case ErrCodeInvalidCmd:
		return "INVALID_CMD"
	case ErrCodeInvalidParam:
		return "INVALID_PARAM"
	case ErrCodeBufferOverflow:
		return "BUFFER_OVERFLOW"
	case ErrCodeTimeout:
		return "TIMEOUT"
	case ErrCodeChecksum:
		return "CHECKSUM"
	default:
		return "UNKNOWN"
	}
}

func formatData(cmd uint8, data []byte) string {
	switch cmd {
	case CmdError:
		if code, message, err := ParseError(data); err == nil {
			if message != "" {
				return fmt.Sprintf("  Error: %s (0x%02X) %q\n", ErrorCodeName(code), code, message)
			}
			return fmt.Sprintf("  Error: %s (0x%02X)\n", ErrorCodeName(code), code)
		}

	case CmdSetMode:
		if mode, err := ParseSetMode(data); err == nil {
			return fmt.Sprintf("  Mode: %d\n", mode)
		}

	case CmdSetBrightness:
		if v, err := ParseSetBrightness(data); err == nil {
			return fmt.Sprintf("  Brightness: %d\n", v)
		}

	case CmdSetColor:
		if r, g, b, err := ParseSetColor(data); err == nil {
			return fmt.Sprintf("  Color: #%02X%02X%02X\n", r, g, b)
		}

	case CmdSetAnimation:
		if effect, speed, err := ParseSetAnimation(data); err == nil {
			return fmt.Sprintf("  Effect: %d, Speed: %d\n", effect, speed)
		}

	case CmdDmxData:
		if start, values, err := ParseDmxData(data); err == nil {
			return fmt.Sprintf("  DMX: start=%d, %d channels\n", start, len(values))
		}

	case CmdStatusRequest:
		if s, err := ParseStatus(data); err == nil {
			return fmt.Sprintf("  State: 0x%02X, LastError: %s, Sent: %d, Received: %d, Errors: %d, Uptime: %ds\n",
				s.State, ErrorCodeName(s.LastError), s.FramesSent, s.FramesReceived, s.ErrorCount, s.UptimeSeconds)
		}
	}

	// Default: hex dump
	result := "  Data: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n        "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
