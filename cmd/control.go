// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlumen/lumend/internal/settings"
	"github.com/openlumen/lumend/pkg/ctrlproto"
)

const replyTimeout = 3 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a node's status over the control protocol",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := sendAndAwait(ctrlproto.NewStatusRequest())
		if err != nil {
			return err
		}
		if reply.Cmd() != ctrlproto.CmdStatusRequest {
			return fmt.Errorf("unexpected reply: %s", ctrlproto.CommandName(reply.Cmd()))
		}
		status, err := ctrlproto.ParseStatus(reply.Data())
		if err != nil {
			return err
		}
		fmt.Printf("State:           %d\n", status.State)
		fmt.Printf("Last error:      %s\n", ctrlproto.ErrorCodeName(status.LastError))
		fmt.Printf("Frames sent:     %d\n", status.FramesSent)
		fmt.Printf("Frames received: %d\n", status.FramesReceived)
		fmt.Printf("Error count:     %d\n", status.ErrorCount)
		fmt.Printf("Uptime:          %s\n", time.Duration(status.UptimeSeconds)*time.Second)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Request a controlled restart of a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendExpectAck(ctrlproto.NewSystemReset())
	},
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a node setting over the control protocol",
}

var setModeCmd = &cobra.Command{
	Use:   "mode {network|static|effect}",
	Short: "Select the active pixel source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := settings.ParseMode(args[0])
		if err != nil {
			return err
		}
		return sendExpectAck(ctrlproto.NewSetMode(uint8(mode)))
	},
}

var setBrightnessCmd = &cobra.Command{
	Use:   "brightness <0-255>",
	Short: "Set the global brightness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := parseByte(args[0])
		if err != nil {
			return err
		}
		return sendExpectAck(ctrlproto.NewSetBrightness(b))
	},
}

var setColorCmd = &cobra.Command{
	Use:   "color <r> <g> <b>",
	Short: "Set the static color",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rgb [3]uint8
		for i, arg := range args {
			v, err := parseByte(arg)
			if err != nil {
				return err
			}
			rgb[i] = v
		}
		return sendExpectAck(ctrlproto.NewSetColor(rgb[0], rgb[1], rgb[2]))
	},
}

var setAnimationCmd = &cobra.Command{
	Use:   "animation <effect> <speed>",
	Short: "Select an effect and its speed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		effect, err := parseByte(args[0])
		if err != nil {
			return err
		}
		speed, err := parseByte(args[1])
		if err != nil {
			return err
		}
		return sendExpectAck(ctrlproto.NewSetAnimation(effect, speed))
	},
}

func init() {
	setCmd.AddCommand(setModeCmd, setBrightnessCmd, setColorCmd, setAnimationCmd)
	rootCmd.AddCommand(statusCmd, resetCmd, setCmd)
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: expected 0-255", s)
	}
	return uint8(v), nil
}

// sendAndAwait writes one frame and returns the first reply frame.
func sendAndAwait(f *ctrlproto.Frame) (*ctrlproto.Frame, error) {
	c, _, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	wire, err := ctrlproto.EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	if _, err := c.Write(wire); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	type result struct {
		frame *ctrlproto.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		decoder := ctrlproto.NewDecoder()
		buf := make([]byte, 256)
		for {
			n, err := c.Read(buf)
			if err != nil {
				done <- result{err: fmt.Errorf("read failed: %w", err)}
				return
			}
			for i := 0; i < n; i++ {
				frame, err := decoder.Feed(buf[i])
				if err != nil {
					done <- result{err: err}
					return
				}
				if frame != nil {
					done <- result{frame: frame}
					return
				}
			}
		}
	}()

	select {
	case r := <-done:
		return r.frame, r.err
	case <-time.After(replyTimeout):
		return nil, fmt.Errorf("no reply within %s", replyTimeout)
	}
}

// sendExpectAck sends a frame and interprets the ack/error reply.
func sendExpectAck(f *ctrlproto.Frame) error {
	reply, err := sendAndAwait(f)
	if err != nil {
		return err
	}
	switch reply.Cmd() {
	case ctrlproto.CmdAck:
		fmt.Println("OK")
		return nil
	case ctrlproto.CmdError:
		code, msg, perr := ctrlproto.ParseError(reply.Data())
		if perr != nil {
			return fmt.Errorf("node returned an undecodable error reply")
		}
		return fmt.Errorf("node rejected command: %s (%s)", msg, ctrlproto.ErrorCodeName(code))
	default:
		return fmt.Errorf("unexpected reply: %s", ctrlproto.CommandName(reply.Cmd()))
	}
}
