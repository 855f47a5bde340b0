// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package node assembles the device: persistent store, boot-loop
// protection, connectivity, ArtNet ingest, the pixel arbiter, and the
// command surface shared by the serial bridge and the HTTP API.
//
// Startup order is load-bearing: the boot supervisor runs before any
// network or driver initialization, and the ArtNet receiver is armed only
// after connectivity reports Connected.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openlumen/lumend/internal/artnet"
	"github.com/openlumen/lumend/internal/boot"
	"github.com/openlumen/lumend/internal/config"
	"github.com/openlumen/lumend/internal/network"
	"github.com/openlumen/lumend/internal/pixel"
	"github.com/openlumen/lumend/internal/settings"
	"github.com/openlumen/lumend/internal/store"
	"github.com/openlumen/lumend/pkg/ctrlproto"
)

// ErrRestartRequested is returned from Run after a controlled restart
// request (system-reset command or factory reset).
var ErrRestartRequested = errors.New("restart requested")

// tickInterval paces the cooperative main loop.
const tickInterval = 20 * time.Millisecond

// Node owns every long-lived component of the device.
type Node struct {
	cfg      config.Config
	clock    clockwork.Clock
	store    *store.Store
	settings *settings.Manager
	boot     *boot.Supervisor
	net      *network.Machine
	ingest   *artnet.Ingest
	receiver *artnet.Receiver
	arbiter  *pixel.Arbiter
	driver   pixel.Driver

	startedAt    time.Time
	safeMode     bool
	armed        bool
	stableMarked bool
	lastPackets  uint64
	serialDmx    [artnet.MaxChannels]byte
	restart      chan struct{}
}

// New opens the store and builds the node. The boot-loop check runs here,
// before the transport or driver is touched; a detected loop latches safe
// mode into settings before anything else initializes.
func New(cfg config.Config, transport network.Transport, driver pixel.Driver, clock clockwork.Clock) (*Node, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sup := boot.NewSupervisor(st.Namespace(store.NamespaceBootStat), clock)
	sup.SetThreshold(cfg.Boot.Threshold)
	sup.SetWindow(time.Duration(cfg.Boot.WindowSeconds) * time.Second)

	mgr := settings.Load(st.Namespace(store.NamespaceSettings))

	if sup.CheckAndRecord() {
		if err := mgr.EnterSafeMode("boot loop detected"); err != nil {
			log.Error().Err(err).Msg("failed to persist safe mode")
		}
	}

	v := mgr.Snapshot()
	n := &Node{
		cfg:       cfg,
		clock:     clock,
		store:     st,
		settings:  mgr,
		boot:      sup,
		ingest:    artnet.NewIngest(v.Universe, clock),
		arbiter:   pixel.NewArbiter(v.PixelCount(), v.Mode, clock),
		driver:    driver,
		safeMode:  v.SafeMode,
		startedAt: clock.Now(),
		restart:   make(chan struct{}, 1),
	}
	n.receiver = artnet.NewReceiver(cfg.ArtNet.Bind, n.ingest)

	n.net = network.NewMachine(transport, mgr, clock)
	n.net.SetConnectTimeout(time.Duration(cfg.Network.ConnectTimeoutSeconds) * time.Second)
	n.net.SetBackoff(
		time.Duration(cfg.Network.BackoffBaseSeconds)*time.Second,
		time.Duration(cfg.Network.BackoffMaxSeconds)*time.Second,
	)
	n.net.SetApTimeout(time.Duration(cfg.Network.ApTimeoutSeconds) * time.Second)

	// Seed the effect base color and the initial frame for the persisted
	// mode.
	n.arbiter.SetBaseColor(v.StaticColor)
	switch v.Mode {
	case settings.ModeStatic:
		n.arbiter.ApplyStatic(v.StaticColor)
	case settings.ModeEffect:
		n.arbiter.SetEffect(v.Effect, v.EffectSpeed)
	}

	return n, nil
}

// Close releases the store.
func (n *Node) Close() error {
	return n.store.Close()
}

// Settings returns the settings manager.
func (n *Node) Settings() *settings.Manager { return n.settings }

// Network returns the connectivity machine.
func (n *Node) Network() *network.Machine { return n.net }

// Arbiter returns the pixel arbiter.
func (n *Node) Arbiter() *pixel.Arbiter { return n.arbiter }

// ArtNetStats returns the ingest counters.
func (n *Node) ArtNetStats() artnet.Stats { return n.ingest.Stats() }

// ArtNetAddr returns the bound receiver address, or nil before arming.
func (n *Node) ArtNetAddr() net.Addr { return n.receiver.LocalAddr() }

// SafeMode reports whether this boot came up in safe mode.
func (n *Node) SafeMode() bool { return n.safeMode }

// Uptime returns the time since the node started.
func (n *Node) Uptime() time.Duration { return n.clock.Since(n.startedAt) }

// Run drives the cooperative main loop until ctx is canceled or a restart
// is requested.
func (n *Node) Run(ctx context.Context) error {
	n.net.Start()
	defer n.net.Stop()

	ticker := n.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.restart:
			log.Info().Msg("controlled restart")
			return ErrRestartRequested
		case <-ticker.Chan():
			n.tick(ctx)
		}
	}
}

func (n *Node) tick(ctx context.Context) {
	n.net.Tick()

	// Arm the ArtNet receiver exactly once, and only against a fully
	// initialized transport.
	if !n.armed && n.net.State() == network.StateConnected {
		if err := n.receiver.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to arm artnet receiver")
		}
		n.armed = true
	}

	// A run that outlives the boot-loop window counts as stable.
	if !n.stableMarked && n.Uptime() >= time.Duration(n.cfg.Boot.WindowSeconds)*time.Second {
		n.boot.MarkStable()
		n.stableMarked = true
	}

	v := n.settings.Snapshot()
	switch v.Mode {
	case settings.ModeNetwork:
		if stats := n.ingest.Stats(); stats.Packets != n.lastPackets {
			n.lastPackets = stats.Packets
			channels, _ := n.ingest.Buffer().Snapshot()
			n.arbiter.ApplyDMX(channels)
		}
	case settings.ModeEffect:
		n.arbiter.TickEffect()
	}

	if n.driver != nil {
		if err := n.arbiter.Flush(n.driver, v.Brightness); err != nil {
			log.Warn().Err(err).Msg("driver render failed")
		}
	}
}

// RequestRestart schedules a controlled restart; Run returns
// ErrRestartRequested.
func (n *Node) RequestRestart() {
	select {
	case n.restart <- struct{}{}:
	default:
	}
}

// FactoryReset clears both namespaces (settings and boot history),
// dropping every latch including the permanent network disable, then
// requests a restart.
func (n *Node) FactoryReset() error {
	if err := n.settings.FactoryReset(); err != nil {
		return err
	}
	if err := n.store.Namespace(store.NamespaceBootStat).Clear(); err != nil {
		return err
	}
	log.Info().Msg("factory reset complete")
	n.RequestRestart()
	return nil
}

// Status assembles the control-protocol status payload.
func (n *Node) Status() ctrlproto.StatusPayload {
	return ctrlproto.StatusPayload{
		State:         uint8(n.net.State()),
		UptimeSeconds: uint32(n.Uptime() / time.Second),
	}
}

// HandleCommand is the application command handler behind the control
// bridge. Settings mutations flow through the same settings manager the
// HTTP API uses.
func (n *Node) HandleCommand(cmd uint8, data []byte) error {
	switch cmd {
	case ctrlproto.CmdSetMode:
		raw, err := ctrlproto.ParseSetMode(data)
		if err != nil {
			return err
		}
		return n.SetMode(settings.Mode(raw))

	case ctrlproto.CmdSetBrightness:
		b, err := ctrlproto.ParseSetBrightness(data)
		if err != nil {
			return err
		}
		return n.settings.SetBrightness(b)

	case ctrlproto.CmdSetColor:
		r, g, b, err := ctrlproto.ParseSetColor(data)
		if err != nil {
			return err
		}
		return n.SetStaticColor(settings.RGB{R: r, G: g, B: b})

	case ctrlproto.CmdSetAnimation:
		effect, speed, err := ctrlproto.ParseSetAnimation(data)
		if err != nil {
			return err
		}
		return n.SetEffect(settings.Effect(effect), speed)

	case ctrlproto.CmdDmxData:
		start, values, err := ctrlproto.ParseDmxData(data)
		if err != nil {
			return err
		}
		return n.applySerialDmx(start, values)

	default:
		return fmt.Errorf("unsupported command 0x%02X", cmd)
	}
}

// SetMode persists the mode and switches the arbiter's producer.
func (n *Node) SetMode(mode settings.Mode) error {
	if err := n.settings.SetMode(mode); err != nil {
		return err
	}
	n.arbiter.SetMode(mode)

	v := n.settings.Snapshot()
	switch mode {
	case settings.ModeStatic:
		n.arbiter.ApplyStatic(v.StaticColor)
	case settings.ModeEffect:
		n.arbiter.SetBaseColor(v.StaticColor)
		n.arbiter.SetEffect(v.Effect, v.EffectSpeed)
	}
	return nil
}

// SetStaticColor persists the color and repaints if static mode is active.
func (n *Node) SetStaticColor(c settings.RGB) error {
	if err := n.settings.SetStaticColor(c); err != nil {
		return err
	}
	n.arbiter.ApplyStatic(c)
	return nil
}

// SetEffect persists the effect selection and restarts its timebase.
func (n *Node) SetEffect(effect settings.Effect, speed uint8) error {
	if err := n.settings.SetEffect(effect, speed); err != nil {
		return err
	}
	n.arbiter.SetEffect(effect, speed)
	return nil
}

// SetUniverse persists the universe and repoints the ingest filter.
func (n *Node) SetUniverse(u uint16) error {
	if err := n.settings.SetUniverse(u); err != nil {
		return err
	}
	n.ingest.SetUniverse(u)
	return nil
}

// SetTopology persists the strip layout and resizes the pixel buffer.
func (n *Node) SetTopology(pins []int, stripCount, ledsPerStrip uint16) error {
	if err := n.settings.SetTopology(pins, stripCount, ledsPerStrip); err != nil {
		return err
	}
	n.arbiter.Resize(int(stripCount) * int(ledsPerStrip))
	return nil
}

// applySerialDmx merges a DMX fragment arriving over the control link into
// the serial channel image and hands it to the arbiter.
func (n *Node) applySerialDmx(start uint16, values []byte) error {
	if int(start)+len(values) > len(n.serialDmx) {
		return fmt.Errorf("dmx fragment out of range: start %d len %d", start, len(values))
	}
	copy(n.serialDmx[start:], values)
	n.arbiter.ApplyDMX(n.serialDmx[:])
	return nil
}
