// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// HostTransport implements Transport on top of host-managed networking:
// the operating system owns association and addressing, so "connecting"
// means waiting for a routable address to appear on a non-loopback
// interface.
type HostTransport struct {
	pollInterval time.Duration
}

// NewHostTransport creates a host transport.
func NewHostTransport() *HostTransport {
	return &HostTransport{pollInterval: 500 * time.Millisecond}
}

// Init verifies the interface list is enumerable.
func (h *HostTransport) Init() error {
	if _, err := net.Interfaces(); err != nil {
		return fmt.Errorf("enumerate interfaces: %w", err)
	}
	return nil
}

// Connect polls until a routable address appears or ctx expires.
func (h *HostTransport) Connect(ctx context.Context, _, _ string) error {
	for {
		if h.Up() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for link: %w", ctx.Err())
		case <-time.After(h.pollInterval):
		}
	}
}

// Up reports whether any non-loopback interface has a global unicast
// address.
func (h *HostTransport) Up() bool {
	return h.address() != nil
}

// StartAccessPoint is not available on a host-managed stack.
func (h *HostTransport) StartAccessPoint(string) error {
	return errors.New("access point mode not supported on host transport")
}

// Disconnect is a no-op; the host owns the link.
func (h *HostTransport) Disconnect() error { return nil }

// Info returns the first routable address.
func (h *HostTransport) Info() Info {
	if ip := h.address(); ip != nil {
		return Info{IP: ip.String()}
	}
	return Info{}
}

func (h *HostTransport) address() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipnet.IP; ip.IsGlobalUnicast() {
				return ip
			}
		}
	}
	return nil
}
