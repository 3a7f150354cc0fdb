// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package wol emits wake-on-LAN magic packets. The client fires one
// best-effort packet before dialing a node that has a MAC configured;
// delivery is never confirmed and failures are never fatal to the
// connect path.
package wol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidMAC reports a MAC string that does not contain exactly 12
// hex digits.
var ErrInvalidMAC = errors.New("invalid MAC address")

// DefaultBroadcast is the standard WoL destination: limited broadcast
// on discard port 9.
const DefaultBroadcast = "255.255.255.255:9"

// macBytes is a parsed 48-bit hardware address.
type macBytes [6]byte

// ParseMAC accepts AA:BB:CC:DD:EE:FF, AA-BB-CC-DD-EE-FF, or bare hex.
// Anything that is not exactly 12 hex digits after separator removal
// fails with ErrInvalidMAC.
func ParseMAC(mac string) (macBytes, error) {
	var parsed macBytes

	cleaned := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(mac))
	if len(cleaned) != 12 {
		return parsed, fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return parsed, fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	copy(parsed[:], raw)
	return parsed, nil
}

// MagicPacket builds the 102-byte wake frame: six 0xFF bytes followed
// by the MAC repeated sixteen times. The content is determined solely
// by the MAC, so emission is idempotent.
func MagicPacket(mac string) ([]byte, error) {
	parsed, err := ParseMAC(mac)
	if err != nil {
		return nil, err
	}

	packet := make([]byte, 0, 102)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, parsed[:]...)
	}
	return packet, nil
}

// Wake broadcasts a magic packet for mac to the default WoL address.
func Wake(mac string) error {
	return SendMagicPacket(mac, DefaultBroadcast)
}

// SendMagicPacket broadcasts a magic packet for mac to addr
// (host:port). Fire-and-forget: a successful return only means the
// datagram left this host.
func SendMagicPacket(mac, addr string) error {
	packet, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("wol: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("wol: send to %s: %w", addr, err)
	}
	return nil
}
