// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package discovery listens for render node announcement broadcasts on
// the local network. Node daemons periodically broadcast a small UDP
// datagram naming themselves and their listen port; the client turns
// those into Found events so the UI can offer one-click node setup.
// Listening is gated by the listenForBroadcasts setting.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/Ludrietz/blendfarm/internal/logging"
)

// Port is the UDP broadcast port node daemons announce on.
const Port = 16342

// announcePrefix tags BlendFarm datagrams; everything else on the port
// is ignored.
const announcePrefix = "BLENDFARM"

// Found describes one announced render node.
type Found struct {
	// Name is the node's self-reported label.
	Name string
	// Address is the node daemon's TCP endpoint, host:port.
	Address string
}

// Listener receives node announcements until Close.
type Listener struct {
	conn net.PacketConn

	mu      sync.Mutex
	onFound func(Found)
	closed  bool
}

// Listen binds the broadcast port and starts delivering announcements
// to onFound from a background goroutine.
func Listen(onFound func(Found)) (*Listener, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, fmt.Errorf("discovery: listen :%d: %w", Port, err)
	}

	l := &Listener{conn: conn, onFound: onFound}
	go l.run()
	return l, nil
}

// Close stops the listener.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.conn.Close()
}

func (l *Listener) run() {
	buf := make([]byte, 512)
	for {
		read, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if !closed {
				logging.Warn().Err(err).Msg("discovery listener stopped")
			}
			return
		}

		found, ok := parseAnnouncement(string(buf[:read]), addr)
		if !ok {
			continue
		}
		logging.Debug().Str("name", found.Name).Str("address", found.Address).
			Msg("node announcement")
		l.onFound(found)
	}
}

// parseAnnouncement decodes "BLENDFARM||<name>||<port>" against the
// datagram's source address.
func parseAnnouncement(payload string, addr net.Addr) (Found, bool) {
	parts := strings.Split(strings.TrimSpace(payload), "||")
	if len(parts) != 3 || parts[0] != announcePrefix {
		return Found{}, false
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port <= 0 || port > 65535 {
		return Found{}, false
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Found{}, false
	}
	return Found{
		Name:    parts[1],
		Address: net.JoinHostPort(host, strconv.Itoa(port)),
	}, true
}

// Announce broadcasts one announcement datagram for a node. The client
// only uses this in tests; real announcements come from node daemons.
func Announce(name string, port int, broadcastAddr string) error {
	if broadcastAddr == "" {
		broadcastAddr = fmt.Sprintf("255.255.255.255:%d", Port)
	}
	conn, err := net.Dial("udp4", broadcastAddr)
	if err != nil {
		return fmt.Errorf("discovery: dial %s: %w", broadcastAddr, err)
	}
	defer conn.Close()

	payload := fmt.Sprintf("%s||%s||%d", announcePrefix, name, port)
	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("discovery: announce: %w", err)
	}
	return nil
}
