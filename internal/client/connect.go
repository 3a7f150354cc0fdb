// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"fmt"

	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/metrics"
	"github.com/Ludrietz/blendfarm/internal/protocol"
	"github.com/Ludrietz/blendfarm/internal/wol"
)

// Connect opens the transport and runs the protocol handshake:
// version check, optional authentication, capability query. Connecting
// an already connected node is a no-op. The handshake is idempotent
// and rerun by recovery after every drop.
func (n *Node) Connect(ctx context.Context) error {
	n.connectMu.Lock()
	defer n.connectMu.Unlock()

	if n.Connected() {
		return nil
	}

	// Fire-and-forget wake hint before dialing; never fatal.
	if n.mac != "" {
		if err := wol.Wake(n.mac); err != nil {
			logging.Warn().Err(err).Str("node", n.name).Msg("wake-on-lan failed")
		}
	}

	conn, err := Dial(ctx, n.address)
	if err != nil {
		n.setException(err.Error())
		return err
	}
	conn.Start(n.handleEvent, func(cause error) { n.handleDisconnect(conn, cause) })

	if err := n.handshake(ctx, conn); err != nil {
		_ = conn.Close()
		n.setException(err.Error())
		return err
	}

	n.mu.Lock()
	n.conn = conn
	n.connected = true
	// Per-connection caches start empty; version knowledge is
	// re-queried on demand.
	n.availableVersions = make(map[string]struct{})
	n.mu.Unlock()

	n.setException("")
	n.setLastStatus("connected")
	n.emit(FieldConnected, true)
	metrics.NodeConnected.WithLabelValues(n.name).Set(1)
	logging.Info().Str("node", n.name).Str("address", n.address).Msg("node connected")
	return nil
}

// handshake runs the fresh-connection protocol sequence against a
// not-yet-current connection.
func (n *Node) handshake(ctx context.Context, conn *Connection) error {
	env, err := conn.Request(ctx, protocol.CheckProtocol{
		ClientMajor:     protocol.ClientVersionMajor,
		ClientMinor:     protocol.ClientVersionMinor,
		ClientPatch:     protocol.ClientVersionPatch,
		ProtocolVersion: protocol.ProtocolVersion,
	}, protocol.TypeCheckProtocolResponse)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	var check protocol.CheckProtocolResponse
	if err := env.Decode(&check); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if check.ProtocolVersion != protocol.ProtocolVersion {
		return fmt.Errorf("%w: node speaks %d, client speaks %d",
			ErrOutdatedProtocol, check.ProtocolVersion, protocol.ProtocolVersion)
	}

	if check.RequireAuth {
		env, err := conn.Request(ctx, protocol.Auth{Pass: n.pass}, protocol.TypeAuthResponse)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		var auth protocol.AuthResponse
		if err := env.Decode(&auth); err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		if !auth.IsAuthenticated {
			return ErrAuthFailed
		}
	}

	env, err = conn.Request(ctx, protocol.ComputerInfo{}, protocol.TypeComputerInfoResponse)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	var info protocol.ComputerInfoResponse
	if err := env.Decode(&info); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	n.mu.Lock()
	n.computerName = info.Name
	n.os = info.OS
	n.cores = info.Cores
	n.mu.Unlock()
	n.emit(FieldComputerName, info.Name)
	n.emit(FieldOS, info.OS)
	n.emit(FieldCores, info.Cores)
	return nil
}

// handleDisconnect is the Connection's end-of-lifecycle callback. A nil
// cause means a deliberate local Disconnect, which keeps per-session
// sync flags; an actual drop clears every sync flag until a fresh
// verification.
func (n *Node) handleDisconnect(conn *Connection, cause error) {
	n.mu.Lock()
	if n.conn != conn {
		// A connection that never became current (handshake failure)
		// or one already replaced by recovery.
		n.mu.Unlock()
		return
	}
	n.conn = nil
	n.connected = false
	n.mu.Unlock()

	if cause != nil {
		n.clearSyncedAll()
		n.setLastStatus("disconnected")
		logging.Warn().Err(cause).Str("node", n.name).Msg("node connection dropped")
	} else {
		n.setLastStatus("closed")
	}
	n.emit(FieldConnected, false)
	metrics.NodeConnected.WithLabelValues(n.name).Set(0)
}

// Disconnect deliberately closes the transport. Per-session sync flags
// are retained: only a disconnect event clears them, not the explicit
// call.
func (n *Node) Disconnect() error {
	n.connectMu.Lock()
	defer n.connectMu.Unlock()

	conn := n.connection()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
