// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"errors"
	"fmt"

	"github.com/Ludrietz/blendfarm/internal/protocol"
)

var (
	// ErrDisconnected is returned by any request whose transport dropped
	// before the reply arrived, and by requests issued while no
	// connection exists. Render paths catch it and trigger recovery.
	ErrDisconnected = errors.New("node disconnected")

	// ErrOutdatedProtocol means the node daemon speaks a different
	// protocol version than this client. Fatal to the connection.
	ErrOutdatedProtocol = errors.New("node protocol version mismatch")

	// ErrAuthFailed means the node rejected the configured password.
	// Fatal to the connection.
	ErrAuthFailed = errors.New("node authentication failed")

	// ErrAlreadyRendering is returned synchronously when a render or
	// peek is requested while another task is in flight on the node.
	ErrAlreadyRendering = errors.New("a render task is already in flight")

	// ErrRecoverExhausted means a render task hit its disconnect retry
	// budget without completing.
	ErrRecoverExhausted = errors.New("render retry budget exhausted")
)

// ProtocolError reports a reply whose type did not match the request.
// It terminates the connection it occurred on.
type ProtocolError struct {
	Expected protocol.MessageType
	Got      protocol.MessageType
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: expected %s reply, got %s", e.Expected, e.Got)
}

// SyncError reports a file sync rejected by the node, carrying the
// server-side message. The caller may retry the sync.
type SyncError struct {
	Message string
}

func (e *SyncError) Error() string {
	if e.Message == "" {
		return "sync failed"
	}
	return "sync failed: " + e.Message
}

// RecoverError reports a failed connect-and-recover cycle.
type RecoverError struct {
	// Attempts is how many reconnect attempts were made before giving up.
	Attempts int

	// Message is the node's refusal, when the transport came up but the
	// Recover request was denied.
	Message string

	// Err is the underlying connect or request failure, if any.
	Err error
}

func (e *RecoverError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("recover failed: %s", e.Message)
	case e.Err != nil:
		return fmt.Sprintf("recover failed after %d attempts: %v", e.Attempts, e.Err)
	default:
		return fmt.Sprintf("recover failed after %d attempts", e.Attempts)
	}
}

func (e *RecoverError) Unwrap() error { return e.Err }
