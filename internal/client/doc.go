// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package client implements the per-node session core of the BlendFarm
// client: the connection and wire codec, the protocol handshake, the
// observable node state record, the chunked file-sync pipeline, the
// render task lifecycle, and automatic session recovery across
// transient disconnects.
//
// A Node is constructed detached and driven through Connect, Prepare,
// SyncFile, Render and friends. Within one node, outbound requests are
// serialized on the wire and each blocking operation takes a
// context.Context for cancellation. Operations across different nodes
// are fully independent.
//
// State changes surface through Subscribe as (field, value) change
// notifications; that channel is the only coupling to any UI layer.
//
// Failure handling follows a fixed policy: transient transport loss in
// render paths is absorbed by ConnectRecover up to a per-task retry
// budget (bounded for single renders and peeks, unbounded by default
// for batch renders), while protocol, authentication, and sync failures bubble to
// the caller. A fresh disconnect event invalidates every per-session
// sync flag until the node re-verifies them.
package client
