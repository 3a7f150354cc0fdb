// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package protocol defines the wire protocol spoken between the BlendFarm
// client and a render node daemon.
//
// Every message travels inside an Envelope: a JSON document carrying a type
// discriminator, an optional correlation id, and the message payload. On the
// wire each envelope is preceded by a 4-byte big-endian length prefix.
//
// Three message categories exist:
//
//   - Requests: client → node; those that await a reply carry a fresh
//     correlation id, oneway messages (CancelRender) carry none.
//   - Responses: node → client, echo the request id in ResponseTo.
//   - Events: node → client, unsolicited (ResponseTo empty): render
//     progress, batch results, activity pushes, console output, and the
//     disconnect notice.
//
// The package also defines the chunked upload constants and the per-chunk
// compression modes used by the file sync pipeline.
package protocol
