// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// eventQueueSize bounds the unsolicited-event queue between the read
// loop and the dispatcher. Events beyond it are dropped rather than
// blocking the read loop.
const eventQueueSize = 256

const dialTimeout = 10 * time.Second

// Connection owns one transport to a node daemon. It runs the read
// loop, demultiplexes frames into correlated replies and unsolicited
// events, and reports the end of its lifecycle exactly once through
// the disconnect callback.
//
// Event handlers run on a dedicated dispatcher goroutine, never on the
// read loop itself.
type Connection struct {
	address string
	conn    net.Conn
	codec   *codec

	events chan *protocol.Envelope

	onEvent        func(*protocol.Envelope)
	onDisconnected func(error)

	// deliberate marks a locally initiated Close, which is not a
	// "disconnect event" in the node's state model.
	deliberate atomic.Bool

	failOnce sync.Once
	wg       sync.WaitGroup
}

// Dial opens a TCP transport to a node daemon.
func Dial(ctx context.Context, address string) (*Connection, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return newConnection(conn), nil
}

// newConnection wraps an established transport. Split from Dial so
// tests can drive a Connection over an in-memory pipe.
func newConnection(conn net.Conn) *Connection {
	c := &Connection{
		address: conn.RemoteAddr().String(),
		conn:    conn,
		codec:   newCodec(conn),
		events:  make(chan *protocol.Envelope, eventQueueSize),
	}
	c.codec.onViolation = func(err error) {
		logging.Error().Err(err).Str("node", c.address).Msg("protocol violation, closing connection")
		_ = c.conn.Close()
	}
	return c
}

// Start launches the read loop and event dispatcher. onEvent receives
// every unsolicited message in wire order; onDisconnected fires exactly
// once when the transport ends, with a nil error for a deliberate Close
// and the transport error otherwise.
func (c *Connection) Start(onEvent func(*protocol.Envelope), onDisconnected func(error)) {
	c.onEvent = onEvent
	c.onDisconnected = onDisconnected

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()
}

// Address returns the remote transport address.
func (c *Connection) Address() string {
	return c.address
}

// Request sends msg and blocks until the typed reply, cancellation, or
// transport loss.
func (c *Connection) Request(ctx context.Context, msg protocol.Message, expect protocol.MessageType) (*protocol.Envelope, error) {
	return c.codec.sendRequest(ctx, msg, expect)
}

// Oneway sends msg without expecting a reply.
func (c *Connection) Oneway(msg protocol.Message) error {
	return c.codec.sendOneway(msg)
}

// Close deliberately tears down the transport and waits for the read
// loop and dispatcher to finish. Outstanding requests fail with
// ErrDisconnected; the disconnect callback receives nil.
func (c *Connection) Close() error {
	c.deliberate.Store(true)
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// readLoop reads frames until the transport errors, dispatching
// replies synchronously and queueing events for the dispatcher.
func (c *Connection) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		env, err := protocol.ReadEnvelope(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		if env.IsEvent() {
			select {
			case c.events <- env:
			default:
				logging.Warn().Str("type", string(env.Type)).Str("node", c.address).
					Msg("event queue full, dropping event")
			}
			continue
		}
		c.codec.deliver(env)
	}
}

// dispatchLoop drains queued events into the handler, off the read
// loop.
func (c *Connection) dispatchLoop() {
	defer c.wg.Done()
	for env := range c.events {
		if c.onEvent != nil {
			c.onEvent(env)
		}
	}
}

// fail ends the connection lifecycle once: close the socket, wake every
// outstanding waiter, then publish the disconnect.
func (c *Connection) fail(err error) {
	c.failOnce.Do(func() {
		_ = c.conn.Close()
		c.codec.drain(ErrDisconnected)

		if c.deliberate.Load() {
			err = nil
		} else {
			logging.Debug().Err(err).Str("node", c.address).Msg("transport dropped")
		}
		if c.onDisconnected != nil {
			c.onDisconnected(err)
		}
	})
}
