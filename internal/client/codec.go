// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// pendingReply is a registered waiter for one correlated response.
type pendingReply struct {
	ch chan *protocol.Envelope
}

// codec frames typed messages onto a duplex byte stream and correlates
// replies to requests by id. Writes are serialized; one outstanding
// write at a time. Reply delivery happens from the connection's read
// loop via deliver; transport loss via drain, which wakes every
// outstanding waiter with the drop error.
type codec struct {
	rw io.ReadWriter

	// writeMu serializes frame writes onto the transport.
	writeMu sync.Mutex

	// mu guards pending and dropErr.
	mu      sync.Mutex
	pending map[string]*pendingReply
	dropErr error

	// onViolation is invoked when a reply arrives with the wrong type.
	// The owner terminates the connection.
	onViolation func(error)
}

func newCodec(rw io.ReadWriter) *codec {
	return &codec{
		rw:      rw,
		pending: make(map[string]*pendingReply),
	}
}

// sendOneway writes a message without registering a reply waiter.
func (c *codec) sendOneway(msg protocol.Message) error {
	env, err := protocol.NewEnvelope(msg, "")
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteEnvelope(c.rw, env)
}

// sendRequest writes a message with a fresh correlation id and blocks
// until the matching reply arrives, ctx is done, or the transport
// drops. A reply of the wrong type is a protocol violation that
// terminates the connection.
func (c *codec) sendRequest(ctx context.Context, msg protocol.Message, expect protocol.MessageType) (*protocol.Envelope, error) {
	id := uuid.NewString()
	waiter := &pendingReply{ch: make(chan *protocol.Envelope, 1)}

	c.mu.Lock()
	if c.dropErr != nil {
		err := c.dropErr
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = waiter
	c.mu.Unlock()

	env, err := protocol.NewEnvelope(msg, id)
	if err != nil {
		c.remove(id)
		return nil, err
	}

	c.writeMu.Lock()
	err = protocol.WriteEnvelope(c.rw, env)
	c.writeMu.Unlock()
	if err != nil {
		c.remove(id)
		return nil, ErrDisconnected
	}

	select {
	case reply, ok := <-waiter.ch:
		if !ok {
			// Drained: transport dropped while we were waiting.
			c.mu.Lock()
			err := c.dropErr
			c.mu.Unlock()
			if err == nil {
				err = ErrDisconnected
			}
			return nil, err
		}
		if reply.Type != expect {
			violation := &ProtocolError{Expected: expect, Got: reply.Type}
			if c.onViolation != nil {
				c.onViolation(violation)
			}
			return nil, violation
		}
		return reply, nil
	case <-ctx.Done():
		c.remove(id)
		return nil, ctx.Err()
	}
}

// deliver routes a correlated reply to its waiter. Replies for unknown
// ids belong to cancelled requests and are dropped.
func (c *codec) deliver(env *protocol.Envelope) {
	c.mu.Lock()
	waiter, ok := c.pending[env.ResponseTo]
	if ok {
		delete(c.pending, env.ResponseTo)
	}
	c.mu.Unlock()

	if !ok {
		logging.Trace().Str("type", string(env.Type)).Str("id", env.ResponseTo).
			Msg("dropping reply for cancelled request")
		return
	}
	waiter.ch <- env
}

// drain fails every outstanding waiter with err. Called exactly once,
// when the transport drops.
func (c *codec) drain(err error) {
	c.mu.Lock()
	if c.dropErr == nil {
		c.dropErr = err
	}
	pending := c.pending
	c.pending = make(map[string]*pendingReply)
	c.mu.Unlock()

	for _, waiter := range pending {
		close(waiter.ch)
	}
}

// remove unregisters a waiter after a local failure or cancellation.
func (c *codec) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
