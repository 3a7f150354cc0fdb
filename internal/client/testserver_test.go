// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// testNode is an in-process node daemon speaking the wire protocol.
// It answers the handshake itself and routes everything else to the
// test's handler.
type testNode struct {
	t        *testing.T
	listener net.Listener

	// protocolVersion lets tests simulate an outdated node.
	protocolVersion int
	// requireAuth and acceptPass configure the auth stage.
	requireAuth bool
	acceptPass  string

	// rejectConnects > 0 makes the next n accepted connections close
	// immediately, simulating a dead or unreachable node.
	rejectConnects atomic.Int32

	// handler receives every non-handshake request. Return true when
	// handled; unhandled messages fail the test.
	handler func(c *testConn, env *protocol.Envelope) bool

	mu       sync.Mutex
	conns    []*testConn
	accepted int
}

// testConn is one accepted server-side connection.
type testConn struct {
	node    *testNode
	conn    net.Conn
	writeMu sync.Mutex
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testNode{
		t:               t,
		listener:        listener,
		protocolVersion: protocol.ProtocolVersion,
	}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *testNode) Addr() string {
	return s.listener.Addr().String()
}

// Accepted returns how many connections completed accept (including
// rejected ones).
func (s *testNode) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *testNode) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// CloseConns drops every live connection without touching the
// listener, simulating a mid-stream transport failure.
func (s *testNode) CloseConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (s *testNode) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepted++
		s.mu.Unlock()

		if s.rejectConnects.Load() > 0 {
			s.rejectConnects.Add(-1)
			_ = conn.Close()
			continue
		}

		c := &testConn{node: s, conn: conn}
		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.mu.Unlock()
		go c.serve()
	}
}

func (c *testConn) serve() {
	for {
		env, err := protocol.ReadEnvelope(c.conn)
		if err != nil {
			return
		}
		switch env.Type {
		case protocol.TypeCheckProtocol:
			c.reply(env, protocol.TypeCheckProtocolResponse, protocol.CheckProtocolResponse{
				ProtocolVersion: c.node.protocolVersion,
				RequireAuth:     c.node.requireAuth,
			})
		case protocol.TypeAuth:
			var auth protocol.Auth
			_ = env.Decode(&auth)
			c.reply(env, protocol.TypeAuthResponse, protocol.AuthResponse{
				IsAuthenticated: auth.Pass == c.node.acceptPass,
			})
		case protocol.TypeComputerInfo:
			c.reply(env, protocol.TypeComputerInfoResponse, protocol.ComputerInfoResponse{
				Name:  "render-1",
				OS:    "linux",
				Cores: 16,
			})
		default:
			if c.node.handler != nil && c.node.handler(c, env) {
				continue
			}
			c.node.t.Errorf("unhandled request %s", env.Type)
			return
		}
	}
}

// reply sends a correlated response for env.
func (c *testConn) reply(env *protocol.Envelope, typ protocol.MessageType, payload any) {
	c.send(&protocol.Envelope{Type: typ, ResponseTo: env.ID}, payload)
}

// event pushes an unsolicited server message.
func (c *testConn) event(typ protocol.MessageType, payload any) {
	c.send(&protocol.Envelope{Type: typ}, payload)
}

func (c *testConn) send(env *protocol.Envelope, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.node.t.Errorf("encode %s payload: %v", env.Type, err)
		return
	}
	env.Payload = raw
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WriteEnvelope(c.conn, env); err != nil {
		c.node.t.Logf("write %s: %v", env.Type, err)
	}
}

// newTestClientNode builds a Node pointed at the test daemon with fast
// recovery timings.
func newTestClientNode(t *testing.T, s *testNode, cfg Config) *Node {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test-node"
	}
	cfg.Address = s.Addr()
	if cfg.Retry.ConnectInterval == 0 {
		cfg.Retry.ConnectInterval = 10 * time.Millisecond
	}
	node, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = node.Disconnect() })
	return node
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}
