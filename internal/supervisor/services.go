// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ludrietz/blendfarm/internal/client"
	"github.com/Ludrietz/blendfarm/internal/logging"
)

// SessionService keeps one node connected for the client's lifetime.
// It connects, then blocks until the connection ends; returning the
// drop as an error makes suture restart the service, which reconnects
// with the full handshake.
type SessionService struct {
	node *client.Node
}

// NewSessionService wraps a node in a supervisable session loop.
func NewSessionService(node *client.Node) *SessionService {
	return &SessionService{node: node}
}

// Serve implements suture.Service.
func (s *SessionService) Serve(ctx context.Context) error {
	if err := s.node.Connect(ctx); err != nil {
		return fmt.Errorf("session %s: %w", s.node.Name(), err)
	}

	changes := s.node.Subscribe()
	defer s.node.Unsubscribe(changes)

	// The connection may have dropped between Connect returning and the
	// subscription starting; that change is already gone.
	if !s.node.Connected() {
		return fmt.Errorf("session %s: connection ended", s.node.Name())
	}

	for {
		select {
		case <-ctx.Done():
			if err := s.node.Disconnect(); err != nil {
				logging.Debug().Err(err).Str("node", s.node.Name()).Msg("disconnect on shutdown")
			}
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return fmt.Errorf("session %s: subscription closed", s.node.Name())
			}
			if change.Field == client.FieldConnected && change.Value == false {
				return fmt.Errorf("session %s: connection ended", s.node.Name())
			}
		}
	}
}

func (s *SessionService) String() string {
	return "session:" + s.node.Name()
}

// MetricsService serves the Prometheus exposition endpoint.
type MetricsService struct {
	addr string
}

// NewMetricsService serves /metrics on addr (e.g. ":9090").
func NewMetricsService(addr string) *MetricsService {
	return &MetricsService{addr: addr}
}

// Serve implements suture.Service.
func (m *MetricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func (m *MetricsService) String() string {
	return "metrics:" + m.addr
}
