// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package supervisor arranges the client's long-running pieces under a
// suture tree: node session loops in one layer, telemetry in another,
// so a crashing session cannot take the metrics endpoint down with it.
package supervisor

import (
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/Ludrietz/blendfarm/internal/logging"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering
	// backoff. Default: 5.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30.
	FailureDecay float64

	// FailureBackoff is the wait when the threshold is exceeded.
	// Default: 15s.
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum wait for graceful shutdown.
	// Default: 10s.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the client's supervisor hierarchy: a root with a sessions
// layer (one service per attached node) and a telemetry layer.
type Tree struct {
	root      *suture.Supervisor
	sessions  *suture.Supervisor
	telemetry *suture.Supervisor
}

// NewTree builds the supervisor tree. Suture events are logged through
// the zerolog-backed slog adapter.
func NewTree(config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("blendfarm", rootSpec)
	sessions := suture.New("sessions", childSpec)
	telemetry := suture.New("telemetry", childSpec)
	root.Add(sessions)
	root.Add(telemetry)

	return &Tree{root: root, sessions: sessions, telemetry: telemetry}
}

// Root returns the root supervisor; callers run it with ServeBackground
// or Serve.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddSession adds a node session service to the sessions layer.
func (t *Tree) AddSession(svc suture.Service) suture.ServiceToken {
	return t.sessions.Add(svc)
}

// RemoveSession removes a previously added session service.
func (t *Tree) RemoveSession(token suture.ServiceToken) error {
	return t.sessions.Remove(token)
}

// AddTelemetry adds a service to the telemetry layer.
func (t *Tree) AddTelemetry(svc suture.Service) suture.ServiceToken {
	return t.telemetry.Add(svc)
}
