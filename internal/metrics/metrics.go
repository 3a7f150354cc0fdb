// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package metrics provides Prometheus instrumentation for the client:
// per-node connection state, recovery cycles, sync throughput, and
// render outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection Metrics
	NodeConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blendfarm_node_connected",
			Help: "Whether a node connection is currently open (1) or not (0)",
		},
		[]string{"node"},
	)

	NodeRecoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendfarm_node_recoveries_total",
			Help: "Total number of successful connect-and-recover cycles",
		},
		[]string{"node"},
	)

	// Sync Metrics
	SyncBytesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendfarm_sync_bytes_uploaded_total",
			Help: "Total raw bytes of scene data uploaded, before compression",
		},
		[]string{"node"},
	)

	SyncChunksUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendfarm_sync_chunks_uploaded_total",
			Help: "Total upload chunks acknowledged by nodes",
		},
		[]string{"node"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blendfarm_sync_duration_seconds",
			Help:    "Duration of verified file syncs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Render Metrics
	RendersCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blendfarm_renders_completed_total",
			Help: "Total render and batch render tasks finished, by outcome",
		},
		[]string{"node", "result"}, // result: "success", "failure", "error"
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blendfarm_render_duration_seconds",
			Help:    "Duration of successful render calls in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
)
