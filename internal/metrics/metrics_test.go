// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNodeConnectedGauge(t *testing.T) {
	NodeConnected.WithLabelValues("metrics-test-node").Set(1)
	if got := testutil.ToFloat64(NodeConnected.WithLabelValues("metrics-test-node")); got != 1 {
		t.Errorf("NodeConnected = %v, want 1", got)
	}
	NodeConnected.WithLabelValues("metrics-test-node").Set(0)
	if got := testutil.ToFloat64(NodeConnected.WithLabelValues("metrics-test-node")); got != 0 {
		t.Errorf("NodeConnected = %v, want 0", got)
	}
}

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(SyncBytesUploaded.WithLabelValues("metrics-test-node"))
	SyncBytesUploaded.WithLabelValues("metrics-test-node").Add(1024)
	after := testutil.ToFloat64(SyncBytesUploaded.WithLabelValues("metrics-test-node"))
	if after-before != 1024 {
		t.Errorf("SyncBytesUploaded delta = %v, want 1024", after-before)
	}

	RendersCompleted.WithLabelValues("metrics-test-node", "success").Inc()
	if got := testutil.ToFloat64(RendersCompleted.WithLabelValues("metrics-test-node", "success")); got < 1 {
		t.Errorf("RendersCompleted = %v, want >= 1", got)
	}
}
