// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"time"

	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/metrics"
	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// ConnectRecover re-establishes a dropped connection and reclaims the
// named sessions: full handshake, then a Recover request. Each failed
// cycle waits interval before the next; exhausting attempts returns a
// RecoverError.
//
// A recovered connection starts with empty per-connection caches; the
// node's Recover reply restores session identity, and a subsequent
// CheckSync or re-sync restores the synced flags.
func (n *Node) ConnectRecover(ctx context.Context, attempts int, interval time.Duration, sessions []string) error {
	if attempts <= 0 {
		attempts = DefaultRetryPolicy().ConnectAttempts
	}
	if interval <= 0 {
		interval = DefaultRetryPolicy().ConnectInterval
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := n.Connect(ctx); err != nil {
			lastErr = err
			logging.Debug().Err(err).Str("node", n.name).Int("attempt", attempt).
				Msg("reconnect failed")
			continue
		}

		resp, err := requestTyped[protocol.RecoverResponse](ctx, n,
			protocol.Recover{SessionIDs: sessions}, protocol.TypeRecoverResponse)
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.Success {
			lastErr = &RecoverError{Message: resp.Message}
			continue
		}

		metrics.NodeRecoveries.WithLabelValues(n.name).Inc()
		logging.Info().Str("node", n.name).Int("attempt", attempt).
			Strs("sessions", sessions).Msg("node recovered")
		return nil
	}

	return &RecoverError{Attempts: attempts, Err: lastErr}
}
