// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/metrics"
	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// Render runs a single render task to completion, retrying
// transparently across transient disconnects up to the render retry
// budget. Progress arrives through RenderInfo events and is reflected
// in the node's activity while the call blocks.
func (n *Node) Render(ctx context.Context, req protocol.Render) (*protocol.RenderResponse, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	if err := n.beginTask(req.TaskID, cancel); err != nil {
		cancel()
		return nil, err
	}
	defer n.endTask()

	n.setActivity("Render Loading..", -1)
	start := time.Now()

	resp, err := sendWithRecovery[protocol.RenderResponse](taskCtx, n, req,
		protocol.TypeRenderResponse, n.retry.RenderAttempts, req.SessionID)
	if err != nil {
		metrics.RendersCompleted.WithLabelValues(n.name, "error").Inc()
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.RenderDuration.Observe(elapsed.Seconds())
	if resp.Success {
		metrics.RendersCompleted.WithLabelValues(n.name, "success").Inc()
		pixels := int64(req.Settings.ResolutionX) * int64(req.Settings.ResolutionY)
		if ms := elapsed.Seconds() * 1000; ms > 0 && pixels > 0 {
			_ = n.UpdatePerformance(pixels, ms)
		}
	} else {
		metrics.RendersCompleted.WithLabelValues(n.name, "failure").Inc()
	}
	return resp, nil
}

// RenderBatch runs a multi-frame render task. Individual frames stream
// back as RenderBatchResult events to OnBatchResult subscribers; the
// call returns when the node closes the batch. The disconnect retry
// budget defaults to unbounded: long batches are expected to survive
// several connection flaps.
func (n *Node) RenderBatch(ctx context.Context, req protocol.RenderBatch) (*protocol.RenderBatchResponse, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	if err := n.beginTask(req.TaskID, cancel); err != nil {
		cancel()
		return nil, err
	}
	defer n.endTask()

	n.setActivity("Render Loading..", -1)

	resp, err := sendWithRecovery[protocol.RenderBatchResponse](taskCtx, n, req,
		protocol.TypeRenderBatchResponse, n.retry.BatchAttempts, req.SessionID)
	if err != nil {
		metrics.RendersCompleted.WithLabelValues(n.name, "error").Inc()
		return nil, err
	}
	if resp.Success {
		metrics.RendersCompleted.WithLabelValues(n.name, "success").Inc()
	} else {
		metrics.RendersCompleted.WithLabelValues(n.name, "failure").Inc()
	}
	return resp, nil
}

// Peek inspects the synced scene file without rendering: output
// dimensions, frame range, cameras. Peeks share the render task slot
// and its retry budget.
func (n *Node) Peek(ctx context.Context, req protocol.BlenderPeek) (*protocol.BlenderPeekResponse, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	if err := n.beginTask(req.TaskID, cancel); err != nil {
		cancel()
		return nil, err
	}
	defer n.endTask()

	n.setActivity("Render Loading..", -1)

	return sendWithRecovery[protocol.BlenderPeekResponse](taskCtx, n, req,
		protocol.TypeBlenderPeekResponse, n.retry.RenderAttempts, req.SessionID)
}

// CancelRender aborts the in-flight task: the local cancel handle
// fires and a best-effort CancelRender notice goes to the node. The
// activity label is left in place with indeterminate progress to show
// cancellation in flight; the blocked task call unwinds and clears it.
func (n *Node) CancelRender(sessionID string) {
	n.mu.Lock()
	cancel := n.taskCancel
	n.activityProgress = -1
	n.mu.Unlock()
	n.emit(FieldActivityProgress, float64(-1))

	if cancel != nil {
		cancel()
	}

	if conn := n.connection(); conn != nil {
		if err := conn.Oneway(protocol.CancelRender{SessionID: sessionID}); err != nil {
			logging.Debug().Err(err).Str("node", n.name).Msg("cancel notice not delivered")
		}
	}
}

// sendWithRecovery issues a task request and, on mid-task transport
// loss, reconnects and reclaims the session before retrying the
// request. maxAttempts caps disconnect retries; <= 0 means unbounded.
//
// With a bounded budget, a failed recover cycle burns one attempt and
// the loop continues until the budget is exhausted, which surfaces as
// ErrRecoverExhausted wrapping the last recover failure. Unbounded
// tasks propagate the recover failure directly, otherwise they could
// retry forever against a dead node.
func sendWithRecovery[T any](ctx context.Context, n *Node, msg protocol.Message, expect protocol.MessageType, maxAttempts int, sessionID string) (*T, error) {
	attempts := 0
	var lastRecover error
	for {
		resp, err := requestTyped[T](ctx, n, msg, expect)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrDisconnected) {
			return nil, err
		}

		attempts++
		if maxAttempts > 0 && attempts > maxAttempts {
			if lastRecover != nil {
				return nil, fmt.Errorf("%w: %w", ErrRecoverExhausted, lastRecover)
			}
			return nil, ErrRecoverExhausted
		}

		logging.Info().Str("node", n.name).Int("attempt", attempts).
			Msg("task interrupted by disconnect, recovering")
		if rerr := n.ConnectRecover(ctx, n.retry.ConnectAttempts, n.retry.ConnectInterval, []string{sessionID}); rerr != nil {
			if maxAttempts <= 0 {
				return nil, rerr
			}
			lastRecover = rerr
		}
	}
}
