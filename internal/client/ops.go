// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"fmt"

	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// Prepare provisions a Blender version on the node, downloading it
// server-side when absent. Success records the version as available
// for the current connection.
func (n *Node) Prepare(ctx context.Context, version string) error {
	defer n.clearActivity()
	n.setActivity("Preparing "+version, -1)

	resp, err := requestTyped[protocol.PrepareResponse](ctx, n,
		protocol.Prepare{Version: version}, protocol.TypePrepareResponse)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("prepare %s: %s", version, resp.Message)
	}

	n.addAvailableVersion(version)
	n.mu.Lock()
	n.isPrepared = true
	n.mu.Unlock()
	n.emit(FieldPrepared, true)
	return nil
}

// IsVersionAvailable probes whether a Blender version is already
// present on the node, without triggering a download. A positive
// answer records the version for the current connection.
func (n *Node) IsVersionAvailable(ctx context.Context, version string) (bool, error) {
	resp, err := requestTyped[protocol.IsVersionAvailableResponse](ctx, n,
		protocol.IsVersionAvailable{Version: version}, protocol.TypeIsVersionAvailableResponse)
	if err != nil {
		return false, err
	}
	if resp.Success {
		n.addAvailableVersion(version)
	}
	return resp.Success, nil
}

// IsBusy asks the node whether it is currently rendering for anyone.
func (n *Node) IsBusy(ctx context.Context) (bool, error) {
	resp, err := requestTyped[protocol.IsBusyResponse](ctx, n,
		protocol.IsBusy{}, protocol.TypeIsBusyResponse)
	if err != nil {
		return false, err
	}
	return resp.IsBusy, nil
}
