// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Ludrietz/blendfarm/internal/metrics"
	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// SyncFile uploads a scene file revision to the node in fixed 10 MiB
// chunks and verifies it server-side. The session flips to synced only
// after the node's CheckSync confirms the (sessionID, fileID) pair;
// lastFileID advances at the same moment, never optimistically.
//
// size is the total input length, used for progress reporting. The
// node may answer sameFile, in which case no data is transferred.
func (n *Node) SyncFile(ctx context.Context, sessionID string, fileID int64, r io.Reader, size int64, compression protocol.Compression) error {
	if !compression.Valid() {
		return fmt.Errorf("sync: unknown compression %q", compression)
	}
	defer n.clearActivity()
	start := time.Now()

	n.setActivity("Syncing", -1)

	resp, err := requestTyped[protocol.SyncResponse](ctx, n, protocol.SyncStart{
		SessionID:   sessionID,
		FileID:      fileID,
		Compression: compression,
	}, protocol.TypeSyncResponse)
	if err != nil {
		n.setUnsynced(sessionID)
		return err
	}
	if !resp.Success {
		n.setUnsynced(sessionID)
		return &SyncError{Message: resp.Message}
	}
	if resp.SameFile {
		// The node already holds this exact revision.
		n.markSynced(sessionID, fileID)
		return nil
	}

	if err := n.uploadChunks(ctx, resp.UploadID, r, size, compression); err != nil {
		n.setUnsynced(sessionID)
		return err
	}

	complete, err := requestTyped[protocol.SyncCompleteResponse](ctx, n,
		protocol.SyncComplete{UploadID: resp.UploadID}, protocol.TypeSyncCompleteResponse)
	if err != nil {
		n.setUnsynced(sessionID)
		return err
	}
	if !complete.Success {
		n.setUnsynced(sessionID)
		return &SyncError{Message: complete.Message}
	}

	if err := n.verifySync(ctx, sessionID, fileID); err != nil {
		return err
	}
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	return nil
}

// uploadChunks streams r to the node in ChunkSize pieces. The last
// chunk carries its actual length.
func (n *Node) uploadChunks(ctx context.Context, uploadID string, r io.Reader, size int64, compression protocol.Compression) error {
	buf := make([]byte, protocol.ChunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		read, readErr := io.ReadFull(r, buf)
		if read > 0 {
			data, err := protocol.CompressChunk(buf[:read], compression)
			if err != nil {
				return err
			}

			ack, err := requestTyped[protocol.SyncUploadResponse](ctx, n,
				protocol.SyncUpload{UploadID: uploadID, Data: data}, protocol.TypeSyncUploadResponse)
			if err != nil {
				return err
			}
			if !ack.Success {
				return &SyncError{Message: ack.Message}
			}

			written += int64(read)
			metrics.SyncBytesUploaded.WithLabelValues(n.name).Add(float64(read))
			metrics.SyncChunksUploaded.WithLabelValues(n.name).Inc()

			pct := uploadPercent(written, size)
			n.setActivity(fmt.Sprintf("Syncing (%.1f%%)", pct), pct)
		}

		switch readErr {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return fmt.Errorf("sync: read input: %w", readErr)
		}
	}
}

// verifySync runs the server-side verification probe that gates the
// synced flag.
func (n *Node) verifySync(ctx context.Context, sessionID string, fileID int64) error {
	check, err := requestTyped[protocol.CheckSyncResponse](ctx, n,
		protocol.CheckSync{SessionID: sessionID, FileID: fileID}, protocol.TypeCheckSyncResponse)
	if err != nil {
		n.setUnsynced(sessionID)
		return err
	}
	if !check.Success {
		n.setUnsynced(sessionID)
		return &SyncError{Message: "sync verification failed"}
	}
	n.markSynced(sessionID, fileID)
	return nil
}

// SyncNetworkFile points the node at a file reachable over a network
// share instead of uploading it, with one path per node OS. It shares
// SyncFile's sameFile fast path and final verification probe.
func (n *Node) SyncNetworkFile(ctx context.Context, sessionID string, fileID int64, windowsPath, linuxPath, macPath string) error {
	defer n.clearActivity()
	n.setActivity("Syncing", -1)

	resp, err := requestTyped[protocol.SyncResponse](ctx, n, protocol.SyncNetwork{
		SessionID:   sessionID,
		FileID:      fileID,
		WindowsPath: windowsPath,
		LinuxPath:   linuxPath,
		MacOSPath:   macPath,
	}, protocol.TypeSyncResponse)
	if err != nil {
		n.setUnsynced(sessionID)
		return err
	}
	if !resp.Success {
		n.setUnsynced(sessionID)
		return &SyncError{Message: resp.Message}
	}
	if resp.SameFile {
		n.markSynced(sessionID, fileID)
		return nil
	}

	return n.verifySync(ctx, sessionID, fileID)
}

// uploadPercent computes transfer progress rounded to one decimal.
func uploadPercent(written, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return math.Round(float64(written)/float64(total)*1000) / 10
}
