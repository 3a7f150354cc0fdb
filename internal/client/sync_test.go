// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Ludrietz/blendfarm/internal/protocol"
)

// syncRecorder wires a testNode with a working sync endpoint and
// records what arrives.
type syncRecorder struct {
	mu          sync.Mutex
	uploadID    string
	compression protocol.Compression
	chunks      [][]byte
	completed   bool
	sameFile    bool
	startFail   string
	checkOK     bool
}

func newSyncRecorder(s *testNode) *syncRecorder {
	r := &syncRecorder{uploadID: "up-1", checkOK: true}
	s.handler = func(c *testConn, env *protocol.Envelope) bool {
		switch env.Type {
		case protocol.TypeSyncStart:
			var req protocol.SyncStart
			_ = env.Decode(&req)
			r.mu.Lock()
			r.compression = req.Compression
			fail, same := r.startFail, r.sameFile
			r.mu.Unlock()
			if fail != "" {
				c.reply(env, protocol.TypeSyncResponse, protocol.SyncResponse{Success: false, Message: fail})
				return true
			}
			c.reply(env, protocol.TypeSyncResponse, protocol.SyncResponse{
				Success: true, SameFile: same, UploadID: r.uploadID,
			})
			return true
		case protocol.TypeSyncUpload:
			var req protocol.SyncUpload
			_ = env.Decode(&req)
			r.mu.Lock()
			r.chunks = append(r.chunks, req.Data)
			r.mu.Unlock()
			c.reply(env, protocol.TypeSyncUploadResponse, protocol.SyncUploadResponse{Success: true})
			return true
		case protocol.TypeSyncComplete:
			r.mu.Lock()
			r.completed = true
			r.mu.Unlock()
			c.reply(env, protocol.TypeSyncCompleteResponse, protocol.SyncCompleteResponse{Success: true})
			return true
		case protocol.TypeCheckSync:
			r.mu.Lock()
			ok := r.checkOK
			r.mu.Unlock()
			c.reply(env, protocol.TypeCheckSyncResponse, protocol.CheckSyncResponse{Success: ok})
			return true
		case protocol.TypeSyncNetwork:
			r.mu.Lock()
			fail, same := r.startFail, r.sameFile
			r.mu.Unlock()
			if fail != "" {
				c.reply(env, protocol.TypeSyncResponse, protocol.SyncResponse{Success: false, Message: fail})
				return true
			}
			c.reply(env, protocol.TypeSyncResponse, protocol.SyncResponse{Success: true, SameFile: same})
			return true
		}
		return false
	}
	return r
}

func (r *syncRecorder) chunk(i int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[i]
}

func (r *syncRecorder) mode() protocol.Compression {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compression
}

func (r *syncRecorder) chunkSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make([]int, len(r.chunks))
	for i, chunk := range r.chunks {
		sizes[i] = len(chunk)
	}
	return sizes
}

func connectedNode(t *testing.T, s *testNode) *Node {
	t.Helper()
	node := newTestClientNode(t, s, Config{})
	if err := node.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return node
}

func TestSyncFileSingleChunk(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	node := connectedNode(t, s)

	data := bytes.Repeat([]byte{0xAB}, 1<<20)
	err := node.SyncFile(context.Background(), "s1", 42, bytes.NewReader(data), int64(len(data)), protocol.CompressionNone)
	if err != nil {
		t.Fatalf("SyncFile: %v", err)
	}

	if got := r.chunkSizes(); len(got) != 1 || got[0] != len(data) {
		t.Errorf("chunks = %v, want one chunk of %d bytes", got, len(data))
	}
	r.mu.Lock()
	completed := r.completed
	r.mu.Unlock()
	if !completed {
		t.Error("SyncComplete never arrived")
	}
	if !node.IsSessionSynced("s1") {
		t.Error("session not marked synced after verified sync")
	}
	if node.LastFileID() != 42 {
		t.Errorf("LastFileID = %d, want 42", node.LastFileID())
	}
	if !node.IsIdle() {
		t.Errorf("activity %q not cleared after sync", node.Activity())
	}
	if !bytes.Equal(r.chunk(0), data) {
		t.Error("uploaded bytes differ from input")
	}
}

func TestSyncFileChunkBoundary(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	node := connectedNode(t, s)

	// One full chunk plus a five byte tail: the tail must travel with
	// its actual length, not padded.
	size := protocol.ChunkSize + 5
	data := bytes.Repeat([]byte{0x11}, size)
	err := node.SyncFile(context.Background(), "s1", 1, bytes.NewReader(data), int64(size), protocol.CompressionNone)
	if err != nil {
		t.Fatalf("SyncFile: %v", err)
	}

	sizes := r.chunkSizes()
	if len(sizes) != 2 {
		t.Fatalf("chunk count = %d, want 2", len(sizes))
	}
	if sizes[0] != protocol.ChunkSize {
		t.Errorf("first chunk = %d bytes, want exactly %d", sizes[0], protocol.ChunkSize)
	}
	if sizes[1] != 5 {
		t.Errorf("last chunk = %d bytes, want 5", sizes[1])
	}
}

func TestSyncFileSameFileFastPath(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	r.sameFile = true
	node := connectedNode(t, s)

	data := []byte("scene bytes")
	err := node.SyncFile(context.Background(), "s1", 42, bytes.NewReader(data), int64(len(data)), protocol.CompressionNone)
	if err != nil {
		t.Fatalf("SyncFile: %v", err)
	}

	if len(r.chunkSizes()) != 0 {
		t.Error("sameFile fast path still uploaded chunks")
	}
	if !node.IsSessionSynced("s1") {
		t.Error("sameFile did not mark the session synced")
	}
	if node.LastFileID() != 42 {
		t.Errorf("LastFileID = %d, want 42", node.LastFileID())
	}
}

func TestSyncFileServerRejection(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	r.startFail = "disk full"
	node := connectedNode(t, s)

	err := node.SyncFile(context.Background(), "s1", 42, bytes.NewReader([]byte("x")), 1, protocol.CompressionNone)
	var serr *SyncError
	if !errors.As(err, &serr) {
		t.Fatalf("SyncFile returned %v, want SyncError", err)
	}
	if serr.Message != "disk full" {
		t.Errorf("SyncError.Message = %q, want server message", serr.Message)
	}
	if node.IsSessionSynced("s1") {
		t.Error("rejected sync left session marked synced")
	}
	if !node.IsIdle() {
		t.Error("activity not reset on sync failure")
	}
}

func TestSyncFileVerificationGate(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	r.checkOK = false
	node := connectedNode(t, s)

	data := []byte("scene bytes")
	err := node.SyncFile(context.Background(), "s1", 42, bytes.NewReader(data), int64(len(data)), protocol.CompressionNone)
	if err == nil {
		t.Fatal("SyncFile succeeded despite failed verification")
	}
	if node.IsSessionSynced("s1") {
		t.Error("session synced without server verification")
	}
	if node.LastFileID() == 42 {
		t.Error("lastFileID advanced without verification")
	}
}

func TestSyncFileCompressedChunks(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	node := connectedNode(t, s)

	data := bytes.Repeat([]byte("blender"), 4096)
	err := node.SyncFile(context.Background(), "s1", 3, bytes.NewReader(data), int64(len(data)), protocol.CompressionGzip)
	if err != nil {
		t.Fatalf("SyncFile: %v", err)
	}

	if r.mode() != protocol.CompressionGzip {
		t.Errorf("SyncStart declared %q, want gzip", r.mode())
	}
	if got := len(r.chunkSizes()); got != 1 {
		t.Fatalf("chunk count = %d, want 1", got)
	}
	decoded, err := protocol.DecompressChunk(r.chunk(0), protocol.CompressionGzip)
	if err != nil {
		t.Fatalf("DecompressChunk: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("decompressed chunk differs from input")
	}
	if len(r.chunk(0)) >= len(data) {
		t.Error("gzip chunk not smaller than repetitive input")
	}
}

func TestSyncNetworkFile(t *testing.T) {
	s := newTestNode(t)
	newSyncRecorder(s)
	node := connectedNode(t, s)

	err := node.SyncNetworkFile(context.Background(), "s1", 9,
		`\\nas\scenes\shot.blend`, "/mnt/nas/scenes/shot.blend", "/Volumes/nas/scenes/shot.blend")
	if err != nil {
		t.Fatalf("SyncNetworkFile: %v", err)
	}
	if !node.IsSessionSynced("s1") {
		t.Error("network sync did not mark session synced")
	}
	if node.LastFileID() != 9 {
		t.Errorf("LastFileID = %d, want 9", node.LastFileID())
	}
	if !node.IsIdle() {
		t.Error("activity not reset after network sync")
	}
}

func TestSyncRepeatTakesSameFilePath(t *testing.T) {
	s := newTestNode(t)
	r := newSyncRecorder(s)
	node := connectedNode(t, s)

	data := []byte("scene bytes")
	if err := node.SyncFile(context.Background(), "s1", 42, bytes.NewReader(data), int64(len(data)), protocol.CompressionNone); err != nil {
		t.Fatalf("first SyncFile: %v", err)
	}
	uploads := len(r.chunkSizes())

	// The node now holds fileID 42; a repeat sync short-circuits.
	r.mu.Lock()
	r.sameFile = true
	r.mu.Unlock()
	if err := node.SyncFile(context.Background(), "s1", 42, bytes.NewReader(data), int64(len(data)), protocol.CompressionNone); err != nil {
		t.Fatalf("repeat SyncFile: %v", err)
	}

	if got := len(r.chunkSizes()); got != uploads {
		t.Errorf("repeat sync transferred %d extra chunks", got-uploads)
	}
	if !node.IsSessionSynced("s1") {
		t.Error("repeat sync lost the synced flag")
	}
}
