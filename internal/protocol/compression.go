// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package protocol

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the per-chunk compression mode declared in
// SyncStart. Each chunk is compressed independently so the node can
// decode and persist chunks as they arrive.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// Valid reports whether c is a known compression mode.
func (c Compression) Valid() bool {
	switch c {
	case CompressionNone, CompressionGzip, CompressionZstd:
		return true
	}
	return false
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		// Errors here only occur for invalid options; the defaults
		// used cannot fail.
		zstdEncoder, _ = zstd.NewWriter(nil)
		zstdDecoder, _ = zstd.NewReader(nil)
	})
}

// CompressChunk compresses one upload chunk with the given mode.
// CompressionNone returns data unchanged.
func CompressChunk(data []byte, mode Compression) ([]byte, error) {
	switch mode {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("protocol: gzip chunk: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("protocol: gzip chunk: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		zstdInit()
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("protocol: unknown compression %q", mode)
	}
}

// DecompressChunk reverses CompressChunk. The client only needs this in
// tests; the node side does the real decoding.
func DecompressChunk(data []byte, mode Compression) ([]byte, error) {
	switch mode {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("protocol: gunzip chunk: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("protocol: gunzip chunk: %w", err)
		}
		return out, nil
	case CompressionZstd:
		zstdInit()
		return zstdDecoder.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("protocol: unknown compression %q", mode)
	}
}
