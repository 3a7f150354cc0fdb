// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	// MaxFrameSize caps a single wire frame. A sync chunk is 10 MiB of
	// raw data, which base64 inflates to ~13.3 MiB plus envelope
	// overhead; 64 MiB leaves generous headroom without letting a
	// corrupt length prefix allocate unbounded memory.
	MaxFrameSize = 64 << 20

	// ChunkSize is the fixed upload chunk size for file sync. The last
	// chunk of a file may be shorter and is transmitted with its actual
	// length.
	ChunkSize = 10 << 20
)

// Envelope is the top-level wire frame. Type discriminates the payload,
// ID correlates a request with its response, ResponseTo is set on
// responses and empty on events.
type Envelope struct {
	Type       MessageType     `json:"type"`
	ID         string          `json:"id,omitempty"`
	ResponseTo string          `json:"responseTo,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// IsEvent reports whether the envelope is an unsolicited server message
// rather than a reply to an outstanding request.
func (e *Envelope) IsEvent() bool {
	return e.ResponseTo == ""
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// NewEnvelope wraps msg in an envelope with the given correlation id.
func NewEnvelope(msg Message, id string) (*Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s payload: %w", msg.Kind(), err)
	}
	return &Envelope{Type: msg.Kind(), ID: id, Payload: payload}, nil
}

// WriteEnvelope frames and writes a single envelope: a 4-byte big-endian
// length prefix followed by the JSON-encoded envelope.
func WriteEnvelope(w io.Writer, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("protocol: encode envelope: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("protocol: frame of %d bytes exceeds limit", len(body))
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadEnvelope reads one length-prefixed envelope from r. It blocks until
// a full frame arrives or the stream errors.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 || size > MaxFrameSize {
		return nil, fmt.Errorf("protocol: invalid frame length %d", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("protocol: envelope missing type")
	}
	return &env, nil
}
