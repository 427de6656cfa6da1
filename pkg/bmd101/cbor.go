// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// frameRecord is the CBOR form of an accepted frame, used for recordings
// and for publishing frames to other services
type frameRecord struct {
	Seq         uint64      `cbor:"0,keyasint"`
	Timestamp   int64       `cbor:"1,keyasint"` // unix nanoseconds
	PayloadSize uint8       `cbor:"2,keyasint"`
	Checksum    uint8       `cbor:"3,keyasint"`
	Rows        []rowRecord `cbor:"4,keyasint"`
}

type rowRecord struct {
	Code    uint8  `cbor:"0,keyasint"`
	Level   uint8  `cbor:"1,keyasint,omitempty"`
	Payload []byte `cbor:"2,keyasint"`
}

func toRecord(f *Frame) frameRecord {
	rec := frameRecord{
		Seq:         f.seq,
		Timestamp:   f.timestamp.UnixNano(),
		PayloadSize: f.payloadSize,
		Checksum:    f.checksum,
		Rows:        make([]rowRecord, len(f.rows)),
	}
	for i, r := range f.rows {
		rec.Rows[i] = rowRecord{Code: r.code, Level: r.level, Payload: r.payload}
	}
	return rec
}

func fromRecord(rec frameRecord) *Frame {
	f := &Frame{
		seq:         rec.Seq,
		payloadSize: rec.PayloadSize,
		checksum:    rec.Checksum,
		rows:        make([]Row, len(rec.Rows)),
		timestamp:   time.Unix(0, rec.Timestamp),
	}
	for i, r := range rec.Rows {
		f.rows[i] = Row{code: r.Code, level: r.Level, index: i, payload: r.Payload}
	}
	return f
}

// MarshalFrame encodes a frame as CBOR
func MarshalFrame(f *Frame) ([]byte, error) {
	data, err := cbor.Marshal(toRecord(f))
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// UnmarshalFrame decodes a frame encoded by MarshalFrame
func UnmarshalFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR frame")
	}
	var rec frameRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return fromRecord(rec), nil
}

// FrameWriter writes a stream of CBOR-encoded frames
type FrameWriter struct {
	enc *cbor.Encoder
}

// NewFrameWriter creates a frame writer on w
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one frame to the stream
func (w *FrameWriter) Write(f *Frame) error {
	if err := w.enc.Encode(toRecord(f)); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", f.seq, err)
	}
	return nil
}

// FrameReader reads a stream written by FrameWriter
type FrameReader struct {
	dec *cbor.Decoder
}

// NewFrameReader creates a frame reader on r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{dec: cbor.NewDecoder(r)}
}

// Read returns the next frame, or io.EOF at the end of the stream
func (r *FrameReader) Read() (*Frame, error) {
	var rec frameRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return fromRecord(rec), nil
}
