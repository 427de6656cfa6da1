// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import "time"

// Row represents one decoded record within a frame's payload
type Row struct {
	code    uint8
	level   uint8
	index   int
	payload []byte
}

// NewRow creates a row with the given code and payload.
// The payload is copied.
func NewRow(code uint8, payload []byte) Row {
	return Row{code: code, payload: append([]byte(nil), payload...)}
}

// NewSignalQualityRow creates a signal quality row
func NewSignalQualityRow(quality uint8) Row {
	return Row{code: CodeSignalQuality, payload: []byte{quality}}
}

// NewHeartRateRow creates a heart rate row
func NewHeartRateRow(bpm uint8) Row {
	return Row{code: CodeHeartRate, payload: []byte{bpm}}
}

// NewRawSampleRow creates a raw sample row (big-endian on the wire)
func NewRawSampleRow(sample int16) Row {
	return Row{code: CodeRawData, payload: []byte{byte(uint16(sample) >> 8), byte(sample)}}
}

// WithLevel returns a copy of the row prefixed by the given number of
// escape bytes on the wire
func (r Row) WithLevel(level uint8) Row {
	r.level = level
	return r
}

// Code returns the row's type code
func (r Row) Code() uint8 {
	return r.code
}

// Level returns the number of escape bytes that preceded the code
func (r Row) Level() uint8 {
	return r.level
}

// Index returns the row's 0-based position within its frame
func (r Row) Index() int {
	return r.index
}

// Size returns the payload length
func (r Row) Size() int {
	return len(r.payload)
}

// Payload returns the row payload. Rows handed to a RowSink reference the
// decoder's scratch buffer; copy the payload to keep it past AcceptRow.
func (r Row) Payload() []byte {
	return r.payload
}

// IsRawSample returns true for raw waveform rows
func (r Row) IsRawSample() bool {
	return r.code == CodeRawData
}

// IsSignalQuality returns true for signal quality rows
func (r Row) IsSignalQuality() bool {
	return r.code == CodeSignalQuality
}

// IsHeartRate returns true for heart rate rows
func (r Row) IsHeartRate() bool {
	return r.code == CodeHeartRate
}

// RawSample returns the signed 16-bit sample carried by a raw row
func (r Row) RawSample() (int16, bool) {
	if r.code != CodeRawData || len(r.payload) != RawSampleSize {
		return 0, false
	}
	return int16(uint16(r.payload[0])<<8 | uint16(r.payload[1])), true
}

// Value returns the byte carried by a signal quality or heart rate row
func (r Row) Value() (uint8, bool) {
	if (r.code != CodeSignalQuality && r.code != CodeHeartRate) || len(r.payload) != ValueRowSize {
		return 0, false
	}
	return r.payload[0], true
}

// Frame is the set of rows of one checksum-verified frame
type Frame struct {
	seq         uint64
	payloadSize uint8
	checksum    uint8
	rows        []Row
	timestamp   time.Time
}

// NewFrame creates a frame from already decoded rows.
// Row indices are assigned in order.
func NewFrame(seq uint64, rows []Row) *Frame {
	f := &Frame{seq: seq, rows: make([]Row, len(rows)), timestamp: time.Now()}
	for i, r := range rows {
		r.index = i
		r.payload = append([]byte(nil), r.payload...)
		f.rows[i] = r
	}
	return f
}

// Seq returns the store's sequence number for this frame (1-based)
func (f *Frame) Seq() uint64 {
	return f.seq
}

// PayloadSize returns the payload size byte read from the wire
func (f *Frame) PayloadSize() uint8 {
	return f.payloadSize
}

// Checksum returns the frame's trailing checksum byte
func (f *Frame) Checksum() uint8 {
	return f.checksum
}

// Rows returns the frame's rows in wire order
func (f *Frame) Rows() []Row {
	return f.rows
}

// Timestamp returns the time the frame was accepted
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// RawSamples returns every raw sample in the frame
func (f *Frame) RawSamples() []int16 {
	var samples []int16
	for _, r := range f.rows {
		if s, ok := r.RawSample(); ok {
			samples = append(samples, s)
		}
	}
	return samples
}

// HeartRate returns the last heart rate value in the frame
func (f *Frame) HeartRate() (uint8, bool) {
	return f.lastValue(CodeHeartRate)
}

// SignalQuality returns the last signal quality value in the frame
func (f *Frame) SignalQuality() (uint8, bool) {
	return f.lastValue(CodeSignalQuality)
}

func (f *Frame) lastValue(code uint8) (uint8, bool) {
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].code == code {
			return f.rows[i].Value()
		}
	}
	return 0, false
}
