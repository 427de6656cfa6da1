// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"fmt"
)

// FrameBuilder assembles the wire form of a single frame.
// Errors are sticky and reported by Bytes.
type FrameBuilder struct {
	payload []byte
	err     error
}

// NewFrameBuilder creates an empty frame builder
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{payload: make([]byte, 0, 16)}
}

// Escape appends an escape byte ahead of the next row code
func (b *FrameBuilder) Escape() *FrameBuilder {
	b.payload = append(b.payload, ExCodeByte)
	return b
}

// SignalQuality appends a signal quality row
func (b *FrameBuilder) SignalQuality(quality uint8) *FrameBuilder {
	b.payload = append(b.payload, CodeSignalQuality, quality)
	return b
}

// HeartRate appends a heart rate row
func (b *FrameBuilder) HeartRate(bpm uint8) *FrameBuilder {
	b.payload = append(b.payload, CodeHeartRate, bpm)
	return b
}

// RawSample appends a raw sample row
func (b *FrameBuilder) RawSample(sample int16) *FrameBuilder {
	b.payload = append(b.payload, CodeRawData, RawSampleSize, byte(uint16(sample)>>8), byte(sample))
	return b
}

// Row appends an arbitrary row, including its escape prefix
func (b *FrameBuilder) Row(r Row) *FrameBuilder {
	if b.err != nil {
		return b
	}
	for i := uint8(0); i < r.level; i++ {
		b.Escape()
	}
	switch r.code {
	case CodeSignalQuality, CodeHeartRate:
		if len(r.payload) != ValueRowSize {
			b.err = fmt.Errorf("row code 0x%02X needs %d payload byte, got %d", r.code, ValueRowSize, len(r.payload))
			return b
		}
		b.payload = append(b.payload, r.code, r.payload[0])
	case CodeRawData:
		if len(r.payload) > MaxPayloadSize {
			b.err = fmt.Errorf("raw row too large: %d bytes (max %d)", len(r.payload), MaxPayloadSize)
			return b
		}
		b.payload = append(b.payload, r.code, uint8(len(r.payload)))
		b.payload = append(b.payload, r.payload...)
	default:
		b.err = fmt.Errorf("unknown row code 0x%02X", r.code)
	}
	return b
}

// Payload returns the frame payload built so far (without framing)
func (b *FrameBuilder) Payload() []byte {
	return b.payload
}

// Bytes returns the complete frame: sync pair, payload size, payload and
// checksum
func (b *FrameBuilder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(b.payload), MaxPayloadSize)
	}
	if len(b.payload) == SyncByte {
		return nil, fmt.Errorf("payload size %d collides with the sync byte", len(b.payload))
	}

	frame := make([]byte, 0, len(b.payload)+4)
	frame = append(frame, SyncByte, SyncByte, uint8(len(b.payload)))
	frame = append(frame, b.payload...)
	frame = append(frame, Checksum(b.payload))
	return frame, nil
}

// EncodeFrame creates the wire form of a frame carrying the given rows
func EncodeFrame(rows []Row) ([]byte, error) {
	b := NewFrameBuilder()
	for _, r := range rows {
		b.Row(r)
	}
	return b.Bytes()
}
