// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bmd101 decodes the binary telemetry stream of the BMD101 ECG
// sensor module (ECG 4 click).
//
// The sensor emits frames of the form
//
//	[0xAA][0xAA][payload size] rows... [checksum]
//
// where each row is an optional run of 0x55 escape bytes, a code byte and
// either a single value byte (signal quality, heart rate) or a length byte
// followed by that many payload bytes (raw sample). The checksum is the
// one's complement of the 8-bit sum of every payload byte.
//
// Decoder consumes the stream one byte at a time and hands rows to a
// RowSink. Store is the RowSink used by the tools in this repository: it
// only exposes a frame's rows after the checksum has been verified.
package bmd101

// Protocol framing bytes
const (
	SyncByte   = 0xAA
	ExCodeByte = 0x55
)

// Row codes
const (
	CodeSignalQuality = 0x02
	CodeHeartRate     = 0x03
	CodeRawData       = 0x80
)

// Size limits
const (
	MaxPayloadSize = 255
	// Every row occupies at least two payload bytes (code plus value or
	// code plus length), so a frame can never carry more rows than this.
	MaxRows = MaxPayloadSize/2 + 1

	RawSampleSize = 2
	ValueRowSize  = 1
)

// Value ranges reported by the sensor
const (
	SignalQualitySensorOff = 0
	SignalQualitySensorOn  = 200
	MaxHeartRate           = 250
)

// Decoder states (internal)
type decodeState int

const (
	stateSync1 decodeState = iota
	stateSync2
	stateLength
	stateRowCode
	stateRowLength
	stateRowPayload
	stateChecksum
)
