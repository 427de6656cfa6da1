// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

// RowSink receives rows as the decoder produces them.
//
// AcceptRow runs on the decoder's calling path. It must not block and
// should not allocate. The row payload is only valid for the duration of
// the call.
type RowSink interface {
	AcceptRow(r Row)
}

// RowSinkFunc adapts a function to the RowSink interface
type RowSinkFunc func(r Row)

// AcceptRow calls f(r)
func (f RowSinkFunc) AcceptRow(r Row) {
	f(r)
}

// FrameSink is implemented by sinks that need to know frame boundaries.
//
// A plain RowSink sees rows before the checksum is known. A FrameSink is
// told when a frame starts, and whether it was accepted (CommitFrame) or
// dropped (DiscardFrame), so it can hold rows back until they are valid.
// CommitFrame returns false if the sink could not keep the frame.
type FrameSink interface {
	RowSink
	BeginFrame(payloadSize uint8)
	CommitFrame(checksum uint8) bool
	DiscardFrame()
}
