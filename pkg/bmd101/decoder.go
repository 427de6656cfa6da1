// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

// DecoderStats counts what the decoder has seen since it was created
type DecoderStats struct {
	Bytes          uint64 // bytes fed
	SkippedBytes   uint64 // bytes discarded while hunting for sync
	SyncLosses     uint64 // single sync byte followed by something else
	FramesAccepted uint64
	ChecksumErrors uint64
	UnknownCodes   uint64
	Overflows      uint64 // accepted frames the sink could not keep
	Rows           uint64 // rows handed to the sink
}

// Decoder implements the BMD101 frame decoder state machine.
//
// Feed is called once per received byte. It never blocks, never allocates
// and never fails: malformed input is dropped and the decoder goes back to
// hunting for the next sync pair. A Decoder is not safe for concurrent use;
// feed it from a single goroutine.
type Decoder struct {
	sink   RowSink
	frames FrameSink

	state       decodeState
	payloadSize uint8
	consumed    int // payload bytes consumed, escape and header bytes included
	checksum    uint8
	code        uint8
	level       uint8 // escape bytes seen before the current code
	rowSize     uint8
	rowOffset   int
	rowCount    int
	row         [MaxPayloadSize]byte

	stats DecoderStats
}

// NewDecoder creates a decoder delivering rows to sink.
// If sink also implements FrameSink it is told about frame boundaries.
// A nil sink is allowed; rows are then only counted.
func NewDecoder(sink RowSink) *Decoder {
	d := &Decoder{sink: sink}
	if fs, ok := sink.(FrameSink); ok {
		d.frames = fs
	}
	return d
}

// Reset drops any frame in progress and resumes the sync search
func (d *Decoder) Reset() {
	if d.inFrame() && d.frames != nil {
		d.frames.DiscardFrame()
	}
	d.reset()
}

// Stats returns a snapshot of the decoder counters
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// InFrame returns true while a frame body is being decoded
func (d *Decoder) InFrame() bool {
	return d.inFrame()
}

// Feed processes a single byte through the decoder state machine
func (d *Decoder) Feed(b byte) Event {
	d.stats.Bytes++

	switch d.state {
	case stateSync1:
		if b == SyncByte {
			d.state = stateSync2
		} else {
			d.stats.SkippedBytes++
		}
		return EventNone

	case stateSync2:
		if b != SyncByte {
			// The byte is not reconsidered as the first sync byte
			d.stats.SkippedBytes += 2
			d.stats.SyncLosses++
			d.state = stateSync1
			return EventSyncLost
		}
		d.state = stateLength
		return EventNone

	case stateLength:
		if b == SyncByte {
			// Extra sync byte, the pair ending here is the real one
			d.stats.SkippedBytes++
			return EventNone
		}
		d.beginFrame(b)
		return EventNone

	case stateRowCode:
		d.accumulate(b)
		if b == ExCodeByte {
			d.level++
			return d.advance(EventNone)
		}
		d.code = b
		d.rowOffset = 0
		switch b {
		case CodeSignalQuality, CodeHeartRate:
			d.rowSize = ValueRowSize
			d.state = stateRowPayload
		case CodeRawData:
			d.state = stateRowLength
		default:
			d.stats.UnknownCodes++
			d.Reset()
			return EventUnknownCode
		}
		return d.advance(EventNone)

	case stateRowLength:
		d.accumulate(b)
		d.rowSize = b
		if b == 0 {
			return d.advance(d.emitRow())
		}
		d.state = stateRowPayload
		return d.advance(EventNone)

	case stateRowPayload:
		d.accumulate(b)
		d.row[d.rowOffset] = b
		d.rowOffset++
		if d.rowOffset == int(d.rowSize) {
			return d.advance(d.emitRow())
		}
		return d.advance(EventNone)

	case stateChecksum:
		return d.finishFrame(b)

	default:
		d.Reset()
		return EventNone
	}
}

func (d *Decoder) inFrame() bool {
	return d.state >= stateRowCode
}

// beginFrame starts a frame once the payload size is known
func (d *Decoder) beginFrame(size uint8) {
	d.payloadSize = size
	d.consumed = 0
	d.checksum = 0
	d.rowCount = 0
	d.level = 0
	if d.frames != nil {
		d.frames.BeginFrame(size)
	}
	if size == 0 {
		d.state = stateChecksum
	} else {
		d.state = stateRowCode
	}
}

// accumulate adds a payload byte to the running checksum
func (d *Decoder) accumulate(b byte) {
	d.checksum += b
	d.consumed++
}

// advance switches to the checksum once the declared payload is consumed
func (d *Decoder) advance(ev Event) Event {
	if d.consumed >= int(d.payloadSize) {
		d.state = stateChecksum
	}
	return ev
}

func (d *Decoder) emitRow() Event {
	if d.sink != nil {
		d.sink.AcceptRow(Row{
			code:    d.code,
			level:   d.level,
			index:   d.rowCount,
			payload: d.row[:d.rowSize:d.rowSize],
		})
	}
	d.stats.Rows++
	d.rowCount++
	d.level = 0
	d.state = stateRowCode
	return EventRow
}

func (d *Decoder) finishFrame(b byte) Event {
	ev := EventChecksumMismatch
	if ^d.checksum == b {
		ev = EventFrameAccepted
		if d.frames != nil && !d.frames.CommitFrame(b) {
			ev = EventStoreOverflow
		}
	} else if d.frames != nil {
		d.frames.DiscardFrame()
	}

	switch ev {
	case EventFrameAccepted:
		d.stats.FramesAccepted++
	case EventStoreOverflow:
		d.stats.Overflows++
	default:
		d.stats.ChecksumErrors++
	}

	d.reset()
	return ev
}

func (d *Decoder) reset() {
	d.state = stateSync1
	d.payloadSize = 0
	d.consumed = 0
	d.checksum = 0
	d.code = 0
	d.level = 0
	d.rowSize = 0
	d.rowOffset = 0
	d.rowCount = 0
}
