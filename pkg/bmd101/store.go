// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

type rowRef struct {
	code   uint8
	level  uint8
	offset int
	size   int
}

// frameBuffer is a fixed-capacity arena holding one frame's rows
type frameBuffer struct {
	data        []byte
	rows        []rowRef
	used        int
	count       int
	overflow    bool
	payloadSize uint8
	checksum    uint8
	seq         uint64
	timestamp   time.Time
}

func newFrameBuffer(dataCap, rowCap int) *frameBuffer {
	return &frameBuffer{
		data: make([]byte, dataCap),
		rows: make([]rowRef, rowCap),
	}
}

func (b *frameBuffer) reset() {
	b.used = 0
	b.count = 0
	b.overflow = false
	b.payloadSize = 0
	b.checksum = 0
}

func (b *frameBuffer) append(r Row) {
	if b.overflow {
		return
	}
	if b.count >= len(b.rows) || b.used+len(r.payload) > len(b.data) {
		b.overflow = true
		return
	}
	n := copy(b.data[b.used:], r.payload)
	b.rows[b.count] = rowRef{code: r.code, level: r.level, offset: b.used, size: n}
	b.used += n
	b.count++
}

// snapshot copies the buffer into a consumer-owned frame
func (b *frameBuffer) snapshot() *Frame {
	data := make([]byte, b.used)
	copy(data, b.data[:b.used])

	f := &Frame{
		seq:         b.seq,
		payloadSize: b.payloadSize,
		checksum:    b.checksum,
		rows:        make([]Row, b.count),
		timestamp:   b.timestamp,
	}
	for i := 0; i < b.count; i++ {
		ref := b.rows[i]
		f.rows[i] = Row{
			code:    ref.code,
			level:   ref.level,
			index:   i,
			payload: data[ref.offset : ref.offset+ref.size : ref.offset+ref.size],
		}
	}
	return f
}

// Store buffers the rows of the frame being decoded and publishes them
// only once the frame's checksum has been verified.
//
// The decoder side (AcceptRow, BeginFrame, CommitFrame, DiscardFrame)
// writes into a staging buffer allocated up front. Committing swaps the
// staging and published buffers under a mutex held for a pointer swap, so
// the feeder never waits on the consumer and a consumer never sees a
// partially written frame. The consumer side (ResponseReady, Drain,
// TakeFrame) may run on another goroutine.
type Store struct {
	staging *frameBuffer // feeder only

	mu        sync.Mutex
	published *frameBuffer
	pending   bool // published holds a frame not yet drained
	seq       uint64

	ready    atomic.Bool
	overruns atomic.Uint64
	dropped  atomic.Uint64
}

// NewStore creates a store sized for the largest possible frame
func NewStore() *Store {
	return NewStoreWithCapacity(MaxPayloadSize, MaxRows)
}

// NewStoreWithCapacity creates a store holding at most dataCap payload
// bytes and rowCap rows per frame. Frames that do not fit are dropped.
func NewStoreWithCapacity(dataCap, rowCap int) *Store {
	return &Store{
		staging:   newFrameBuffer(dataCap, rowCap),
		published: newFrameBuffer(dataCap, rowCap),
	}
}

// BeginFrame implements FrameSink
func (s *Store) BeginFrame(payloadSize uint8) {
	s.staging.reset()
	s.staging.payloadSize = payloadSize
}

// AcceptRow implements RowSink
func (s *Store) AcceptRow(r Row) {
	s.staging.append(r)
}

// CommitFrame implements FrameSink. The staged rows become visible to the
// consumer and the ready flag is raised.
func (s *Store) CommitFrame(checksum uint8) bool {
	if s.staging.overflow {
		s.staging.reset()
		s.dropped.Add(1)
		return false
	}
	s.staging.checksum = checksum
	s.staging.timestamp = time.Now()

	s.mu.Lock()
	s.seq++
	s.staging.seq = s.seq
	s.staging, s.published = s.published, s.staging
	if s.pending {
		s.overruns.Add(1)
	}
	s.pending = true
	s.ready.Store(true)
	s.mu.Unlock()

	s.staging.reset()
	return true
}

// DiscardFrame implements FrameSink. Staged rows are dropped.
func (s *Store) DiscardFrame() {
	s.staging.reset()
}

// ResponseReady reports whether a frame was accepted since the last call.
// The flag is cleared on read.
func (s *Store) ResponseReady() bool {
	return s.ready.CompareAndSwap(true, false)
}

// TakeFrame returns the last accepted frame and marks it drained.
// It returns false if there is no undrained frame.
func (s *Store) TakeFrame() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return nil, false
	}
	f := s.published.snapshot()
	s.pending = false
	s.ready.Store(false)
	return f, true
}

// Drain returns the rows of the last accepted frame. The frame is taken
// when iteration starts; iterating again without a new frame yields
// nothing.
func (s *Store) Drain() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		f, ok := s.TakeFrame()
		if !ok {
			return
		}
		for _, r := range f.rows {
			if !yield(r) {
				return
			}
		}
	}
}

// Overruns returns how many accepted frames were replaced before being
// drained
func (s *Store) Overruns() uint64 {
	return s.overruns.Load()
}

// Dropped returns how many accepted frames did not fit the store
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}
