// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stream runs a BMD101 decoder over a byte source.
//
// A reader goroutine feeds every received byte to the decoder, which
// writes accepted frames into a bmd101.Store. The caller's goroutine waits
// for the store's ready flag and hands each frame to a handler. Fault
// events are forwarded to the caller's goroutine too, so handlers and
// fault hooks never run concurrently.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

const (
	readBufferSize  = 128
	faultQueueDepth = 256
)

// Handler receives every accepted frame. Returning an error stops Run.
type Handler func(ctx context.Context, f *bmd101.Frame) error

// Option configures a Pump
type Option func(*Pump)

// WithFaultHook calls fn for every decoder fault, on the Run goroutine
func WithFaultHook(fn func(bmd101.Event)) Option {
	return func(p *Pump) { p.onFault = fn }
}

// WithByteHook calls fn with the size of every read, on the reader goroutine
func WithByteHook(fn func(n int)) Option {
	return func(p *Pump) { p.onBytes = fn }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pump) { p.logger = logger }
}

// WithStore replaces the default store
func WithStore(store *bmd101.Store) Option {
	return func(p *Pump) { p.store = store }
}

// Pump connects a byte source to a decoder and a frame handler
type Pump struct {
	src     io.Reader
	store   *bmd101.Store
	decoder *bmd101.Decoder
	onFault func(bmd101.Event)
	onBytes func(int)
	logger  *zap.Logger

	lostFaults atomic.Uint64
	done       atomic.Bool
}

// New creates a pump reading from src
func New(src io.Reader, opts ...Option) *Pump {
	p := &Pump{src: src, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = bmd101.NewStore()
	}
	p.decoder = bmd101.NewDecoder(p.store)
	return p
}

// Store returns the store frames are published to
func (p *Pump) Store() *bmd101.Store {
	return p.store
}

// Stats returns the decoder counters once the reader goroutine has
// stopped. Before that it returns zero counters and false.
func (p *Pump) Stats() (bmd101.DecoderStats, bool) {
	if !p.done.Load() {
		return bmd101.DecoderStats{}, false
	}
	return p.decoder.Stats(), true
}

// LostFaults returns how many fault events were not delivered to the
// fault hook because it fell behind
func (p *Pump) LostFaults() uint64 {
	return p.lostFaults.Load()
}

// Run reads until the source ends, ctx is cancelled or the handler fails.
// The end of the source is not an error. On cancellation Run returns
// ctx.Err() without waiting for a blocked read; close the source to stop
// the reader goroutine.
func (p *Pump) Run(ctx context.Context, handle Handler) error {
	ready := make(chan struct{}, 1)
	faults := make(chan bmd101.Event, faultQueueDepth)
	readErr := make(chan error, 1)

	go p.feed(ready, faults, readErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-faults:
			if p.onFault != nil {
				p.onFault(ev)
			}

		case <-ready:
			if err := p.deliver(ctx, handle); err != nil {
				return err
			}

		case err := <-readErr:
			// Flush whatever the reader produced before it stopped
			p.flushFaults(faults)
			if derr := p.deliver(ctx, handle); derr != nil {
				return derr
			}
			if err != nil {
				return err
			}
			return nil
		}
	}
}

func (p *Pump) feed(ready chan<- struct{}, faults chan<- bmd101.Event, readErr chan<- error) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.src.Read(buf)
		if n > 0 && p.onBytes != nil {
			p.onBytes(n)
		}
		for _, b := range buf[:n] {
			ev := p.decoder.Feed(b)
			switch {
			case ev == bmd101.EventFrameAccepted:
				select {
				case ready <- struct{}{}:
				default:
				}
			case ev.IsFault():
				select {
				case faults <- ev:
				default:
					p.lostFaults.Add(1)
				}
			}
		}
		if err != nil {
			p.done.Store(true)
			if errors.Is(err, io.EOF) {
				p.logger.Debug("source ended")
				readErr <- nil
				return
			}
			readErr <- fmt.Errorf("read error: %w", err)
			return
		}
	}
}

func (p *Pump) flushFaults(faults <-chan bmd101.Event) {
	for {
		select {
		case ev := <-faults:
			if p.onFault != nil {
				p.onFault(ev)
			}
		default:
			return
		}
	}
}

func (p *Pump) deliver(ctx context.Context, handle Handler) error {
	if !p.store.ResponseReady() {
		return nil
	}
	f, ok := p.store.TakeFrame()
	if !ok {
		return nil
	}
	return handle(ctx, f)
}
