// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish forwards accepted frames to message brokers.
// Frames are sent in the CBOR record form of bmd101.MarshalFrame.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

// Publisher sends accepted frames somewhere
type Publisher interface {
	Name() string
	Publish(ctx context.Context, f *bmd101.Frame) error
	Close() error
}

// ResultFunc is told about every publish attempt
type ResultFunc func(name string, err error)

// Multi fans a frame out to several publishers
type Multi struct {
	publishers []Publisher
	onResult   ResultFunc
}

// NewMulti creates a fan-out publisher. onResult may be nil.
func NewMulti(onResult ResultFunc, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, onResult: onResult}
}

// Name implements Publisher
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of publishers
func (m *Multi) Len() int {
	return len(m.publishers)
}

// Publish sends f to every publisher. A failing publisher does not stop
// the others; all errors are returned joined.
func (m *Multi) Publish(ctx context.Context, f *bmd101.Frame) error {
	var errs []error
	for _, p := range m.publishers {
		err := p.Publish(ctx, f)
		if m.onResult != nil {
			m.onResult(p.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
