// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/config"
)

// scriptedOpen returns the results in order, one per call
type scriptedOpen struct {
	results []error
	calls   int
	conns   []*fakeConn
}

func (s *scriptedOpen) open(*config.Config) (Connection, string, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return nil, "", s.results[i]
	}
	c := newFakeConn(nil)
	s.conns = append(s.conns, c)
	return c, "fake", nil
}

func testSession(open *scriptedOpen, reconnect bool) *session {
	return &session{
		cfg:        &config.Config{},
		open:       open.open,
		reconnect:  reconnect,
		minBackoff: time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
		logger:     zap.NewNop(),
	}
}

func TestSession_FirstOpenFails(t *testing.T) {
	open := &scriptedOpen{results: []error{errors.New("no such port")}}
	s := testSession(open, true)

	err := s.run(context.Background(), func(context.Context, Connection, string) error {
		t.Fatal("session function must not run")
		return nil
	})
	require.ErrorContains(t, err, "no such port")
	require.Equal(t, 1, open.calls)
}

func TestSession_NoReconnect(t *testing.T) {
	open := &scriptedOpen{}
	s := testSession(open, false)

	lost := errors.New("lost")
	err := s.run(context.Background(), func(context.Context, Connection, string) error {
		return lost
	})
	require.ErrorIs(t, err, lost)
	require.Equal(t, 1, open.calls)
	require.Eventually(t, open.conns[0].closed.Load, time.Second, time.Millisecond)
}

func TestSession_Reconnects(t *testing.T) {
	open := &scriptedOpen{results: []error{nil, errors.New("still down"), errors.New("still down"), nil}}
	s := testSession(open, true)

	var lost, connected int
	s.onLost = func(error) { lost++ }
	s.onConnected = func(string) { connected++ }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := 0
	err := s.run(ctx, func(ctx context.Context, conn Connection, info string) error {
		require.Equal(t, "fake", info)
		sessions++
		if sessions == 1 {
			return errors.New("unplugged")
		}
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 4, open.calls)
	require.Equal(t, 2, sessions)
	require.Equal(t, 1, lost)
	require.Equal(t, 2, connected)
	for _, c := range open.conns {
		require.Eventually(t, c.closed.Load, time.Second, time.Millisecond)
	}
}

func TestSession_CancelDuringBackoff(t *testing.T) {
	open := &scriptedOpen{}
	s := testSession(open, true)
	s.minBackoff = time.Hour
	s.maxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	s.onLost = func(error) { cancel() }

	err := s.run(ctx, func(context.Context, Connection, string) error {
		return errors.New("unplugged")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, open.calls)
}
