// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/config"
)

// sessionFunc uses an open connection until it fails or ctx is done
type sessionFunc func(ctx context.Context, conn Connection, connInfo string) error

// session handles the connection lifecycle and reconnection
type session struct {
	cfg        *config.Config
	open       func(*config.Config) (Connection, string, error)
	reconnect  bool
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger

	// onLost and onConnected are optional status hooks
	onLost      func(err error)
	onConnected func(connInfo string)
}

func newSession(cfg *config.Config, reconnect bool) *session {
	return &session{
		cfg:        cfg,
		open:       OpenConnection,
		reconnect:  reconnect,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		logger:     logger,
	}
}

// run opens the connection and calls fn. With reconnect enabled a lost or
// unopenable connection is retried with exponential backoff until ctx is
// done; otherwise the first error is returned.
func (s *session) run(ctx context.Context, fn sessionFunc) error {
	backoff := s.minBackoff
	first := true

	for {
		conn, connInfo, err := s.open(s.cfg)
		if err != nil {
			if !s.reconnect || first {
				// A bad port name or URL will not fix itself
				return err
			}
			s.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			first = false
			backoff = s.minBackoff
			if s.onConnected != nil {
				s.onConnected(connInfo)
			}
			s.logger.Info("connected", zap.String("connection", connInfo))

			err = s.serve(ctx, conn, connInfo, fn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !s.reconnect {
				return err
			}
			if s.onLost != nil {
				s.onLost(err)
			}
			s.logger.Warn("connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// serve runs fn on conn and closes conn when fn returns or ctx is done,
// which also unblocks a pending read
func (s *session) serve(ctx context.Context, conn Connection, connInfo string, fn sessionFunc) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	return fn(connCtx, conn, connInfo)
}
