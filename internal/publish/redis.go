// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Thermoquad/cardiostat/internal/config"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

// streamClient is the part of redis.Client the publisher uses
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisPublisher appends frames to a Redis stream
type RedisPublisher struct {
	client streamClient
	stream string
	maxLen int64
}

// NewRedisPublisher connects to cfg.Addr and checks the connection
func NewRedisPublisher(cfg config.RedisConfig) (*RedisPublisher, error) {
	if cfg.Stream == "" {
		return nil, fmt.Errorf("redis stream name is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisPublisher(rdb, cfg.Stream, cfg.MaxLen), nil
}

func newRedisPublisher(client streamClient, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Name implements Publisher
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Publish implements Publisher. Each frame becomes one stream entry with
// the sequence number, the acceptance time and the CBOR frame record.
func (p *RedisPublisher) Publish(ctx context.Context, f *bmd101.Frame) error {
	data, err := bmd101.MarshalFrame(f)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: map[string]interface{}{
			"seq":   f.Seq(),
			"ts":    f.Timestamp().UnixMilli(),
			"frame": data,
		},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd frame %d: %w", f.Seq(), err)
	}
	return nil
}

// Close implements Publisher
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
