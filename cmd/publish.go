// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/config"
	"github.com/Thermoquad/cardiostat/internal/logging"
	"github.com/Thermoquad/cardiostat/internal/publish"
	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Forward decoded frames to MQTT and/or a Redis stream",
	Long: `Decode frames from the sensor and publish every accepted frame as a
CBOR document.

MQTT:  --mqtt-url tcp://broker:1883 [--mqtt-topic cardiostat/frames]
Redis: --redis-addr localhost:6379 [--redis-stream cardiostat:frames]

Both can be enabled at once. Publishing failures are logged and counted
but never stop the stream; a lost sensor connection is reopened.

Pair with --metrics to watch publish results in Prometheus.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("mqtt-url", "", "MQTT broker URL (tcp://, ssl://, ws://)")
	publishCmd.Flags().String("mqtt-topic", "cardiostat/frames", "MQTT topic")
	publishCmd.Flags().String("redis-addr", "", "Redis address (host:port)")
	publishCmd.Flags().String("redis-stream", "cardiostat:frames", "Redis stream key")
}

// openPublishers connects every configured publisher
func openPublishers(cfg config.PublishConfig, log *zap.Logger) ([]publish.Publisher, error) {
	var pubs []publish.Publisher

	if cfg.MQTT.URL != "" {
		p, err := publish.NewMQTTPublisher(cfg.MQTT, log)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}

	if cfg.Redis.Addr != "" {
		p, err := publish.NewRedisPublisher(cfg.Redis)
		if err != nil {
			for _, open := range pubs {
				open.Close()
			}
			return nil, err
		}
		pubs = append(pubs, p)
	}

	if len(pubs) == 0 {
		return nil, fmt.Errorf("no publisher configured: set --mqtt-url or --redis-addr")
	}
	return pubs, nil
}

// publishResults returns the result hook counting every publish and
// logging failures at a bounded rate
func publishResults(throttle *logging.Throttle) publish.ResultFunc {
	return func(name string, err error) {
		if decoderMetrics != nil {
			decoderMetrics.ObservePublish(name, err)
		}
		if err == nil {
			return
		}
		if ok, suppressed := throttle.Allow(); ok {
			logger.Warn("publish failed",
				zap.String("sink", name),
				zap.Error(err),
				zap.Int("suppressed", suppressed),
			)
		}
	}
}

func runPublish(cmd *cobra.Command, args []string) error {
	pubs, err := openPublishers(appConfig.Publish, logger)
	if err != nil {
		return err
	}

	throttle := logging.NewThrottle(appConfig.Logging.FaultsPerSecond, 10)
	multi := publish.NewMulti(publishResults(throttle), pubs...)
	defer multi.Close()

	for _, p := range pubs {
		logger.Info("publisher ready", zap.String("sink", p.Name()))
	}

	ctx, cancel := signalContext()
	defer cancel()

	obs := newStreamObserver()
	var published uint64

	sess := newSession(appConfig, true)
	err = sess.run(ctx, func(ctx context.Context, conn Connection, _ string) error {
		obs.resync()
		pump := stream.New(conn, obs.options()...)
		return pump.Run(ctx, func(ctx context.Context, f *bmd101.Frame) error {
			obs.frame(f)
			// Failures are reported through the result hook
			if multi.Publish(ctx, f) == nil {
				published++
			}
			return nil
		})
	})

	logger.Info("publish stopped", zap.Uint64("frames", published))
	if isCancel(err) {
		return nil
	}
	return err
}
