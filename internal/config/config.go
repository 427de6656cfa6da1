// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads cardiostat settings from defaults, an optional
// config file, CARDIOSTAT_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "CARDIOSTAT"

// SerialConfig selects the serial port the sensor is attached to
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// WebSocketConfig selects a websocket serial bridge
type WebSocketConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
}

// LumberjackConfig configures the rolling log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures the diagnostic logger
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
	// FaultsPerSecond limits how many decoder fault lines are logged
	FaultsPerSecond float64 `mapstructure:"faultsPerSecond"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// MQTTConfig configures the MQTT frame publisher
type MQTTConfig struct {
	URL     string        `mapstructure:"url"`
	Topic   string        `mapstructure:"topic"`
	QoS     int           `mapstructure:"qos"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the Redis stream publisher
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"maxLen"`
}

// PublishConfig groups the publishers
type PublishConfig struct {
	MQTT  MQTTConfig  `mapstructure:"mqtt"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RecordConfig configures frame recordings
type RecordConfig struct {
	Dir string `mapstructure:"dir"`
}

// Config is the top level configuration
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Record    RecordConfig    `mapstructure:"record"`
}

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	"port":          "serial.port",
	"baud":          "serial.baud",
	"url":           "websocket.url",
	"username":      "websocket.username",
	"no-ssl-verify": "websocket.noSSLVerify",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file.filename",
	"metrics":       "metrics.enable",
	"metrics-addr":  "metrics.addr",
	"mqtt-url":      "publish.mqtt.url",
	"mqtt-topic":    "publish.mqtt.topic",
	"redis-addr":    "publish.redis.addr",
	"redis-stream":  "publish.redis.stream",
	"record-dir":    "record.dir",
}

// Load reads the configuration. If path is empty, cardiostat.{yaml,toml,json}
// is looked up in the working directory and ~/.config/cardiostat; a missing
// file is not an error. Flags that were set on the command line win over
// everything else.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cardiostat")
		v.SetConfigName("cardiostat")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 57600)

	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.username", "")
	v.SetDefault("websocket.noSSLVerify", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)
	v.SetDefault("logging.faultsPerSecond", 5)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9101")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("publish.mqtt.url", "")
	v.SetDefault("publish.mqtt.topic", "cardiostat/frames")
	v.SetDefault("publish.mqtt.qos", 0)
	v.SetDefault("publish.mqtt.timeout", "5s")

	v.SetDefault("publish.redis.addr", "")
	v.SetDefault("publish.redis.password", "")
	v.SetDefault("publish.redis.db", 0)
	v.SetDefault("publish.redis.stream", "cardiostat:frames")
	v.SetDefault("publish.redis.maxLen", 100000)

	v.SetDefault("record.dir", ".")
}
