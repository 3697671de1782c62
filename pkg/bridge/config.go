// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

// Package bridge connects a Q-code serial session to an MQTT broker.
//
// The session polls the machine's query catalog on an interval,
// correlates responses against the requests that caused them and
// republishes every outcome, spontaneous machine messages and protocol
// diagnostics included, as JSON on topic buckets under a configurable
// prefix.
package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

// Duration wraps time.Duration so TOML values like "5s" or "500ms"
// decode directly.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the full bridge runtime configuration.
type Config struct {
	Serial  SerialConfig
	MQTT    MQTTConfig
	Bridge  BridgeConfig
	Metrics MetricsConfig
	Journal JournalConfig
	Log     LogConfig
}

// SerialConfig selects the machine-side port.
type SerialConfig struct {
	Port string
	Baud int
}

// MQTTConfig selects the broker-side connection.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            int
	ConnectTimeout Duration
	PublishTimeout Duration
}

// BridgeConfig tunes the polling and correlation behavior.
type BridgeConfig struct {
	Codes          []string
	RequestTimeout Duration
	CodeGap        Duration
	RoundInterval  Duration
	SweepInterval  Duration
	OverlapPolicy  string // "reject" or "replace"
}

// MetricsConfig controls the prometheus endpoint. An empty Addr
// disables the listener.
type MetricsConfig struct {
	Addr string
}

// JournalConfig controls the publish audit journal. An empty Path
// disables journaling.
type JournalConfig struct {
	Path string
}

// LogConfig selects the session log level.
type LogConfig struct {
	Level string
}

// DefaultConfig returns the runtime defaults for a stock rig: local
// broker, 38400 baud, the full catalog polled every thirty seconds with
// a two second gap between codes.
func DefaultConfig() Config {
	return Config{
		Serial: SerialConfig{
			Baud: 38400,
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "qbridge",
			TopicPrefix:    "serial/data",
			QoS:            1,
			ConnectTimeout: Duration{10 * time.Second},
			PublishTimeout: Duration{5 * time.Second},
		},
		Bridge: BridgeConfig{
			Codes:          qcode.CatalogCodes(),
			RequestTimeout: Duration{5 * time.Second},
			CodeGap:        Duration{2 * time.Second},
			RoundInterval:  Duration{30 * time.Second},
			SweepInterval:  Duration{500 * time.Millisecond},
			OverlapPolicy:  "reject",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// fileConfig maps the TOML keys onto Config fields.
type fileConfig struct {
	Serial struct {
		Port string `toml:"port"`
		Baud int    `toml:"baud"`
	} `toml:"serial"`
	MQTT struct {
		Broker         string   `toml:"broker"`
		ClientID       string   `toml:"client_id"`
		Username       string   `toml:"username"`
		Password       string   `toml:"password"`
		TopicPrefix    string   `toml:"topic_prefix"`
		QoS            int      `toml:"qos"`
		ConnectTimeout Duration `toml:"connect_timeout"`
		PublishTimeout Duration `toml:"publish_timeout"`
	} `toml:"mqtt"`
	Bridge struct {
		Codes          []string `toml:"codes"`
		RequestTimeout Duration `toml:"request_timeout"`
		CodeGap        Duration `toml:"code_gap"`
		RoundInterval  Duration `toml:"round_interval"`
		SweepInterval  Duration `toml:"sweep_interval"`
		OverlapPolicy  string   `toml:"overlap_policy"`
	} `toml:"bridge"`
	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
	Journal struct {
		Path string `toml:"path"`
	} `toml:"journal"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// LoadConfig reads a TOML file and overlays it onto the defaults. Only
// keys present in the file override; everything else keeps its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load bridge config: %w", err)
	}

	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.Baud = raw.Serial.Baud
	}
	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = raw.MQTT.ClientID
	}
	if meta.IsDefined("mqtt", "username") {
		cfg.MQTT.Username = raw.MQTT.Username
	}
	if meta.IsDefined("mqtt", "password") {
		cfg.MQTT.Password = raw.MQTT.Password
	}
	if meta.IsDefined("mqtt", "topic_prefix") {
		cfg.MQTT.TopicPrefix = strings.Trim(raw.MQTT.TopicPrefix, "/")
	}
	if meta.IsDefined("mqtt", "qos") {
		cfg.MQTT.QoS = raw.MQTT.QoS
	}
	if meta.IsDefined("mqtt", "connect_timeout") {
		cfg.MQTT.ConnectTimeout = raw.MQTT.ConnectTimeout
	}
	if meta.IsDefined("mqtt", "publish_timeout") {
		cfg.MQTT.PublishTimeout = raw.MQTT.PublishTimeout
	}
	if meta.IsDefined("bridge", "codes") {
		cfg.Bridge.Codes = raw.Bridge.Codes
	}
	if meta.IsDefined("bridge", "request_timeout") {
		cfg.Bridge.RequestTimeout = raw.Bridge.RequestTimeout
	}
	if meta.IsDefined("bridge", "code_gap") {
		cfg.Bridge.CodeGap = raw.Bridge.CodeGap
	}
	if meta.IsDefined("bridge", "round_interval") {
		cfg.Bridge.RoundInterval = raw.Bridge.RoundInterval
	}
	if meta.IsDefined("bridge", "sweep_interval") {
		cfg.Bridge.SweepInterval = raw.Bridge.SweepInterval
	}
	if meta.IsDefined("bridge", "overlap_policy") {
		cfg.Bridge.OverlapPolicy = strings.ToLower(strings.TrimSpace(raw.Bridge.OverlapPolicy))
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = raw.Metrics.Addr
	}
	if meta.IsDefined("journal", "path") {
		cfg.Journal.Path = raw.Journal.Path
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface mid-session.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("bridge config: mqtt broker must not be empty")
	}
	if c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("bridge config: mqtt topic_prefix must not be empty")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("bridge config: mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if len(c.Bridge.Codes) == 0 {
		return fmt.Errorf("bridge config: at least one query code is required")
	}
	for _, code := range c.Bridge.Codes {
		if !qcode.IsQueryCode(code) {
			return fmt.Errorf("bridge config: %q is not a valid query code", code)
		}
	}
	if c.Bridge.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("bridge config: request_timeout must be positive")
	}
	if c.Bridge.CodeGap.Duration < 0 {
		return fmt.Errorf("bridge config: code_gap must not be negative")
	}
	if c.Bridge.RoundInterval.Duration < 0 {
		return fmt.Errorf("bridge config: round_interval must not be negative")
	}
	if c.Bridge.SweepInterval.Duration <= 0 {
		return fmt.Errorf("bridge config: sweep_interval must be positive")
	}
	switch c.Bridge.OverlapPolicy {
	case "reject", "replace":
	default:
		return fmt.Errorf("bridge config: unsupported overlap_policy %q, expected reject or replace", c.Bridge.OverlapPolicy)
	}
	return nil
}

// Policy maps the configured overlap policy onto the correlator enum.
func (c BridgeConfig) Policy() qcode.OverlapPolicy {
	if c.OverlapPolicy == "replace" {
		return qcode.OverlapReplace
	}
	return qcode.OverlapReject
}
