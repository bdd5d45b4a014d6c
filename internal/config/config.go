// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"swing-service/internal/analytics"
)

// ─── Sections ───────────────────────────────────────────────────────────

type DetectorConfig struct {
	BufferCapacity    int     `yaml:"buffer_capacity"`
	Threshold         float64 `yaml:"threshold"`         // rad/s
	MinDistance       int     `yaml:"min_distance"`      // samples
	MinPeakInterval   float64 `yaml:"min_peak_interval"` // seconds
	ScanInterval      int     `yaml:"scan_interval"`     // samples
	RealtimeDetection bool    `yaml:"realtime_detection_enabled"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // empty disables SQLite
	RedisAddr  string `yaml:"redis_addr"`  // empty disables Redis
	QueueSize  int    `yaml:"queue_size"`
}

type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"`
	Topic      string `yaml:"topic"`
	ReplyTopic string `yaml:"reply_topic"`
	ClientID   string `yaml:"client_id"`
	QoS        byte   `yaml:"qos"`
}

type WebSocketConfig struct {
	EndSessionsOnDisconnect bool `yaml:"end_sessions_on_disconnect"`
}

// Config is the top-level structure of the service YAML file.
type Config struct {
	ListenAddr string          `yaml:"listen_addr"`
	Detector   DetectorConfig  `yaml:"detector"`
	Storage    StorageConfig   `yaml:"storage"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	WebSocket  WebSocketConfig `yaml:"websocket"`
}

// Default returns the configuration used for options a file leaves out.
func Default() Config {
	d := analytics.DefaultConfig()
	return Config{
		ListenAddr: ":8000",
		Detector: DetectorConfig{
			BufferCapacity:    d.BufferCapacity,
			Threshold:         d.Threshold,
			MinDistance:       d.MinDistance,
			MinPeakInterval:   d.MinPeakInterval,
			ScanInterval:      d.ScanInterval,
			RealtimeDetection: false,
		},
		Storage: StorageConfig{
			SQLitePath: "tennis_watch.db",
			QueueSize:  1024,
		},
		MQTT: MQTTConfig{
			Topic:      "swing/ingest",
			ReplyTopic: "swing/events",
			QoS:        1,
		},
		WebSocket: WebSocketConfig{
			EndSessionsOnDisconnect: true,
		},
	}
}

// Analytics converts the detector section into per-session analyzer settings.
func (d DetectorConfig) Analytics() analytics.Config {
	return analytics.Config{
		BufferCapacity:  d.BufferCapacity,
		Threshold:       d.Threshold,
		MinDistance:     d.MinDistance,
		MinPeakInterval: d.MinPeakInterval,
		ScanInterval:    d.ScanInterval,
		Detect:          d.RealtimeDetection,
	}
}

// ─── Loading ────────────────────────────────────────────────────────────

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.ListenAddr = ":" + port
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Storage.RedisAddr = addr
	}
	if path := os.Getenv("SWING_DB_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
	if v := os.Getenv("SWING_REALTIME"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SWING_REALTIME: %w", err)
		}
		c.Detector.RealtimeDetection = on
	}
	return nil
}

// Validate reports the first invalid option.
func (c *Config) Validate() error {
	d := c.Detector
	switch {
	case c.ListenAddr == "":
		return errors.New("listen_addr is required")
	case d.BufferCapacity < 1:
		return fmt.Errorf("detector.buffer_capacity must be positive, got %d", d.BufferCapacity)
	case d.Threshold <= 0:
		return fmt.Errorf("detector.threshold must be positive, got %g", d.Threshold)
	case d.MinDistance < 1:
		return fmt.Errorf("detector.min_distance must be positive, got %d", d.MinDistance)
	case d.MinPeakInterval < 0:
		return fmt.Errorf("detector.min_peak_interval must not be negative, got %g", d.MinPeakInterval)
	case d.ScanInterval < 1:
		return fmt.Errorf("detector.scan_interval must be positive, got %d", d.ScanInterval)
	case 2*d.MinDistance > d.BufferCapacity:
		return fmt.Errorf("detector.buffer_capacity (%d) must hold at least 2*min_distance (%d) samples",
			d.BufferCapacity, 2*d.MinDistance)
	case d.MinDistance+d.ScanInterval >= d.BufferCapacity:
		// a peak must still be in the window when it settles
		return fmt.Errorf("detector.min_distance + scan_interval must be below buffer_capacity (%d)", d.BufferCapacity)
	case c.Storage.QueueSize < 0:
		return fmt.Errorf("storage.queue_size must not be negative, got %d", c.Storage.QueueSize)
	case c.MQTT.QoS > 2:
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	case c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == ""):
		return errors.New("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}
	return nil
}
