// Package config loads the daemon's YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoSpectrum/internal/app"
	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/detect"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/mdns"
	"github.com/rjboer/GoSpectrum/internal/profiles"
	"github.com/rjboer/GoSpectrum/internal/sdr"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
	"github.com/rjboer/GoSpectrum/internal/telemetry"
)

// Upstream modes.
const (
	ModeOpenWebRX = "openwebrx"
	ModeSimulate  = "simulate"
)

type Config struct {
	Log       LogConfig            `yaml:"log"`
	Upstream  UpstreamConfig       `yaml:"upstream"`
	Processor dsp.ProcessorConfig  `yaml:"processor"`
	Detector  DetectorConfig       `yaml:"detector"`
	Buffer    BufferConfig         `yaml:"buffer"`
	Device    app.DeviceConfig     `yaml:"device"`
	Tracking  app.TrackingConfig   `yaml:"tracking"`
	Simulator sdr.Config           `yaml:"simulator"`
	Web       WebConfig            `yaml:"web"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	MQTT      telemetry.MQTTConfig `yaml:"mqtt"`
	Profiles  []profiles.Profile   `yaml:"profiles"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type UpstreamConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
	// Discover replaces URL with the first receiver found over mDNS.
	Discover             bool          `yaml:"discover"`
	Service              string        `yaml:"service"`
	HandshakeDelay       time.Duration `yaml:"handshake_delay"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

type DetectorConfig struct {
	detect.Config `yaml:",inline"`
	Live          bool `yaml:"live"`
}

type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

type WebConfig struct {
	Addr         string `yaml:"addr"`
	HistoryLimit int    `yaml:"history_limit"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Upstream: UpstreamConfig{
			URL:            connectionmgr.DefaultURL,
			Mode:           ModeOpenWebRX,
			Service:        mdns.DefaultService,
			HandshakeDelay: connectionmgr.DefaultHandshakeDelay,
			ConnectTimeout: connectionmgr.DefaultConnectTimeout,
			ReconnectDelay: connectionmgr.DefaultReconnectDelay,
		},
		Processor: dsp.DefaultProcessorConfig(),
		Detector:  DetectorConfig{Config: detect.DefaultConfig()},
		Buffer:    BufferConfig{Capacity: spectrum.DefaultBufferCapacity},
		Device:    app.DefaultDeviceConfig(),
		Tracking:  app.DefaultTrackingConfig(),
		Simulator: sdr.DefaultConfig(),
		Web:       WebConfig{Addr: telemetry.DefaultAddr, HistoryLimit: telemetry.DefaultHistoryLimit},
		Metrics:   MetricsConfig{Enabled: true},
		MQTT:      telemetry.MQTTConfig{Topic: telemetry.DefaultMQTTTopic},
	}
}

// Load reads path over Default. An empty path returns the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// Save writes c as YAML.
func Save(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	u := c.Upstream
	switch u.Mode {
	case ModeOpenWebRX:
		if u.URL == "" && !u.Discover {
			errs = append(errs, errors.New("upstream.url: required unless discover is set"))
		}
	case ModeSimulate:
	default:
		errs = append(errs, fmt.Errorf("upstream.mode: unknown mode %q", u.Mode))
	}
	for name, d := range map[string]time.Duration{
		"handshake_delay": u.HandshakeDelay,
		"connect_timeout": u.ConnectTimeout,
		"read_timeout":    u.ReadTimeout,
		"reconnect_delay": u.ReconnectDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("upstream.%s: must not be negative", name))
		}
	}
	if u.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("upstream.max_reconnect_attempts: must not be negative"))
	}

	if err := c.Processor.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("processor: %w", err))
	}
	if err := c.Detector.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	if c.Buffer.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("buffer.capacity: must be positive, got %d", c.Buffer.Capacity))
	}
	if err := c.Device.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}
	if c.Tracking.MaxTracks < 0 || c.Tracking.Timeout < 0 || c.Tracking.ToleranceHz < 0 || c.Tracking.HistoryLimit < 0 {
		errs = append(errs, errors.New("tracking: values must not be negative"))
	}
	if u.Mode == ModeSimulate {
		if err := c.Simulator.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("simulator: %w", err))
		}
	}
	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}

	seen := make(map[string]bool)
	for i, p := range c.Profiles {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("profiles[%d]: id is required", i))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Errorf("profiles[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		if res := profiles.Validate(p); !res.Valid {
			errs = append(errs, fmt.Errorf("profiles[%d]: %w", i, res))
		}
	}
	return errors.Join(errs...)
}

// ScannerConfig maps the processing sections onto app.Config.
func (c Config) ScannerConfig() app.Config {
	return app.Config{
		BufferCapacity: c.Buffer.Capacity,
		Processor:      c.Processor,
		Detector:       c.Detector.Config,
		LiveDetection:  c.Detector.Live,
		Device:         c.Device,
		Tracking:       c.Tracking,
	}
}

// ReconnectPolicy maps the upstream section onto the manager's policy.
func (c Config) ReconnectPolicy() connectionmgr.ReconnectPolicy {
	return connectionmgr.ReconnectPolicy{
		Delay:       c.Upstream.ReconnectDelay,
		MaxAttempts: c.Upstream.MaxReconnectAttempts,
	}
}

// Registry returns the catalog plus the configured custom profiles.
func (c Config) Registry() (*profiles.Registry, error) {
	reg := profiles.NewRegistry()
	for _, p := range c.Profiles {
		custom := profiles.CreateCustomProfile(p.Name, p.Ranges, p.StepHz, p.Description)
		if err := reg.Register(p.ID, custom); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
