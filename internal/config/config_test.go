package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/profiles"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gospectrum.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Upstream.URL != "ws://localhost:8073/ws/" || cfg.Upstream.ReconnectDelay != 5*time.Second {
		t.Fatalf("unexpected upstream defaults %+v", cfg.Upstream)
	}
	if cfg.Buffer.Capacity != 5 || cfg.Detector.ThresholdDBm != -70 || cfg.Detector.MinSNRDB != 6 {
		t.Fatalf("unexpected processing defaults %+v %+v", cfg.Buffer, cfg.Detector)
	}
	if cfg.Web.Addr != ":8092" || cfg.Processor.Window != dsp.WindowHann || cfg.Processor.Smoothing {
		t.Fatalf("unexpected web/processor defaults %+v %+v", cfg.Web, cfg.Processor)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Upstream.Mode != ModeOpenWebRX {
		t.Fatalf("expected defaults, got %+v", cfg.Upstream)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
upstream:
  url: ws://shack.local:8073/ws/
  reconnect_delay: 2s
  max_reconnect_attempts: 10
processor:
  window: blackman
  smoothing: true
  smoothing_factor: 0.5
detector:
  threshold_dbm: -80
  live: true
device:
  center_frequency_hz: 433920000
  gain: {lna: 16, vga: 20, amp: 1}
profiles:
  - id: pmr
    name: PMR446
    ranges: [[446.0, 446.2]]
    step_hz: 12500
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log section %+v", cfg.Log)
	}
	if cfg.Upstream.ReconnectDelay != 2*time.Second || cfg.Upstream.MaxReconnectAttempts != 10 || cfg.Upstream.HandshakeDelay != 100*time.Millisecond {
		t.Fatalf("unexpected upstream section %+v", cfg.Upstream)
	}
	if !cfg.Processor.Windowing || cfg.Processor.Window != dsp.WindowBlackman || cfg.Processor.SmoothingFactor != 0.5 {
		t.Fatalf("unexpected processor section %+v", cfg.Processor)
	}
	if cfg.Detector.ThresholdDBm != -80 || cfg.Detector.MinSNRDB != 6 || !cfg.Detector.Live {
		t.Fatalf("unexpected detector section %+v", cfg.Detector)
	}
	if cfg.Device.CenterFrequencyHz != 433.92e6 || cfg.Device.SampleRateHz != 2.4e6 || cfg.Device.Gain.Amp != 1 {
		t.Fatalf("unexpected device section %+v", cfg.Device)
	}

	sc := cfg.ScannerConfig()
	if !sc.LiveDetection || sc.Detector.ThresholdDBm != -80 || sc.BufferCapacity != 5 {
		t.Fatalf("unexpected scanner config %+v", sc)
	}
	if p := cfg.ReconnectPolicy(); p.Delay != 2*time.Second || p.MaxAttempts != 10 {
		t.Fatalf("unexpected policy %+v", p)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	p, ok := reg.Get("pmr")
	if !ok || p.StepHz != 12500 || p.Ranges[0] != (profiles.Range{StartMHz: 446, EndMHz: 446.2}) {
		t.Fatalf("custom profile not registered: %+v", p)
	}
	if p.Description != "Custom profile: PMR446" {
		t.Fatalf("unexpected description %q", p.Description)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "upstream:\n  uri: ws://typo/\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Upstream.Mode = "carrier-pigeon"
	cfg.Upstream.ReconnectDelay = -time.Second
	cfg.Buffer.Capacity = 0
	cfg.Processor.Window = "triangle"
	cfg.MQTT.Enabled = true
	cfg.Profiles = []profiles.Profile{
		{ID: "vhf2", Name: "", StepHz: 0},
		{ID: "vhf2", Name: "dup", Ranges: []profiles.Range{{StartMHz: 1, EndMHz: 2}}, StepHz: 1},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{
		"log.level", "upstream.mode", "upstream.reconnect_delay", "buffer.capacity",
		"processor", "mqtt", "profiles[0]", "duplicate id",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestValidateSimulatorOnlyInSimulateMode(t *testing.T) {
	cfg := Default()
	cfg.Simulator.NoiseSigma = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("simulator should be ignored in openwebrx mode: %v", err)
	}
	cfg.Upstream.Mode = ModeSimulate
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "simulator") {
		t.Fatalf("expected simulator error, got %v", err)
	}
}

func TestRegistryRejectsCatalogCollision(t *testing.T) {
	cfg := Default()
	cfg.Profiles = []profiles.Profile{{ID: "vhf", Name: "Mine", Ranges: []profiles.Range{{StartMHz: 1, EndMHz: 2}}, StepHz: 1}}
	if _, err := cfg.Registry(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Upstream.URL = "ws://rx:8073/ws/"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if got.Upstream.URL != cfg.Upstream.URL || got.Simulator.Interval != cfg.Simulator.Interval {
		t.Fatalf("round trip mismatch %+v", got.Upstream)
	}
}
