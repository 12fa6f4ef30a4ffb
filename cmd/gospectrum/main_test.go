package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/GoSpectrum/internal/config"
	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/sdr"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, writePath, err := parseConfig(nil, noEnv, config.Default())
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if writePath != "" || cfg.Upstream.URL != connectionmgr.DefaultURL || cfg.Detector.ThresholdDBm != -70 || cfg.Web.Addr != ":8092" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfigEnvOverrides(t *testing.T) {
	env := envMap(map[string]string{
		"OWRX_URL":             "ws://rx:8073/ws/",
		"OWRX_THRESHOLD":       "-75.5",
		"OWRX_LIVE_DETECTION":  "true",
		"OWRX_RECONNECT_DELAY": "1500ms",
		"OWRX_WINDOW":          "hamming",
		"OWRX_BUFFER_CAPACITY": "not-a-number",
	})
	cfg, _, err := parseConfig([]string{"--min-snr", "9", "--mode", "simulate"}, env, config.Default())
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.Upstream.URL != "ws://rx:8073/ws/" || cfg.Detector.ThresholdDBm != -75.5 || !cfg.Detector.Live {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Upstream.ReconnectDelay != 1500*time.Millisecond || cfg.Processor.Window != dsp.WindowHamming {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Upstream, cfg.Processor)
	}
	if cfg.Detector.MinSNRDB != 9 || cfg.Upstream.Mode != config.ModeSimulate {
		t.Fatalf("flag overrides not applied: %+v", cfg)
	}
	if cfg.Buffer.Capacity != 5 {
		t.Fatalf("malformed env should keep default, got %d", cfg.Buffer.Capacity)
	}
}

func TestParseConfigFlagBeatsEnv(t *testing.T) {
	env := envMap(map[string]string{"OWRX_WEB_ADDR": ":9000"})
	cfg, _, err := parseConfig([]string{"--web-addr", ":9100"}, env, config.Default())
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.Web.Addr != ":9100" {
		t.Fatalf("expected flag to win, got %s", cfg.Web.Addr)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	if _, _, err := parseConfig([]string{"--mode", "sstv"}, noEnv, config.Default()); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
	if _, _, err := parseConfig([]string{"--no-such-flag"}, noEnv, config.Default()); err == nil {
		t.Fatalf("expected unknown flag to fail")
	}
}

func TestConfigPathFromFlagOrEnv(t *testing.T) {
	if got := configPath([]string{"--threshold", "-60", "-c", "a.yaml"}, noEnv); got != "a.yaml" {
		t.Fatalf("expected a.yaml, got %q", got)
	}
	if got := configPath(nil, envMap(map[string]string{"OWRX_CONFIG": "b.yaml"})); got != "b.yaml" {
		t.Fatalf("expected b.yaml, got %q", got)
	}
}

func TestRunWritesConfig(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.yaml")
	if err := os.WriteFile(in, []byte("detector:\n  threshold_dbm: -66\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(dir, "out.yaml")
	if err := run(context.Background(), []string{"--config", in, "--min-snr", "7", "--write-config", out}, noEnv, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	cfg, err := config.Load(out)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Detector.ThresholdDBm != -66 || cfg.Detector.MinSNRDB != 7 {
		t.Fatalf("unexpected written config %+v", cfg.Detector)
	}
}

func TestRunSimulatorUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var logs bytes.Buffer
	args := []string{"--mode", "simulate", "--web-addr", "127.0.0.1:0", "--log-format", "json"}
	if err := run(ctx, args, noEnv, &logs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), "simulated receiver streaming") {
		t.Fatalf("expected simulator log, got %s", logs.String())
	}
}

func TestSelectSource(t *testing.T) {
	cfg := config.Default()
	src, err := selectSource(context.Background(), cfg, connectionmgr.HandlerFuncs{}, nil, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m, ok := src.(*connectionmgr.Manager); !ok || m.URL() != connectionmgr.DefaultURL {
		t.Fatalf("expected manager for %s, got %T", connectionmgr.DefaultURL, src)
	}

	cfg.Upstream.Mode = config.ModeSimulate
	if src, _ = selectSource(context.Background(), cfg, connectionmgr.HandlerFuncs{}, nil, logging.Discard()); src == nil {
		t.Fatalf("expected simulator")
	}
	if _, ok := src.(*sdr.MockSource); !ok {
		t.Fatalf("expected *sdr.MockSource, got %T", src)
	}

	cfg.Upstream.Mode = "unknown"
	if _, err := selectSource(context.Background(), cfg, connectionmgr.HandlerFuncs{}, nil, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
