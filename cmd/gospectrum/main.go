package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rjboer/GoSpectrum/internal/app"
	"github.com/rjboer/GoSpectrum/internal/config"
	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/mdns"
	"github.com/rjboer/GoSpectrum/internal/sdr"
	"github.com/rjboer/GoSpectrum/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "gospectrum: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), out io.Writer) error {
	base, err := config.Load(configPath(args, lookup))
	if err != nil {
		return err
	}
	cfg, writePath, err := parseConfig(args, lookup, base)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if writePath != "" {
		return config.Save(writePath, cfg)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	logger := logging.New(level, format, out)
	logging.SetDefault(logger)

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("profiles: %w", err)
	}

	hub := telemetry.NewHub(cfg.Web.HistoryLimit, logger)
	reporters := []telemetry.Reporter{hub}
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
		reporters = append(reporters, metrics)
	}
	publisher, err := telemetry.NewMQTTReporter(cfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if publisher != nil {
		defer publisher.Close()
		reporters = append(reporters, publisher)
	}
	if cfg.Web.Addr == "" {
		// Without a web interface detections go to the log.
		reporters = append(reporters, telemetry.NewStdoutReporter(logger))
	}

	scanner, err := app.NewScanner(cfg.ScannerConfig(), registry, telemetry.MultiReporter(reporters), logger)
	if err != nil {
		return fmt.Errorf("scanner: %w", err)
	}
	source, err := selectSource(ctx, cfg, scanner, metrics, logger)
	if err != nil {
		return err
	}
	scanner.AttachUpstream(source)

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if cfg.Web.Addr != "" {
		web := telemetry.NewWebServer(cfg.Web.Addr, hub, metrics, logger)
		scanner.RegisterRoutes(web)
		go func() {
			err := web.Start(ctx)
			if err != nil {
				cancel()
			}
			webErr <- err
		}()
	} else {
		webErr <- nil
	}

	logger.Info("starting spectrum scanner (Ctrl+C to stop)", logging.F("mode", cfg.Upstream.Mode))
	runErr := source.Run(ctx)
	cancel()
	if err := <-webErr; err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	// Ending the caller's context, by cancel or deadline, is a clean stop.
	if runErr != nil && parent.Err() == nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// selectSource builds the receiver connection, or the simulator when mode is
// "simulate".
func selectSource(ctx context.Context, cfg config.Config, h connectionmgr.Handler, metrics *telemetry.Metrics, logger logging.Logger) (sdr.Source, error) {
	switch cfg.Upstream.Mode {
	case config.ModeSimulate:
		return sdr.NewMock(cfg.Simulator, h, logger), nil
	case config.ModeOpenWebRX:
		url, err := upstreamURL(ctx, cfg.Upstream, logger)
		if err != nil {
			return nil, err
		}
		opts := []connectionmgr.Option{
			connectionmgr.WithLogger(logger),
			connectionmgr.WithHandshakeDelay(cfg.Upstream.HandshakeDelay),
			connectionmgr.WithConnectTimeout(cfg.Upstream.ConnectTimeout),
			connectionmgr.WithReadTimeout(cfg.Upstream.ReadTimeout),
			connectionmgr.WithReconnectPolicy(cfg.ReconnectPolicy()),
		}
		if metrics != nil {
			opts = append(opts, connectionmgr.WithObserver(metrics))
		}
		return connectionmgr.New(url, h, opts...), nil
	default:
		return nil, fmt.Errorf("unknown upstream mode %s", cfg.Upstream.Mode)
	}
}

func upstreamURL(ctx context.Context, u config.UpstreamConfig, logger logging.Logger) (string, error) {
	if !u.Discover {
		return u.URL, nil
	}
	hosts, err := mdns.Discover(ctx, u.Service, mdns.DefaultTimeout)
	if err == nil && len(hosts) > 0 {
		url := hosts[0].WebsocketURL()
		logger.Info("discovered receiver", logging.F("instance", hosts[0].Instance), logging.F("url", url))
		return url, nil
	}
	if u.URL == "" {
		if err != nil {
			return "", fmt.Errorf("discover receiver: %w", err)
		}
		return "", fmt.Errorf("no receiver advertising %s found", u.Service)
	}
	logger.Warn("receiver discovery found nothing, using configured url", logging.F("url", u.URL), logging.Err(err))
	return u.URL, nil
}

// configPath finds --config/-c ahead of the full parse so the file can supply
// flag defaults.
func configPath(args []string, lookup func(string) (string, bool)) string {
	fs := pflag.NewFlagSet("gospectrum", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.StringP("config", "c", envString(lookup, "OWRX_CONFIG", ""), "")
	_ = fs.Parse(args)
	return *path
}

// parseConfig applies environment variables and flags over defaults. Flags
// win over OWRX_* variables, which win over the file.
func parseConfig(args []string, lookup func(string) (string, bool), defaults config.Config) (config.Config, string, error) {
	cfg := defaults
	var writePath string
	fs := pflag.NewFlagSet("gospectrum", pflag.ContinueOnError)
	fs.StringP("config", "c", envString(lookup, "OWRX_CONFIG", ""), "YAML configuration file")
	fs.StringVar(&writePath, "write-config", "", "Write the effective configuration to this path and exit")

	fs.StringVarP(&cfg.Upstream.URL, "upstream", "u", envString(lookup, "OWRX_URL", defaults.Upstream.URL), "OpenWebRX websocket URL")
	fs.StringVar(&cfg.Upstream.Mode, "mode", envString(lookup, "OWRX_MODE", defaults.Upstream.Mode), "Upstream mode (openwebrx|simulate)")
	fs.BoolVar(&cfg.Upstream.Discover, "discover", envBool(lookup, "OWRX_DISCOVER", defaults.Upstream.Discover), "Find the receiver over mDNS")
	fs.StringVar(&cfg.Upstream.Service, "service", envString(lookup, "OWRX_SERVICE", defaults.Upstream.Service), "DNS-SD service type to browse")
	fs.DurationVar(&cfg.Upstream.ReconnectDelay, "reconnect-delay", envDuration(lookup, "OWRX_RECONNECT_DELAY", defaults.Upstream.ReconnectDelay), "Delay between reconnect attempts")
	fs.IntVar(&cfg.Upstream.MaxReconnectAttempts, "max-reconnect-attempts", envInt(lookup, "OWRX_MAX_RECONNECT_ATTEMPTS", defaults.Upstream.MaxReconnectAttempts), "Reconnect attempt cap (0 retries forever)")
	fs.DurationVar(&cfg.Upstream.ReadTimeout, "read-timeout", envDuration(lookup, "OWRX_READ_TIMEOUT", defaults.Upstream.ReadTimeout), "Drop a silent session after this long (0 waits forever)")

	fs.Float64Var(&cfg.Detector.ThresholdDBm, "threshold", envFloat(lookup, "OWRX_THRESHOLD", defaults.Detector.ThresholdDBm), "Detection threshold in dBm")
	fs.Float64Var(&cfg.Detector.MinSNRDB, "min-snr", envFloat(lookup, "OWRX_MIN_SNR", defaults.Detector.MinSNRDB), "Minimum SNR in dB")
	fs.IntVar(&cfg.Detector.MaxSignals, "max-signals", envInt(lookup, "OWRX_MAX_SIGNALS", defaults.Detector.MaxSignals), "Cap on signals per detection (0 = unlimited)")
	fs.BoolVar(&cfg.Detector.Live, "live-detection", envBool(lookup, "OWRX_LIVE_DETECTION", defaults.Detector.Live), "Run the detector on every frame")
	fs.IntVar(&cfg.Buffer.Capacity, "buffer-capacity", envInt(lookup, "OWRX_BUFFER_CAPACITY", defaults.Buffer.Capacity), "Frames kept in the spectrum buffer")

	window := envString(lookup, "OWRX_WINDOW", string(defaults.Processor.Window))
	fs.StringVar(&window, "window", window, "Window function (hann|hamming|blackman|rectangular)")
	fs.BoolVar(&cfg.Processor.Windowing, "windowing", envBool(lookup, "OWRX_WINDOWING", defaults.Processor.Windowing), "Apply the window to each frame")
	fs.BoolVar(&cfg.Processor.Smoothing, "smoothing", envBool(lookup, "OWRX_SMOOTHING", defaults.Processor.Smoothing), "Exponentially smooth successive frames")
	fs.Float64Var(&cfg.Processor.SmoothingFactor, "smoothing-factor", envFloat(lookup, "OWRX_SMOOTHING_FACTOR", defaults.Processor.SmoothingFactor), "Smoothing factor in (0,1]")

	fs.Float64Var(&cfg.Device.CenterFrequencyHz, "center-freq", envFloat(lookup, "OWRX_CENTER_FREQ", defaults.Device.CenterFrequencyHz), "Device center frequency in Hz")
	fs.Float64Var(&cfg.Device.SampleRateHz, "sample-rate", envFloat(lookup, "OWRX_SAMPLE_RATE", defaults.Device.SampleRateHz), "Device sample rate in Hz")

	fs.StringVar(&cfg.Web.Addr, "web-addr", envString(lookup, "OWRX_WEB_ADDR", defaults.Web.Addr), "Web API listen address (empty logs detections instead)")
	fs.BoolVar(&cfg.Metrics.Enabled, "metrics", envBool(lookup, "OWRX_METRICS", defaults.Metrics.Enabled), "Serve Prometheus metrics on /metrics")
	fs.StringVar(&cfg.Log.Level, "log-level", envString(lookup, "OWRX_LOG_LEVEL", defaults.Log.Level), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.Log.Format, "log-format", envString(lookup, "OWRX_LOG_FORMAT", defaults.Log.Format), "Log format (text|json)")

	fs.BoolVar(&cfg.MQTT.Enabled, "mqtt", envBool(lookup, "OWRX_MQTT", defaults.MQTT.Enabled), "Publish detections over MQTT")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", envString(lookup, "OWRX_MQTT_BROKER", defaults.MQTT.Broker), "MQTT broker URL (tcp://host:1883)")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt-topic", envString(lookup, "OWRX_MQTT_TOPIC", defaults.MQTT.Topic), "MQTT topic prefix")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, "", err
	}
	cfg.Processor.Window = dsp.WindowType(window)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", err
	}
	return cfg, writePath, nil
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
