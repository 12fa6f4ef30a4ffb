package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// Metrics exports ingestion and detection counters on a private registry.
// It implements connectionmgr.Observer. A nil *Metrics is a valid no-op.
type Metrics struct {
	reg *prometheus.Registry

	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	configMessages  prometheus.Counter
	reconnects      prometheus.Counter
	connectionState prometheus.Gauge
	fftBins         prometheus.Gauge
	signals         *prometheus.CounterVec
	noiseFloor      prometheus.Gauge
	peakPower       prometheus.Gauge
}

var _ connectionmgr.Observer = (*Metrics)(nil)

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		framesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "owrx_frames_received_total",
				Help: "Spectrum frames decoded from the receiver, by element encoding",
			},
			[]string{"encoding"},
		),
		framesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "owrx_frames_dropped_total",
				Help: "Binary messages that did not produce a frame",
			},
			[]string{"reason"},
		),
		configMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "owrx_config_messages_total",
			Help: "Config messages received from the receiver",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "owrx_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a lost or failed connection",
		}),
		connectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "owrx_connection_state",
			Help: "Upstream connection state (0 disconnected, 1 connecting, 2 handshaking, 3 streaming, 4 reconnect scheduled)",
		}),
		fftBins: f.NewGauge(prometheus.GaugeOpts{
			Name: "owrx_fft_bins",
			Help: "Bin count of the latest decoded frame",
		}),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "owrx_signals_detected_total",
				Help: "Signals reported, by source (live, scan, demo)",
			},
			[]string{"source"},
		),
		noiseFloor: f.NewGauge(prometheus.GaugeOpts{
			Name: "owrx_noise_floor_dbm",
			Help: "Noise floor estimate of the latest processed frame",
		}),
		peakPower: f.NewGauge(prometheus.GaugeOpts{
			Name: "owrx_peak_power_dbm",
			Help: "Peak power of the latest processed frame",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) StateChanged(s connectionmgr.State) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(s))
}

func (m *Metrics) ConfigReceived() {
	if m == nil {
		return
	}
	m.configMessages.Inc()
}

func (m *Metrics) FrameDecoded(enc spectrum.Encoding, bins int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(enc.String()).Inc()
	m.fftBins.Set(float64(bins))
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReconnectScheduled(int) {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// ObserveStats records the latest processed frame's statistics.
func (m *Metrics) ObserveStats(s dsp.Stats) {
	if m == nil {
		return
	}
	m.noiseFloor.Set(s.NoiseFloor)
	m.peakPower.Set(s.Peak)
}

// SignalsDetected adds n to the per-source detection counter.
func (m *Metrics) SignalsDetected(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.signals.WithLabelValues(source).Add(float64(n))
}

// Report implements Reporter so the metrics can sit in a MultiReporter.
func (m *Metrics) Report(ev Event) {
	switch ev.Type {
	case EventFrame:
		if ev.Stats != nil {
			m.ObserveStats(*ev.Stats)
		}
	case EventSignals:
		m.SignalsDetected(ev.Source, len(ev.Signals))
	}
}
