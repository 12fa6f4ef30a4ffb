// Package app ties the receiver connection to the spectrum pipeline: it
// buffers incoming frames, runs the processor and detector, answers scan and
// status requests and publishes everything to the telemetry boundary.
package app

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/detect"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/profiles"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
	"github.com/rjboer/GoSpectrum/internal/telemetry"
)

// Status modes.
const (
	ModeReal = "REAL DATA MODE"
	ModeDemo = "DEMO MODE"
)

const detectionHistoryLimit = 100

// Config captures application level configuration.
type Config struct {
	BufferCapacity int
	Processor      dsp.ProcessorConfig
	Detector       detect.Config
	// LiveDetection runs the detector on every incoming frame.
	LiveDetection bool
	Device        DeviceConfig
	Tracking      TrackingConfig
}

// DefaultConfig returns the documented defaults with live detection off.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: spectrum.DefaultBufferCapacity,
		Processor:      dsp.DefaultProcessorConfig(),
		Detector:       detect.DefaultConfig(),
		Device:         DefaultDeviceConfig(),
		Tracking:       DefaultTrackingConfig(),
	}
}

// Upstream is the part of the connection manager the scanner reports on.
type Upstream interface {
	State() connectionmgr.State
	Attempts() int
}

// ScanResult answers a profile scan.
type ScanResult struct {
	Profile  profiles.Profile  `json:"profile"`
	Signals  []spectrum.Signal `json:"signals"`
	ScanTime int64             `json:"scan_time"`
	RealData bool              `json:"real_data"`
}

// SignalsResult answers an unscoped detection over the latest frame.
type SignalsResult struct {
	Signals      []spectrum.Signal `json:"signals"`
	ThresholdDBm float64           `json:"threshold"`
	Timestamp    int64             `json:"timestamp"`
	BufferSize   int               `json:"fft_buffer_size"`
	RealData     bool              `json:"real_data"`
	Count        int               `json:"signal_count"`
}

// Detection summarizes one detector run.
type Detection struct {
	Timestamp    int64   `json:"timestamp"`
	SignalCount  int     `json:"signal_count"`
	ThresholdDBm float64 `json:"threshold"`
	Source       string  `json:"source"`
}

// DetectionStats aggregates recent detector runs.
type DetectionStats struct {
	TotalDetections int        `json:"total_detections"`
	TotalSignals    int        `json:"total_signals"`
	AveragePerRun   float64    `json:"average_signals_per_detection"`
	Latest          *Detection `json:"latest_detection,omitempty"`
}

// Status is the externally visible state of the pipeline.
type Status struct {
	Mode              string                `json:"mode"`
	UpstreamConnected bool                  `json:"openwebrx_connected"`
	RealData          bool                  `json:"real_data"`
	BufferSize        int                   `json:"fft_buffer_size"`
	BufferCapacity    int                   `json:"max_buffer_size"`
	LastFrameTime     *int64                `json:"last_fft_time"`
	Config            *connectionmgr.Config `json:"config"`
	Device            DeviceConfig          `json:"device"`
	ConnectionState   string                `json:"connection_state,omitempty"`
	ReconnectAttempts int                   `json:"reconnect_attempts"`
	Uptime            float64               `json:"server_uptime"`
}

// Settings is the runtime-tunable configuration served by /api/config.
type Settings struct {
	Device    DeviceConfig          `json:"device"`
	Detector  detect.Config         `json:"detector"`
	Processor dsp.ProcessorConfig   `json:"processor"`
	Live      bool                  `json:"live_detection"`
	Upstream  *connectionmgr.Config `json:"upstream,omitempty"`
}

// SettingsPatch changes selected settings. Nil fields are left alone.
type SettingsPatch struct {
	DevicePatch
	SignalThreshold *float64 `json:"signal_threshold,omitempty"`
	MinSNR          *float64 `json:"min_snr,omitempty"`
	MaxSignals      *int     `json:"max_signals,omitempty"`
	LiveDetection   *bool    `json:"live_detection,omitempty"`
}

// Scanner implements connectionmgr.Handler. Frame ingestion happens on the
// connection goroutine; scan and status calls may run concurrently with it
// and only ever read buffer snapshots.
type Scanner struct {
	buffer    *spectrum.Buffer
	processor *dsp.Processor
	detector  *detect.Detector
	tracks    *TrackManager
	registry  *profiles.Registry
	reporter  telemetry.Reporter
	logger    logging.Logger

	live      atomic.Bool
	connected atomic.Bool

	mu       sync.RWMutex
	upstream *connectionmgr.Config
	device   DeviceConfig
	source   Upstream
	history  []Detection

	started time.Time
	now     func() time.Time
}

var _ connectionmgr.Handler = (*Scanner)(nil)

// NewScanner validates cfg and builds a scanner. A nil reporter discards
// events; a nil registry uses the built-in catalog.
func NewScanner(cfg Config, registry *profiles.Registry, reporter telemetry.Reporter, logger logging.Logger) (*Scanner, error) {
	processor, err := dsp.NewProcessor(cfg.Processor, nil)
	if err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}
	detector, err := detect.New(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	if cfg.Device == (DeviceConfig{}) {
		cfg.Device = DefaultDeviceConfig()
	}
	if err := cfg.Device.Validate(); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	if registry == nil {
		registry = profiles.NewRegistry()
	}
	if reporter == nil {
		reporter = telemetry.MultiReporter(nil)
	}
	s := &Scanner{
		buffer:    spectrum.NewBuffer(cfg.BufferCapacity),
		processor: processor,
		detector:  detector,
		tracks:    NewTrackManager(cfg.Tracking),
		registry:  registry,
		reporter:  reporter,
		logger:    logging.OrDefault(logger).With(logging.F("subsystem", "scanner")),
		device:    cfg.Device,
		started:   time.Now(),
		now:       time.Now,
	}
	s.live.Store(cfg.LiveDetection)
	return s, nil
}

// AttachUpstream lets Status report the connection state and attempts.
func (s *Scanner) AttachUpstream(u Upstream) {
	s.mu.Lock()
	s.source = u
	s.mu.Unlock()
}

// Registry returns the profile registry used for scans.
func (s *Scanner) Registry() *profiles.Registry { return s.registry }

func (s *Scanner) OnConnect() {
	s.connected.Store(true)
	s.logger.Info("receiver streaming")
	s.reporter.Report(telemetry.StatusEvent(true, "connected"))
}

func (s *Scanner) OnDisconnect() {
	s.connected.Store(false)
	s.logger.Info("receiver disconnected")
	s.reporter.Report(telemetry.StatusEvent(false, "disconnected"))
}

// OnConfig replaces the stored receiver config and retunes the device view.
func (s *Scanner) OnConfig(cfg connectionmgr.Config) {
	s.mu.Lock()
	c := cfg
	s.upstream = &c
	if cfg.CenterFreqHz > 0 {
		s.device.CenterFrequencyHz = cfg.CenterFreqHz
	}
	if cfg.SampleRateHz > 0 {
		s.device.SampleRateHz = cfg.SampleRateHz
		s.device.BandwidthHz = cfg.SampleRateHz
	}
	s.device.FFTSize = cfg.FFTSize
	s.mu.Unlock()
	s.reporter.Report(telemetry.ConfigEvent(cfg))
}

// OnFrame buffers the raw frame, publishes the processed one and, when live
// detection is on, the detections.
func (s *Scanner) OnFrame(f spectrum.Frame) {
	if err := f.Validate(); err != nil {
		s.logger.Debug("dropping inconsistent frame", logging.Err(err))
		return
	}
	s.buffer.Push(f)
	processed, stats := s.processor.Process(f)
	s.reporter.Report(telemetry.FrameEvent(processed, stats))

	if !s.live.Load() {
		return
	}
	signals := s.detector.Detect(f, nil)
	s.record(telemetry.SourceLive, len(signals), s.detector.Config().ThresholdDBm)
	s.tracks.Update(signals, f.BinWidthHz(), s.now())
	if len(signals) > 0 {
		s.reporter.Report(telemetry.SignalsEvent(telemetry.SourceLive, "", signals))
	}
}

func (s *Scanner) OnError(err error) {
	s.logger.Warn("upstream error", logging.Err(err))
	s.reporter.Report(telemetry.ErrorEvent(err))
}

// liveFrame returns a snapshot of the newest frame when live-data mode holds:
// the buffer is non-empty and the receiver is connected.
func (s *Scanner) liveFrame() (spectrum.Frame, bool) {
	if !s.connected.Load() {
		return spectrum.Frame{}, false
	}
	return s.buffer.Latest()
}

// RealData reports whether scans currently use live spectra.
func (s *Scanner) RealData() bool {
	return s.connected.Load() && s.buffer.Len() > 0
}

// Scan detects signals inside profile id. Without live data it returns demo
// signals for the profile instead.
func (s *Scanner) Scan(id string) (ScanResult, error) {
	p, ok := s.registry.Get(id)
	if !ok {
		return ScanResult{}, fmt.Errorf("%w: %s", profiles.ErrUnknownProfile, id)
	}
	res := ScanResult{Profile: p, ScanTime: s.now().UnixMilli()}

	source := telemetry.SourceDemo
	if f, ok := s.liveFrame(); ok {
		res.Signals = s.detector.Detect(f, &p)
		res.RealData = true
		source = telemetry.SourceScan
		s.tracks.Update(res.Signals, f.BinWidthHz(), s.now())
	} else {
		res.Signals = s.registry.GenerateDemoSignals(p)
	}
	spectrum.SortByPower(res.Signals)

	s.record(source, len(res.Signals), s.detector.Config().ThresholdDBm)
	s.reporter.Report(telemetry.SignalsEvent(source, id, res.Signals))
	s.logger.Debug("scan complete", logging.F("profile", id), logging.F("signals", len(res.Signals)), logging.F("real_data", res.RealData))
	return res, nil
}

// Signals runs the detector over the whole latest frame. A non-nil threshold
// overrides the configured one for this call only.
func (s *Scanner) Signals(threshold *float64) (SignalsResult, error) {
	cfg := s.detector.Config()
	if threshold != nil {
		cfg.ThresholdDBm = *threshold
	}
	res := SignalsResult{
		Signals:      []spectrum.Signal{},
		ThresholdDBm: cfg.ThresholdDBm,
		Timestamp:    s.now().UnixMilli(),
		BufferSize:   s.buffer.Len(),
	}
	f, ok := s.liveFrame()
	if !ok {
		return res, nil
	}
	signals, err := s.detector.DetectWith(f, nil, cfg)
	if err != nil {
		return SignalsResult{}, err
	}
	res.Signals = signals
	res.RealData = true
	res.Count = len(signals)
	s.record(telemetry.SourceScan, len(signals), cfg.ThresholdDBm)
	s.tracks.Update(signals, f.BinWidthHz(), s.now())
	return res, nil
}

// Tracks returns the emitters followed across live detections, oldest first.
// Demo signals never create tracks.
func (s *Scanner) Tracks() []Track { return s.tracks.Tracks() }

func (s *Scanner) record(source string, n int, threshold float64) {
	s.mu.Lock()
	s.history = append(s.history, Detection{
		Timestamp:    s.now().UnixMilli(),
		SignalCount:  n,
		ThresholdDBm: threshold,
		Source:       source,
	})
	if len(s.history) > detectionHistoryLimit {
		s.history = s.history[len(s.history)-detectionHistoryLimit:]
	}
	s.mu.Unlock()
}

// DetectionStats summarizes the retained detector runs.
func (s *Scanner) DetectionStats() DetectionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st DetectionStats
	if len(s.history) == 0 {
		return st
	}
	for _, d := range s.history {
		st.TotalSignals += d.SignalCount
	}
	st.TotalDetections = len(s.history)
	st.AveragePerRun = float64(st.TotalSignals) / float64(st.TotalDetections)
	latest := s.history[len(s.history)-1]
	st.Latest = &latest
	return st
}

// LatestFrame returns a copy of the newest buffered frame, regardless of the
// connection state.
func (s *Scanner) LatestFrame() (spectrum.Frame, bool) { return s.buffer.Latest() }

// BufferSize is the number of buffered frames.
func (s *Scanner) BufferSize() int { return s.buffer.Len() }

// ClearBuffer drops every buffered frame; scans fall back to demo data until
// the next frame arrives.
func (s *Scanner) ClearBuffer() int {
	n := s.buffer.Len()
	s.buffer.Reset()
	s.logger.Info("frame buffer cleared", logging.F("previous_size", n))
	return n
}

// Status reports the current mode, connection and device view.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	st := Status{
		Device:         s.device,
		BufferSize:     s.buffer.Len(),
		BufferCapacity: s.buffer.Cap(),
		Uptime:         s.now().Sub(s.started).Seconds(),
	}
	if s.upstream != nil {
		c := *s.upstream
		st.Config = &c
	}
	source := s.source
	s.mu.RUnlock()

	st.UpstreamConnected = s.connected.Load()
	if f, ok := s.buffer.Latest(); ok {
		ts := f.Timestamp
		st.LastFrameTime = &ts
	}
	st.RealData = st.UpstreamConnected && st.BufferSize > 0
	st.Mode = ModeDemo
	if st.RealData {
		st.Mode = ModeReal
	}
	if source != nil {
		st.ConnectionState = source.State().String()
		st.ReconnectAttempts = source.Attempts()
	}
	return st
}

// Device returns the current device view.
func (s *Scanner) Device() DeviceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// UpdateDevice applies patch after validating the result. On error nothing
// changes.
func (s *Scanner) UpdateDevice(patch DevicePatch) (DeviceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := patch.apply(s.device)
	if err := next.Validate(); err != nil {
		return s.device, err
	}
	s.device = next
	return next, nil
}

// Settings returns the runtime-tunable configuration.
func (s *Scanner) Settings() Settings {
	st := Settings{
		Device:    s.Device(),
		Detector:  s.detector.Config(),
		Processor: s.processor.Config(),
		Live:      s.live.Load(),
	}
	s.mu.RLock()
	if s.upstream != nil {
		c := *s.upstream
		st.Upstream = &c
	}
	s.mu.RUnlock()
	return st
}

// ApplySettings validates every field of patch before changing anything.
func (s *Scanner) ApplySettings(patch SettingsPatch) (Settings, error) {
	var errs []error
	det := s.detector.Config()
	if patch.SignalThreshold != nil {
		det.ThresholdDBm = *patch.SignalThreshold
	}
	if patch.MinSNR != nil {
		det.MinSNRDB = *patch.MinSNR
	}
	if patch.MaxSignals != nil {
		det.MaxSignals = *patch.MaxSignals
	}
	if err := det.Validate(); err != nil {
		errs = append(errs, fieldError{"detector", err.Error()})
	}
	if err := patch.DevicePatch.apply(s.Device()).Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return s.Settings(), err
	}

	if _, err := s.UpdateDevice(patch.DevicePatch); err != nil {
		return s.Settings(), err
	}
	// det is valid, so the setters cannot fail.
	_ = s.detector.SetThreshold(det.ThresholdDBm)
	_ = s.detector.SetMinSNR(det.MinSNRDB)
	_ = s.detector.SetMaxSignals(det.MaxSignals)
	if patch.LiveDetection != nil {
		s.live.Store(*patch.LiveDetection)
	}
	out := s.Settings()
	s.logger.Info("settings updated",
		logging.F("threshold_dbm", out.Detector.ThresholdDBm),
		logging.F("min_snr_db", out.Detector.MinSNRDB),
		logging.F("center_freq_hz", out.Device.CenterFrequencyHz),
		logging.F("live_detection", out.Live),
	)
	return out, nil
}
