// Package detect finds discrete signals in a power spectrum.
package detect

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/profiles"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// Defaults for Config.
const (
	DefaultThresholdDBm = -70.0
	DefaultMinSNRDB     = 6.0
)

// ErrInvalidParameter is returned by setters for non-finite input.
var ErrInvalidParameter = errors.New("detect: invalid parameter")

// Config tunes detection.
type Config struct {
	ThresholdDBm float64 `yaml:"threshold_dbm" json:"threshold_dbm"`
	MinSNRDB     float64 `yaml:"min_snr_db" json:"min_snr_db"`
	// MaxSignals caps the result after sorting; 0 means no cap.
	MaxSignals int `yaml:"max_signals" json:"max_signals"`
}

// DefaultConfig returns threshold -70 dBm and 6 dB minimum SNR.
func DefaultConfig() Config {
	return Config{ThresholdDBm: DefaultThresholdDBm, MinSNRDB: DefaultMinSNRDB}
}

// Validate rejects non-finite values and a negative cap.
func (c Config) Validate() error {
	if !finite(c.ThresholdDBm) {
		return fmt.Errorf("%w: threshold %v", ErrInvalidParameter, c.ThresholdDBm)
	}
	if !finite(c.MinSNRDB) {
		return fmt.Errorf("%w: min snr %v", ErrInvalidParameter, c.MinSNRDB)
	}
	if c.MaxSignals < 0 {
		return fmt.Errorf("%w: max signals %d", ErrInvalidParameter, c.MaxSignals)
	}
	return nil
}

// Detector finds local maxima that clear both an absolute threshold and the
// noise floor by a minimum SNR. Detect may run concurrently with the setters;
// each call reads the parameters once.
type Detector struct {
	mu  sync.RWMutex
	cfg Config

	newID func() string
	now   func() time.Time
}

// New validates cfg and returns a detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:   cfg,
		newID: func() string { return "sig-" + uuid.NewString() },
		now:   time.Now,
	}, nil
}

// Config returns the current parameters.
func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// SetThreshold changes the absolute power threshold. Non-finite values are
// rejected and the previous value kept.
func (d *Detector) SetThreshold(dbm float64) error {
	if !finite(dbm) {
		return fmt.Errorf("%w: threshold %v", ErrInvalidParameter, dbm)
	}
	d.mu.Lock()
	d.cfg.ThresholdDBm = dbm
	d.mu.Unlock()
	return nil
}

// SetMinSNR changes the required margin above the noise floor.
func (d *Detector) SetMinSNR(db float64) error {
	if !finite(db) {
		return fmt.Errorf("%w: min snr %v", ErrInvalidParameter, db)
	}
	d.mu.Lock()
	d.cfg.MinSNRDB = db
	d.mu.Unlock()
	return nil
}

// SetMaxSignals changes the result cap; 0 disables it.
func (d *Detector) SetMaxSignals(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: max signals %d", ErrInvalidParameter, n)
	}
	d.mu.Lock()
	d.cfg.MaxSignals = n
	d.mu.Unlock()
	return nil
}

// Detect returns the signals in f, strongest first. When profile is non-nil
// only peaks inside one of its ranges are kept. f is not modified.
func (d *Detector) Detect(f spectrum.Frame, profile *profiles.Profile) []spectrum.Signal {
	return d.detect(f, profile, d.Config())
}

// DetectWith is Detect with one-off parameters; the detector's own
// configuration is left untouched.
func (d *Detector) DetectWith(f spectrum.Frame, profile *profiles.Profile, cfg Config) ([]spectrum.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return d.detect(f, profile, cfg), nil
}

func (d *Detector) detect(f spectrum.Frame, profile *profiles.Profile, cfg Config) []spectrum.Signal {
	data := f.Data
	n := len(data)
	if n < 5 {
		return []spectrum.Signal{}
	}

	noiseFloor := dsp.NoiseFloor(data)
	binWidth := f.BinWidthHz()
	start := f.StartFrequencyHz()
	ts := d.now().UnixMilli()

	signals := []spectrum.Signal{}
	for i := 2; i <= n-3; i++ {
		end, ok := peakAt(data, i)
		if !ok {
			continue
		}
		p := data[i]
		peak := (i + end) / 2
		i = end
		if !(p > cfg.ThresholdDBm && p > noiseFloor+cfg.MinSNRDB) {
			continue
		}
		freq := start + float64(peak)*binWidth
		if profile != nil && !profile.Contains(freq) {
			continue
		}

		snr := p - noiseFloor
		signals = append(signals, spectrum.Signal{
			ID:          d.newID(),
			FrequencyHz: freq,
			PowerDBm:    p,
			BandwidthHz: bandwidth(data, peak, binWidth),
			SNRDB:       snr,
			Confidence:  confidence(p, snr, cfg),
			Timestamp:   ts,
		})
	}

	spectrum.SortByPower(signals)
	if cfg.MaxSignals > 0 && len(signals) > cfg.MaxSignals {
		signals = signals[:cfg.MaxSignals]
	}
	return signals
}

// peakAt applies the strict 5-point local maximum test at i. A run of equal
// values starting at i is tested as one wide bin: the two bins before the
// run and the two after it must all be lower. It returns the last index of
// the run. A single bin run is exactly the 5-point test.
func peakAt(data []float64, i int) (int, bool) {
	p := data[i]
	if !(p > data[i-1] && p > data[i-2]) {
		return i, false
	}
	end := i
	for end+1 < len(data) && data[end+1] == p {
		end++
	}
	if end+2 >= len(data) {
		return end, false
	}
	return end, p > data[end+1] && p > data[end+2]
}

// bandwidth walks outwards from peak while bins stay within 3 dB of it.
func bandwidth(data []float64, peak int, binWidth float64) float64 {
	edge := data[peak] - 3
	left, right := peak, peak
	for left > 0 && data[left-1] >= edge {
		left--
	}
	for right < len(data)-1 && data[right+1] >= edge {
		right++
	}
	return float64(right-left+1) * binWidth
}

func confidence(power, snr float64, cfg Config) float64 {
	powerFactor := clamp01((power - cfg.ThresholdDBm) / 30)
	snrFactor := clamp01((snr - cfg.MinSNRDB) / 20)
	return (powerFactor + snrFactor) / 2
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
