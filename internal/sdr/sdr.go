// Package sdr provides receiver stand-ins that drive the same handler as a
// live OpenWebRX connection.
package sdr

import (
	"context"
	"fmt"
	"time"

	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
)

// Source produces receiver events for a connectionmgr.Handler until ctx is
// done. *connectionmgr.Manager and *MockSource both satisfy it.
type Source interface {
	Run(ctx context.Context) error
	State() connectionmgr.State
	Attempts() int
}

// Tone is one synthetic carrier, offset from the center frequency.
type Tone struct {
	OffsetHz float64 `yaml:"offset_hz" json:"offset_hz"`
	// LevelDBFS is the tone amplitude relative to full scale.
	LevelDBFS float64 `yaml:"level_dbfs" json:"level_dbfs"`
}

// Config carries parameters for the simulated receiver.
type Config struct {
	CenterFreqHz float64       `yaml:"center_freq_hz"`
	SampleRateHz float64       `yaml:"sample_rate_hz"`
	FFTSize      int           `yaml:"fft_size"`
	Interval     time.Duration `yaml:"interval"`
	Tones        []Tone        `yaml:"tones"`
	// NoiseSigma is the standard deviation of each IQ noise component.
	NoiseSigma float64 `yaml:"noise_sigma"`
	// RefDBm is the power reported for a full-scale tone.
	RefDBm float64 `yaml:"ref_dbm"`
	Seed   int64   `yaml:"seed"`
}

// DefaultConfig simulates a 2.4 MHz wide view of the 2 m band with two
// carriers, one frame every 100 ms.
func DefaultConfig() Config {
	return Config{
		CenterFreqHz: 145e6,
		SampleRateHz: 2.4e6,
		FFTSize:      1024,
		Interval:     100 * time.Millisecond,
		Tones: []Tone{
			{OffsetHz: 187_500, LevelDBFS: -20},
			{OffsetHz: -487_500, LevelDBFS: -35},
		},
		NoiseSigma: 0.01,
		RefDBm:     -20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CenterFreqHz <= 0 {
		c.CenterFreqHz = d.CenterFreqHz
	}
	if c.SampleRateHz <= 0 {
		c.SampleRateHz = d.SampleRateHz
	}
	if c.FFTSize <= 0 {
		c.FFTSize = d.FFTSize
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	return c
}

// Validate rejects tones outside the simulated bandwidth.
func (c Config) Validate() error {
	c = c.withDefaults()
	for i, t := range c.Tones {
		if t.OffsetHz < -c.SampleRateHz/2 || t.OffsetHz >= c.SampleRateHz/2 {
			return fmt.Errorf("tone %d: offset %.0f Hz outside +/-%.0f Hz", i, t.OffsetHz, c.SampleRateHz/2)
		}
	}
	if c.NoiseSigma < 0 {
		return fmt.Errorf("noise sigma must not be negative, got %v", c.NoiseSigma)
	}
	return nil
}
