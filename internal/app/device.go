package app

import (
	"errors"
	"fmt"
	"math"
)

// Gain holds the receiver gain stages in dB.
type Gain struct {
	LNA int `yaml:"lna" json:"lna"`
	VGA int `yaml:"vga" json:"vga"`
	Amp int `yaml:"amp" json:"amp"`
}

// DeviceConfig is the receiver tuning surfaced to clients. Center frequency,
// sample rate and FFT size follow the receiver's config messages.
type DeviceConfig struct {
	CenterFrequencyHz float64 `yaml:"center_frequency_hz" json:"center_frequency"`
	SampleRateHz      float64 `yaml:"sample_rate_hz" json:"sample_rate"`
	BandwidthHz       float64 `yaml:"bandwidth_hz" json:"bandwidth"`
	FFTSize           int     `yaml:"-" json:"fft_size"`
	Gain              Gain    `yaml:"gain" json:"gain"`
}

// DefaultDeviceConfig returns 145 MHz center, 2.4 MHz sample rate and
// bandwidth, gain LNA 32 / VGA 35 / amp 0.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		CenterFrequencyHz: 145_000_000,
		SampleRateHz:      2_400_000,
		BandwidthHz:       2_400_000,
		Gain:              Gain{LNA: 32, VGA: 35, Amp: 0},
	}
}

// Validate rejects non-positive rates and out of range gains.
func (d DeviceConfig) Validate() error {
	var errs []error
	if !(d.CenterFrequencyHz > 0) || math.IsInf(d.CenterFrequencyHz, 0) {
		errs = append(errs, fieldError{"center_freq", fmt.Sprintf("must be positive, got %v", d.CenterFrequencyHz)})
	}
	if !(d.SampleRateHz > 0) || math.IsInf(d.SampleRateHz, 0) {
		errs = append(errs, fieldError{"samp_rate", fmt.Sprintf("must be positive, got %v", d.SampleRateHz)})
	}
	if !(d.BandwidthHz > 0) || math.IsInf(d.BandwidthHz, 0) {
		errs = append(errs, fieldError{"bandwidth", fmt.Sprintf("must be positive, got %v", d.BandwidthHz)})
	}
	if d.Gain.LNA < 0 || d.Gain.LNA > 40 {
		errs = append(errs, fieldError{"gain.lna", fmt.Sprintf("must be between 0 and 40, got %d", d.Gain.LNA)})
	}
	if d.Gain.VGA < 0 || d.Gain.VGA > 62 {
		errs = append(errs, fieldError{"gain.vga", fmt.Sprintf("must be between 0 and 62, got %d", d.Gain.VGA)})
	}
	if d.Gain.Amp != 0 && d.Gain.Amp != 1 {
		errs = append(errs, fieldError{"gain.amp", fmt.Sprintf("must be 0 or 1, got %d", d.Gain.Amp)})
	}
	return errors.Join(errs...)
}

// DevicePatch changes selected device fields. Nil fields are left alone.
type DevicePatch struct {
	CenterFrequencyHz *float64 `json:"center_freq,omitempty"`
	SampleRateHz      *float64 `json:"samp_rate,omitempty"`
	BandwidthHz       *float64 `json:"bandwidth,omitempty"`
	Gain              *Gain    `json:"gain,omitempty"`
}

func (p DevicePatch) apply(d DeviceConfig) DeviceConfig {
	if p.CenterFrequencyHz != nil {
		d.CenterFrequencyHz = *p.CenterFrequencyHz
	}
	if p.SampleRateHz != nil {
		d.SampleRateHz = *p.SampleRateHz
	}
	if p.BandwidthHz != nil {
		d.BandwidthHz = *p.BandwidthHz
	}
	if p.Gain != nil {
		d.Gain = *p.Gain
	}
	return d
}

// fieldError names the offending field so the API can report it.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e fieldError) Error() string { return e.Field + ": " + e.Message }

// fieldErrors flattens a joined error into per-field entries.
func fieldErrors(err error) []fieldError {
	if err == nil {
		return nil
	}
	var out []fieldError
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var fe fieldError
		if errors.As(err, &fe) {
			out = append(out, fe)
			return
		}
		out = append(out, fieldError{Message: err.Error()})
	}
	walk(err)
	return out
}
