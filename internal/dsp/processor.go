package dsp

import (
	"fmt"

	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// DefaultSmoothingFactor weights the newest bin in exponential smoothing.
const DefaultSmoothingFactor = 0.3

// ProcessorConfig selects the transforms applied to each frame.
type ProcessorConfig struct {
	Windowing       bool       `yaml:"windowing" json:"windowing"`
	Window          WindowType `yaml:"window" json:"window"`
	Smoothing       bool       `yaml:"smoothing" json:"smoothing"`
	SmoothingFactor float64    `yaml:"smoothing_factor" json:"smoothing_factor"`
}

// DefaultProcessorConfig enables Hann windowing and leaves smoothing off.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Windowing:       true,
		Window:          WindowHann,
		Smoothing:       false,
		SmoothingFactor: DefaultSmoothingFactor,
	}
}

// Validate checks the window name and smoothing factor.
func (c ProcessorConfig) Validate() error {
	if c.Windowing {
		if _, err := ParseWindowType(string(c.Window)); err != nil {
			return err
		}
	}
	if c.Smoothing && (c.SmoothingFactor <= 0 || c.SmoothingFactor > 1) {
		return fmt.Errorf("smoothing factor %.3f outside (0,1]", c.SmoothingFactor)
	}
	return nil
}

// Processor windows and smooths frames and computes their statistics. It is
// safe for concurrent use; the only shared state is the coefficient cache.
type Processor struct {
	cfg   ProcessorConfig
	cache *WindowCache
}

// NewProcessor validates cfg and builds a processor. A nil cache uses the
// package-wide one.
func NewProcessor(cfg ProcessorConfig, cache *WindowCache) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cache == nil {
		cache = defaultCache
	}
	return &Processor{cfg: cfg, cache: cache}, nil
}

// Config returns the active configuration.
func (p *Processor) Config() ProcessorConfig { return p.cfg }

// Process returns a transformed copy of f and the statistics of the
// transformed data. f is not modified.
func (p *Processor) Process(f spectrum.Frame) (spectrum.Frame, Stats) {
	out := f.Clone()
	data := out.Data

	if p.cfg.Windowing && p.cfg.Window != WindowRectangular && len(data) > 0 {
		win, err := p.cache.Get(p.cfg.Window, len(data))
		if err == nil {
			data = ApplyWindow(data, win)
		}
	}
	if p.cfg.Smoothing {
		data = Smooth(data, p.cfg.SmoothingFactor)
	}

	out.Data = data
	out.FFTSize = len(data)
	return out, ComputeStats(data)
}

// Smooth applies single-pole exponential smoothing:
// out[0] = data[0], out[i] = f*data[i] + (1-f)*out[i-1].
func Smooth(data []float64, f float64) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = f*data[i] + (1-f)*out[i-1]
	}
	return out
}
