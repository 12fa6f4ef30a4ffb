package sdr

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// MockSource synthesizes IQ blocks with the configured tones plus Gaussian
// noise, turns them into dBm spectra and feeds them to a handler as if they
// came from a receiver.
type MockSource struct {
	mu      sync.RWMutex
	cfg     Config
	rng     *rand.Rand
	fft     *dsp.CachedFFT
	handler connectionmgr.Handler
	logger  logging.Logger
	state   atomic.Int32
	now     func() time.Time
}

var _ Source = (*MockSource)(nil)

// NewMock builds a simulator. Zero fields of cfg take DefaultConfig values;
// a zero Seed seeds from the clock.
func NewMock(cfg Config, handler connectionmgr.Handler, logger logging.Logger) *MockSource {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockSource{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		fft:     dsp.NewCachedFFT(cfg.FFTSize),
		handler: handler,
		logger:  logging.OrDefault(logger).With(logging.F("subsystem", "simulator")),
		now:     time.Now,
	}
}

// State is streaming while Run is active.
func (m *MockSource) State() connectionmgr.State { return connectionmgr.State(m.state.Load()) }

// Attempts is always zero; the simulator never reconnects.
func (m *MockSource) Attempts() int { return 0 }

// SetTones replaces the synthetic carriers, allowing changes while running.
func (m *MockSource) SetTones(tones []Tone) {
	m.mu.Lock()
	m.cfg.Tones = append([]Tone(nil), tones...)
	m.mu.Unlock()
}

// Config returns the receiver config the simulator announces.
func (m *MockSource) Config() connectionmgr.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return connectionmgr.Config{
		FFTSize:        m.cfg.FFTSize,
		CenterFreqHz:   m.cfg.CenterFreqHz,
		SampleRateHz:   m.cfg.SampleRateHz,
		FFTCompression: "none",
	}
}

// IQ returns one block of FFTSize samples.
func (m *MockSource) IQ() []complex64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg
	n := cfg.FFTSize
	iq := make([]complex64, n)
	for _, t := range cfg.Tones {
		amp := math.Pow(10, t.LevelDBFS/20)
		step := 2 * math.Pi * t.OffsetHz / cfg.SampleRateHz
		phase0 := m.rng.Float64() * 2 * math.Pi
		for i := range iq {
			phase := phase0 + step*float64(i)
			iq[i] += complex64(complex(amp*math.Cos(phase), amp*math.Sin(phase)))
		}
	}
	if cfg.NoiseSigma > 0 {
		for i := range iq {
			noiseI := m.rng.NormFloat64() * cfg.NoiseSigma
			noiseQ := m.rng.NormFloat64() * cfg.NoiseSigma
			iq[i] += complex64(complex(noiseI, noiseQ))
		}
	}
	return iq
}

// Frame synthesizes one spectrum frame stamped with the current time.
func (m *MockSource) Frame() spectrum.Frame {
	iq := m.IQ()
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()
	data := m.fft.PowerSpectrum(iq, cfg.RefDBm)
	return spectrum.NewFrame(m.now().UnixMilli(), cfg.CenterFreqHz, cfg.SampleRateHz, data)
}

// Run announces a connection and config, then emits one frame per interval
// until ctx is done. It returns ctx.Err().
func (m *MockSource) Run(ctx context.Context) error {
	m.state.Store(int32(connectionmgr.StateStreaming))
	m.handler.OnConnect()
	m.handler.OnConfig(m.Config())
	m.logger.Info("simulated receiver streaming",
		logging.F("center_freq_hz", m.cfg.CenterFreqHz),
		logging.F("sample_rate_hz", m.cfg.SampleRateHz),
		logging.F("fft_size", m.cfg.FFTSize),
	)
	defer func() {
		m.state.Store(int32(connectionmgr.StateDisconnected))
		m.handler.OnDisconnect()
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		m.handler.OnFrame(m.Frame())
	}
}
