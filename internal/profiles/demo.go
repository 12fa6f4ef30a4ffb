package profiles

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// Demo signal parameter ranges.
const (
	demoMinSignals   = 3
	demoMaxSignals   = 8
	demoMinPowerDBm  = -80.0
	demoMaxPowerDBm  = -40.0
	demoMinBandwidth = 5e3
	demoMaxBandwidth = 50e3
	demoMinConf      = 0.3
	demoMaxConf      = 0.9
	demoNoiseDBm     = -90.0
)

// DemoGenerator synthesizes illustrative signals for a profile. It has no
// relation to real RF conditions.
type DemoGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewDemoGenerator uses rng for every draw. A nil rng is seeded from the
// clock.
func NewDemoGenerator(rng *rand.Rand) *DemoGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &DemoGenerator{rng: rng, now: time.Now}
}

// Generate returns 3 to 8 signals per range of p, strongest first.
func (g *DemoGenerator) Generate(p Profile) []spectrum.Signal {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UnixMilli()
	var out []spectrum.Signal
	for _, r := range p.Ranges {
		count := demoMinSignals + g.rng.Intn(demoMaxSignals-demoMinSignals+1)
		for i := 0; i < count; i++ {
			mhz := r.StartMHz + g.rng.Float64()*(r.EndMHz-r.StartMHz)
			power := g.uniform(demoMinPowerDBm, demoMaxPowerDBm)
			out = append(out, spectrum.Signal{
				ID:          "demo-" + uuid.NewString(),
				FrequencyHz: mhz * 1e6,
				PowerDBm:    power,
				BandwidthHz: g.uniform(demoMinBandwidth, demoMaxBandwidth),
				SNRDB:       power - demoNoiseDBm,
				Confidence:  g.uniform(demoMinConf, demoMaxConf),
				Timestamp:   ts,
				Demo:        true,
			})
		}
	}
	spectrum.SortByPower(out)
	return out
}

func (g *DemoGenerator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// GenerateDemoSignals synthesizes signals for p with the registry's generator.
func (r *Registry) GenerateDemoSignals(p Profile) []spectrum.Signal {
	r.mu.RLock()
	g := r.demo
	r.mu.RUnlock()
	return g.Generate(p)
}
