// Package profiles is the catalog of named frequency bands used to scope
// scans. It answers membership queries, validates custom profiles and
// synthesizes demo signals when no live spectrum is available.
package profiles

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownProfile   = errors.New("profiles: unknown profile")
	ErrDuplicateProfile = errors.New("profiles: profile id already registered")
)

// Profile is a named set of frequency ranges. StepHz is always in Hz.
type Profile struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Ranges      []Range `yaml:"ranges" json:"ranges"`
	StepHz      float64 `yaml:"step_hz" json:"step_hz"`
	Description string  `yaml:"description" json:"description"`
}

// Contains reports whether hz falls inside any range, bounds inclusive.
func (p Profile) Contains(hz float64) bool {
	mhz := hz / 1e6
	for _, r := range p.Ranges {
		if r.Contains(mhz) {
			return true
		}
	}
	return false
}

func kHz(v float64) float64 { return v * 1e3 }

// Catalog returns the built-in profiles in their canonical order. Steps were
// historically written in kHz for every band.
func Catalog() []Profile {
	return []Profile{
		{ID: "vhf", Name: "VHF Amateur (144-148 MHz)", Ranges: []Range{{144, 148}}, StepHz: kHz(25), Description: "VHF Amateur Radio Band"},
		{ID: "uhf", Name: "UHF Amateur (420-450 MHz)", Ranges: []Range{{420, 450}}, StepHz: kHz(25), Description: "UHF Amateur Radio Band"},
		{ID: "ism", Name: "ISM Band (2.4 GHz)", Ranges: []Range{{2400, 2485}}, StepHz: kHz(1000), Description: "Industrial, Scientific, Medical Band"},
		{ID: "airband", Name: "Airband (118-137 MHz)", Ranges: []Range{{118, 137}}, StepHz: kHz(25), Description: "Aviation Communication Band"},
		{ID: "marine", Name: "Marine VHF (156-162 MHz)", Ranges: []Range{{156, 162}}, StepHz: kHz(25), Description: "Marine VHF Radio Band"},
		{ID: "gsm900", Name: "GSM 900 (880-960 MHz)", Ranges: []Range{{880, 915}, {925, 960}}, StepHz: kHz(200), Description: "GSM 900 MHz Band"},
		{ID: "gsm1800", Name: "GSM 1800 (1710-1880 MHz)", Ranges: []Range{{1710, 1785}, {1805, 1880}}, StepHz: kHz(200), Description: "GSM 1800 MHz Band"},
		{ID: "wifi5", Name: "WiFi 5 GHz (5150-5850 MHz)", Ranges: []Range{{5150, 5350}, {5470, 5850}}, StepHz: kHz(20000), Description: "5 GHz WiFi Bands"},
	}
}

// Registry holds profiles in registration order. The zero value is not
// usable; call NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]Profile
	demo     *DemoGenerator
}

// NewRegistry returns a registry seeded with Catalog.
func NewRegistry() *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
		demo:     NewDemoGenerator(nil),
	}
	for _, p := range Catalog() {
		r.order = append(r.order, p.ID)
		r.profiles[p.ID] = p
	}
	return r
}

// SetDemoGenerator replaces the generator used by GenerateDemoSignals. A nil
// generator is ignored.
func (r *Registry) SetDemoGenerator(g *DemoGenerator) {
	if g == nil {
		return
	}
	r.mu.Lock()
	r.demo = g
	r.mu.Unlock()
}

// Get returns the profile registered under id.
func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return p.clone(), true
}

// All returns every profile in catalog order, custom profiles last.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id].clone())
	}
	return out
}

// IDs returns the registered ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// IsFrequencyInProfile reports whether hz lies within profile id. Unknown ids
// are never a match.
func (r *Registry) IsFrequencyInProfile(hz float64, id string) bool {
	p, ok := r.Get(id)
	return ok && p.Contains(hz)
}

// ProfileForFrequency returns the id of the first profile, in order, whose
// ranges contain hz.
func (r *Registry) ProfileForFrequency(hz float64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.profiles[id].Contains(hz) {
			return id, true
		}
	}
	return "", false
}

// CreateCustomProfile builds an unregistered profile. An empty description
// becomes "Custom profile: <name>". The result is not validated.
func CreateCustomProfile(name string, ranges []Range, stepHz float64, description string) Profile {
	if description == "" {
		description = "Custom profile: " + name
	}
	return Profile{
		Name:        name,
		Ranges:      append([]Range(nil), ranges...),
		StepHz:      stepHz,
		Description: description,
	}
}

// Register validates p and adds it under id, after the existing profiles.
func (r *Registry) Register(id string, p Profile) error {
	if id == "" {
		return fmt.Errorf("register profile: empty id")
	}
	if res := Validate(p); !res.Valid {
		return fmt.Errorf("register profile %q: %w", id, res)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.profiles[id]; exists {
		return fmt.Errorf("register profile %q: %w", id, ErrDuplicateProfile)
	}
	p = p.clone()
	p.ID = id
	r.order = append(r.order, id)
	r.profiles[id] = p
	return nil
}

func (p Profile) clone() Profile {
	p.Ranges = append([]Range(nil), p.Ranges...)
	return p
}
