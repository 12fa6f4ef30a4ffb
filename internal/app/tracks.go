package app

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// Track defaults.
const (
	DefaultMaxTracks        = 64
	DefaultTrackTimeout     = 30 * time.Second
	DefaultTrackToleranceHz = 10e3
	DefaultTrackHistory     = 50
)

// TrackingConfig controls how live detections are followed over time.
type TrackingConfig struct {
	MaxTracks int           `yaml:"max_tracks" json:"max_tracks"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// ToleranceHz is the minimum distance within which a detection updates an
	// existing track. Two bin widths are used when that is wider.
	ToleranceHz  float64 `yaml:"tolerance_hz" json:"tolerance_hz"`
	HistoryLimit int     `yaml:"history_limit" json:"history_limit"`
}

// DefaultTrackingConfig keeps up to 64 tracks, losing each after 30 s without
// a matching detection.
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		MaxTracks:    DefaultMaxTracks,
		Timeout:      DefaultTrackTimeout,
		ToleranceHz:  DefaultTrackToleranceHz,
		HistoryLimit: DefaultTrackHistory,
	}
}

// TrackLifecycle represents the lifecycle of a track.
type TrackLifecycle int

const (
	TrackTentative TrackLifecycle = iota
	TrackConfirmed
	TrackLost
)

func (l TrackLifecycle) String() string {
	switch l {
	case TrackTentative:
		return "tentative"
	case TrackConfirmed:
		return "confirmed"
	case TrackLost:
		return "lost"
	default:
		return "unknown"
	}
}

func (l TrackLifecycle) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *TrackLifecycle) UnmarshalText(b []byte) error {
	switch string(b) {
	case "tentative":
		*l = TrackTentative
	case "confirmed":
		*l = TrackConfirmed
	case "lost":
		*l = TrackLost
	default:
		return fmt.Errorf("unknown track state %q", b)
	}
	return nil
}

// Track follows one emitter across detections.
type Track struct {
	ID           int            `json:"id"`
	FrequencyHz  float64        `json:"frequency"`
	PowerDBm     float64        `json:"power"`
	PeakPowerDBm float64        `json:"peak_power"`
	SNRDB        float64        `json:"snr"`
	BandwidthHz  float64        `json:"bandwidth"`
	Confidence   float64        `json:"confidence"`
	Hits         int            `json:"hits"`
	History      []float64      `json:"power_history"`
	State        TrackLifecycle `json:"state"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
}

// TrackManager manages creation and lifecycle of tracks. It is safe for
// concurrent use.
type TrackManager struct {
	mu           sync.Mutex
	tracks       map[int]*Track
	order        []int
	nextID       int
	maxTracks    int
	timeout      time.Duration
	toleranceHz  float64
	historyLimit int
}

// NewTrackManager creates a track manager with lifecycle controls. Zero
// fields of cfg take their defaults.
func NewTrackManager(cfg TrackingConfig) *TrackManager {
	d := DefaultTrackingConfig()
	if cfg.MaxTracks <= 0 {
		cfg.MaxTracks = d.MaxTracks
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.ToleranceHz <= 0 {
		cfg.ToleranceHz = d.ToleranceHz
	}
	return &TrackManager{
		tracks:       make(map[int]*Track),
		nextID:       1,
		maxTracks:    cfg.MaxTracks,
		timeout:      cfg.Timeout,
		toleranceHz:  cfg.ToleranceHz,
		historyLimit: cfg.HistoryLimit,
	}
}

// Update folds one detection run into the tracks. binWidthHz is the width of
// the frame the signals came from.
func (tm *TrackManager) Update(signals []spectrum.Signal, binWidthHz float64, now time.Time) {
	if tm == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.expire(now)
	tolerance := math.Max(tm.toleranceHz, 2*binWidthHz)
	for _, s := range signals {
		tm.upsert(s, tolerance, now)
	}
}

func (tm *TrackManager) upsert(s spectrum.Signal, tolerance float64, now time.Time) {
	track := tm.findMatch(s.FrequencyHz, tolerance)
	if track == nil {
		if len(tm.tracks) >= tm.maxTracks {
			tm.dropOldest()
		}
		tm.newTrack(s, now)
		return
	}
	track.FrequencyHz = s.FrequencyHz
	track.PowerDBm = s.PowerDBm
	track.PeakPowerDBm = math.Max(track.PeakPowerDBm, s.PowerDBm)
	track.SNRDB = s.SNRDB
	track.BandwidthHz = s.BandwidthHz
	track.Confidence = s.Confidence
	track.Hits++
	track.State = nextLifecycle(track.State)
	track.LastSeen = now
	track.History = append(track.History, s.PowerDBm)
	if tm.historyLimit > 0 && len(track.History) > tm.historyLimit {
		track.History = track.History[len(track.History)-tm.historyLimit:]
	}
}

// Tracks returns a copy of managed tracks ordered by creation.
func (tm *TrackManager) Tracks() []Track {
	if tm == nil {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	result := make([]Track, 0, len(tm.tracks))
	for _, id := range tm.order {
		if track, ok := tm.tracks[id]; ok {
			t := *track
			t.History = append([]float64(nil), track.History...)
			result = append(result, t)
		}
	}
	return result
}

// Reset forgets every track.
func (tm *TrackManager) Reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tracks = make(map[int]*Track)
	tm.order = nil
}

func (tm *TrackManager) newTrack(s spectrum.Signal, now time.Time) {
	id := tm.nextID
	tm.nextID++
	tm.tracks[id] = &Track{
		ID:           id,
		FrequencyHz:  s.FrequencyHz,
		PowerDBm:     s.PowerDBm,
		PeakPowerDBm: s.PowerDBm,
		SNRDB:        s.SNRDB,
		BandwidthHz:  s.BandwidthHz,
		Confidence:   s.Confidence,
		Hits:         1,
		History:      []float64{s.PowerDBm},
		State:        TrackTentative,
		FirstSeen:    now,
		LastSeen:     now,
	}
	tm.order = append(tm.order, id)
}

func (tm *TrackManager) findMatch(hz, tolerance float64) *Track {
	var (
		best      *Track
		bestDelta = math.MaxFloat64
	)
	for _, track := range tm.tracks {
		if track.State == TrackLost {
			continue
		}
		delta := math.Abs(track.FrequencyHz - hz)
		if delta < bestDelta && delta <= tolerance {
			best = track
			bestDelta = delta
		}
	}
	return best
}

// dropOldest evicts the oldest lost track, or the oldest track when none is
// lost.
func (tm *TrackManager) dropOldest() {
	for i, id := range tm.order {
		if tm.tracks[id].State == TrackLost {
			tm.remove(i)
			return
		}
	}
	if len(tm.order) > 0 {
		tm.remove(0)
	}
}

func (tm *TrackManager) remove(i int) {
	delete(tm.tracks, tm.order[i])
	tm.order = append(tm.order[:i], tm.order[i+1:]...)
}

func (tm *TrackManager) expire(now time.Time) {
	for _, track := range tm.tracks {
		if track.State == TrackLost {
			continue
		}
		if now.Sub(track.LastSeen) > tm.timeout {
			track.State = TrackLost
		}
	}
}

func nextLifecycle(current TrackLifecycle) TrackLifecycle {
	switch current {
	case TrackTentative, TrackConfirmed:
		return TrackConfirmed
	case TrackLost:
		return TrackLost
	default:
		return TrackTentative
	}
}
