package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes one power spectrum. All values are in dBm except PeakBin
// and Variance (dB squared).
type Stats struct {
	Peak       float64 `json:"peak"`
	PeakBin    int     `json:"peak_bin"`
	Min        float64 `json:"min"`
	Mean       float64 `json:"mean"`
	Variance   float64 `json:"variance"`
	Median     float64 `json:"median"`
	P25        float64 `json:"p25"`
	NoiseFloor float64 `json:"noise_floor"`
}

// ComputeStats returns the summary of data. Empty input yields zero Stats.
func ComputeStats(data []float64) Stats {
	if len(data) == 0 {
		return Stats{}
	}
	sorted := sortedCopy(data)
	mean, variance := stat.PopMeanVariance(data, nil)
	median := sorted[len(sorted)/2]
	p25 := Percentile(sorted, 0.25)
	return Stats{
		Peak:       floats.Max(data),
		PeakBin:    floats.MaxIdx(data),
		Min:        sorted[0],
		Mean:       mean,
		Variance:   variance,
		Median:     median,
		P25:        p25,
		NoiseFloor: math.Max(median, p25),
	}
}

// NoiseFloor estimates the background level of a spectrum as the higher of
// the median (upper middle element for even lengths) and the 25th percentile.
// It is never below the true median. Empty input returns -Inf.
func NoiseFloor(data []float64) float64 {
	if len(data) == 0 {
		return math.Inf(-1)
	}
	sorted := sortedCopy(data)
	return math.Max(sorted[len(sorted)/2], Percentile(sorted, 0.25))
}

// Percentile returns sorted[floor(n*p)], clamped to the slice. sorted must be
// in ascending order.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := int(math.Floor(float64(n) * p))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func sortedCopy(data []float64) []float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}
