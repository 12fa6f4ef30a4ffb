package dsp

import "math"

// MagnitudeToDBm converts a linear magnitude to dB relative to ref.
// A non-positive ref is treated as 1.
func MagnitudeToDBm(m, ref float64) float64 {
	if ref <= 0 {
		ref = 1
	}
	return 20 * math.Log10(m/ref)
}

// DBmToMagnitude is the inverse of MagnitudeToDBm.
func DBmToMagnitude(dbm, ref float64) float64 {
	if ref <= 0 {
		ref = 1
	}
	return ref * math.Pow(10, dbm/20)
}
