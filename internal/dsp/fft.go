package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// FloorDBm is reported for bins with zero magnitude so statistics stay finite.
const FloorDBm = -200.0

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// PowerSpectrum runs a Hamming-windowed FFT over IQ samples, normalizes by the
// window sum and returns per-bin power in dBm, lowest frequency first. refDBm
// is the power reported for a full-scale (magnitude 1) tone.
func PowerSpectrum(iq []complex64, refDBm float64) []float64 {
	if len(iq) == 0 {
		return []float64{}
	}
	win, _ := defaultCache.Get(WindowHamming, len(iq))
	coeffs := fourier.NewCmplxFFT(len(iq)).Coefficients(nil, applyWindowIQ(iq, win))
	return toDBm(coeffs, floats.Sum(win), refDBm)
}

func toDBm(coeffs []complex128, windowSum, refDBm float64) []float64 {
	for i := range coeffs {
		coeffs[i] /= complex(windowSum, 0)
	}
	shifted := FFTShift(coeffs)
	out := make([]float64, len(shifted))
	for i, v := range shifted {
		mag := cmplx.Abs(v)
		if mag == 0 {
			out[i] = FloorDBm
			continue
		}
		out[i] = math.Max(MagnitudeToDBm(mag, 1)+refDBm, FloorDBm)
	}
	return out
}
