package dsp

import (
	"math"
	"testing"
)

func tone(n, bin int, amp float64) []complex64 {
	data := make([]complex64, n)
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * float64(bin*i) / float64(n)
		data[i] = complex64(complex(amp*math.Cos(phase), amp*math.Sin(phase)))
	}
	return data
}

func TestPowerSpectrumPeak(t *testing.T) {
	n := 8
	db := PowerSpectrum(tone(n, 1, 1), 0)
	if len(db) != n {
		t.Fatalf("unexpected length %d", len(db))
	}
	maxIdx := 0
	for i, v := range db {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("bin %d not finite: %v", i, v)
		}
		if v > db[maxIdx] {
			maxIdx = i
		}
	}
	expectedIdx := n/2 + 1
	if maxIdx != expectedIdx {
		t.Fatalf("expected peak at %d got %d", expectedIdx, maxIdx)
	}
}

func TestPowerSpectrumReferenceLevel(t *testing.T) {
	n := 256
	db := PowerSpectrum(tone(n, 16, 0.01), -10)
	peak := db[n/2+16]
	// amplitude 0.01 is -40 dB below full scale
	if math.Abs(peak-(-50)) > 0.5 {
		t.Fatalf("expected peak near -50 dBm, got %.2f", peak)
	}
}

func TestPowerSpectrumSilence(t *testing.T) {
	db := PowerSpectrum(make([]complex64, 16), 0)
	for i, v := range db {
		if v != FloorDBm {
			t.Fatalf("bin %d: expected floor, got %v", i, v)
		}
	}
	if len(PowerSpectrum(nil, 0)) != 0 {
		t.Fatal("expected empty output for empty input")
	}
}

func TestFFTShift(t *testing.T) {
	in := []complex128{0, 1, 2, 3}
	out := FFTShift(in)
	expected := []complex128{2, 3, 0, 1}
	for i := range expected {
		if out[i] != expected[i] {
			t.Fatalf("index %d expected %v got %v", i, expected[i], out[i])
		}
	}
	if in[0] != 0 {
		t.Fatal("input modified")
	}
}

func TestMagnitudeConversions(t *testing.T) {
	if v := MagnitudeToDBm(10, 1); math.Abs(v-20) > 1e-12 {
		t.Fatalf("got %v", v)
	}
	if v := MagnitudeToDBm(0.5, 0.5); v != 0 {
		t.Fatalf("got %v", v)
	}
	for _, dbm := range []float64{-120, -60, 0, 13.5} {
		back := MagnitudeToDBm(DBmToMagnitude(dbm, 2), 2)
		if math.Abs(back-dbm) > 1e-9 {
			t.Fatalf("round trip %v -> %v", dbm, back)
		}
	}
}
