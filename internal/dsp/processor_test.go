package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

func TestComputeStats(t *testing.T) {
	s := ComputeStats([]float64{-90, -80, -40, -80, -70})
	if s.Peak != -40 || s.PeakBin != 2 {
		t.Fatalf("peak %v at %d", s.Peak, s.PeakBin)
	}
	if s.Min != -90 {
		t.Fatalf("min %v", s.Min)
	}
	if math.Abs(s.Mean-(-72)) > 1e-12 {
		t.Fatalf("mean %v", s.Mean)
	}
	// population variance: (324+64+1024+64+4)/5
	if math.Abs(s.Variance-296) > 1e-9 {
		t.Fatalf("variance %v", s.Variance)
	}
	if s.Median != -80 || s.P25 != -80 || s.NoiseFloor != -80 {
		t.Fatalf("median %v p25 %v floor %v", s.Median, s.P25, s.NoiseFloor)
	}
	if (ComputeStats(nil) != Stats{}) {
		t.Fatal("expected zero stats for empty input")
	}
}

func TestNoiseFloorNeverBelowMedian(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(300)
		data := make([]float64, n)
		for i := range data {
			data[i] = -120 + rng.Float64()*100
		}
		sorted := sortedCopy(data)
		var median float64
		if n%2 == 1 {
			median = sorted[n/2]
		} else {
			median = (sorted[n/2-1] + sorted[n/2]) / 2
		}
		if nf := NoiseFloor(data); nf < median {
			t.Fatalf("n=%d: floor %v below median %v", n, nf, median)
		}
		if NoiseFloor(data) != ComputeStats(data).NoiseFloor {
			t.Fatalf("processor and standalone noise floor disagree")
		}
	}
	if !math.IsInf(NoiseFloor(nil), -1) {
		t.Fatal("expected -Inf for empty input")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if Percentile(sorted, 0.25) != 3 {
		t.Fatalf("p25 %v", Percentile(sorted, 0.25))
	}
	if Percentile(sorted, 1) != 8 || Percentile(sorted, -1) != 1 {
		t.Fatal("expected clamping")
	}
	if !math.IsNaN(Percentile(nil, 0.5)) {
		t.Fatal("expected NaN for empty input")
	}
}

func TestSmooth(t *testing.T) {
	out := Smooth([]float64{10, 0, 0}, 0.3)
	want := []float64{10, 7, 4.9}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Fatalf("index %d expected %v got %v", i, want[i], out[i])
		}
	}
	if len(Smooth(nil, 0.3)) != 0 {
		t.Fatal("expected empty output")
	}
}

func TestProcessorDoesNotMutateInput(t *testing.T) {
	p, err := NewProcessor(DefaultProcessorConfig(), nil)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	in := spectrum.NewFrame(1, 100e6, 1e6, []float64{-80, -60, -40, -60, -80})
	out, stats := p.Process(in)

	if in.Data[0] != -80 || in.Data[2] != -40 {
		t.Fatalf("input modified: %v", in.Data)
	}
	// Hann zeroes both ends and keeps the center.
	if out.Data[0] != 0 || out.Data[4] != 0 || math.Abs(out.Data[2]-(-40)) > 1e-12 {
		t.Fatalf("unexpected windowed data %v", out.Data)
	}
	if out.FFTSize != 5 || out.CenterFrequencyHz != 100e6 {
		t.Fatalf("metadata lost: %+v", out)
	}
	if stats.Peak != 0 {
		t.Fatalf("stats should describe processed data, peak %v", stats.Peak)
	}
}

func TestProcessorRectangularAndSmoothing(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{
		Windowing:       true,
		Window:          WindowRectangular,
		Smoothing:       true,
		SmoothingFactor: 0.5,
	}, NewWindowCache())
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	out, _ := p.Process(spectrum.NewFrame(0, 0, 1, []float64{-100, -60}))
	if out.Data[0] != -100 || out.Data[1] != -80 {
		t.Fatalf("unexpected data %v", out.Data)
	}
}

func TestProcessorConfigValidate(t *testing.T) {
	bad := []ProcessorConfig{
		{Windowing: true, Window: "kaiser"},
		{Smoothing: true, SmoothingFactor: 0},
		{Smoothing: true, SmoothingFactor: 1.5},
	}
	for i, cfg := range bad {
		if _, err := NewProcessor(cfg, nil); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if err := (ProcessorConfig{Window: "kaiser"}).Validate(); err != nil {
		t.Fatalf("window name is ignored when windowing is off: %v", err)
	}
}

func BenchmarkProcess(b *testing.B) {
	p, _ := NewProcessor(DefaultProcessorConfig(), nil)
	data := make([]float64, 4096)
	for i := range data {
		data[i] = -90 + float64(i%13)
	}
	f := spectrum.NewFrame(0, 100e6, 2.4e6, data)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process(f)
	}
}
