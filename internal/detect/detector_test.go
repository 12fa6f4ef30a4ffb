package detect

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/rjboer/GoSpectrum/internal/profiles"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

func flat(n int, level float64) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = level
	}
	return data
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d
}

func TestSingleRaisedBin(t *testing.T) {
	d := newDetector(t)
	const center, rate, n = 145e6, 2.4e6, 2048
	for _, bin := range []int{2, 17, 1024, n - 3} {
		data := flat(n, -95)
		data[bin] = DefaultThresholdDBm + DefaultMinSNRDB + 20
		f := spectrum.NewFrame(0, center, rate, data)

		got := d.Detect(f, nil)
		if len(got) != 1 {
			t.Fatalf("bin %d: expected 1 signal, got %d", bin, len(got))
		}
		want := center - rate/2 + float64(bin)*(rate/n)
		if got[0].FrequencyHz != want {
			t.Fatalf("bin %d: frequency %v want %v", bin, got[0].FrequencyHz, want)
		}
		if got[0].BandwidthHz != rate/n {
			t.Fatalf("bin %d: bandwidth %v", bin, got[0].BandwidthHz)
		}
	}
}

func TestEdgeBinsNeverDetected(t *testing.T) {
	d := newDetector(t)
	data := flat(64, -95)
	data[0], data[1], data[62], data[63] = -20, -30, -30, -20
	if got := d.Detect(spectrum.NewFrame(0, 100e6, 1e6, data), nil); len(got) != 0 {
		t.Fatalf("expected no detections at the edges, got %d", len(got))
	}
}

func TestFlatSpectrumHasNoSignals(t *testing.T) {
	for _, level := range []float64{-120, -70, -10, 0} {
		f := spectrum.NewFrame(0, 100e6, 1e6, flat(1024, level))
		for _, thr := range []float64{-200, -70, 10} {
			d, _ := New(Config{ThresholdDBm: thr, MinSNRDB: 0})
			if got := d.Detect(f, nil); len(got) != 0 {
				t.Fatalf("level %v threshold %v: got %d signals", level, thr, len(got))
			}
		}
	}
}

func TestShortSpectrum(t *testing.T) {
	d := newDetector(t)
	for n := 0; n < 5; n++ {
		data := flat(n, -100)
		if n > 0 {
			data[n/2] = 0
		}
		if got := d.Detect(spectrum.NewFrame(0, 100e6, 1e6, data), nil); len(got) != 0 {
			t.Fatalf("n=%d: got %d signals", n, len(got))
		}
	}
}

func TestFourBinBump(t *testing.T) {
	d := newDetector(t)
	data := flat(1024, -90)
	for i := 500; i <= 503; i++ {
		data[i] = -40
	}
	f := spectrum.NewFrame(0, 100e6, 1e6, data)

	got := d.Detect(f, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(got))
	}
	s := got[0]
	binWidth := 1e6 / 1024
	lo := 100e6 - 0.5e6 + 501*binWidth
	hi := 100e6 - 0.5e6 + 502*binWidth
	if s.FrequencyHz < lo || s.FrequencyHz > hi {
		t.Fatalf("frequency %v outside bins 501-502", s.FrequencyHz)
	}
	if math.Abs(s.BandwidthHz-4*binWidth) > 1e-9 {
		t.Fatalf("bandwidth %v, want %v", s.BandwidthHz, 4*binWidth)
	}
	if s.PowerDBm != -40 || s.SNRDB != 50 {
		t.Fatalf("power %v snr %v", s.PowerDBm, s.SNRDB)
	}
	if s.Confidence != 1 {
		t.Fatalf("confidence %v", s.Confidence)
	}
	if !strings.HasPrefix(s.ID, "sig-") || s.Demo {
		t.Fatalf("unexpected id/flag %+v", s)
	}
}

func TestPlateauTouchingEdgeIgnored(t *testing.T) {
	d := newDetector(t)
	data := flat(32, -90)
	for i := 28; i < 32; i++ {
		data[i] = -30
	}
	if got := d.Detect(spectrum.NewFrame(0, 100e6, 1e6, data), nil); len(got) != 0 {
		t.Fatalf("expected no detection, got %d", len(got))
	}
}

func TestThresholdAndSNRGate(t *testing.T) {
	data := flat(256, -100)
	data[50] = -75 // under threshold
	data[100] = -60
	data[150] = -30
	f := spectrum.NewFrame(0, 100e6, 1e6, data)

	d := newDetector(t)
	got := d.Detect(f, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(got))
	}
	if got[0].PowerDBm != -30 || got[1].PowerDBm != -60 {
		t.Fatalf("not sorted by power: %v, %v", got[0].PowerDBm, got[1].PowerDBm)
	}

	if err := d.SetMinSNR(50); err != nil {
		t.Fatalf("set min snr: %v", err)
	}
	got = d.Detect(f, nil)
	if len(got) != 1 || got[0].PowerDBm != -30 {
		t.Fatalf("expected only the strongest to pass a 50 dB SNR gate, got %d", len(got))
	}
}

func TestBandwidthWalk(t *testing.T) {
	data := flat(64, -100)
	copy(data[20:], []float64{-70, -52, -50, -48, -49, -51, -53, -80})
	d := newDetector(t)
	got := d.Detect(spectrum.NewFrame(0, 0, 64, data), nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(got))
	}
	// peak -48 at bin 23; bins 22..25 stay >= -51
	if got[0].BandwidthHz != 4 {
		t.Fatalf("bandwidth %v", got[0].BandwidthHz)
	}
	if got[0].FrequencyHz != -32+23 {
		t.Fatalf("frequency %v", got[0].FrequencyHz)
	}
}

func TestProfileFilter(t *testing.T) {
	data := flat(1000, -100)
	data[100] = -40 // 144.1 MHz
	data[900] = -45 // 144.9 MHz
	f := spectrum.NewFrame(0, 144.5e6, 1e6, data)

	p := profiles.Profile{Name: "lower", Ranges: []profiles.Range{{StartMHz: 144.0, EndMHz: 144.5}}, StepHz: 1}
	d := newDetector(t)
	got := d.Detect(f, &p)
	if len(got) != 1 || got[0].FrequencyHz != 144.1e6 {
		t.Fatalf("expected only the 144.1 MHz signal, got %+v", got)
	}

	// inclusive upper bound
	p.Ranges[0].EndMHz = 144.9
	if got = d.Detect(f, &p); len(got) != 2 {
		t.Fatalf("expected both signals with inclusive bound, got %d", len(got))
	}
}

func TestMaxSignals(t *testing.T) {
	data := flat(512, -100)
	for i := 10; i < 500; i += 20 {
		data[i] = -50 + float64(i)/100
	}
	d, _ := New(Config{ThresholdDBm: -70, MinSNRDB: 6, MaxSignals: 3})
	got := d.Detect(spectrum.NewFrame(0, 100e6, 1e6, data), nil)
	if len(got) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(got))
	}
	if got[0].PowerDBm < got[1].PowerDBm || got[1].PowerDBm < got[2].PowerDBm {
		t.Fatal("capped result must keep the strongest")
	}
}

func TestSettersRejectNonFinite(t *testing.T) {
	d := newDetector(t)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := d.SetThreshold(v); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("threshold %v: expected ErrInvalidParameter, got %v", v, err)
		}
		if err := d.SetMinSNR(v); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("min snr %v: expected ErrInvalidParameter, got %v", v, err)
		}
	}
	if err := d.SetMaxSignals(-1); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if cfg := d.Config(); cfg != DefaultConfig() {
		t.Fatalf("prior values not kept: %+v", cfg)
	}
	if err := d.SetThreshold(-80); err != nil || d.Config().ThresholdDBm != -80 {
		t.Fatalf("valid threshold rejected: %v", err)
	}
	if _, err := New(Config{ThresholdDBm: math.NaN()}); err == nil {
		t.Fatal("expected constructor to reject NaN")
	}
}

func TestDetectDoesNotMutateFrame(t *testing.T) {
	data := flat(64, -100)
	data[30] = -20
	orig := append([]float64(nil), data...)
	newDetector(t).Detect(spectrum.NewFrame(0, 0, 1, data), nil)
	for i := range data {
		if data[i] != orig[i] {
			t.Fatalf("bin %d modified", i)
		}
	}
}

func TestConcurrentDetectAndSet(t *testing.T) {
	d := newDetector(t)
	data := flat(1024, -100)
	data[512] = -20
	f := spectrum.NewFrame(0, 100e6, 1e6, data)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = d.SetThreshold(-70 + float64(i%10))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if got := d.Detect(f, nil); len(got) != 1 {
				t.Errorf("expected 1 signal, got %d", len(got))
				return
			}
		}
	}()
	wg.Wait()
}

func BenchmarkDetect(b *testing.B) {
	d, _ := New(DefaultConfig())
	data := flat(4096, -95)
	for i := 100; i < 4000; i += 250 {
		data[i] = -40
	}
	f := spectrum.NewFrame(0, 100e6, 2.4e6, data)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Detect(f, nil)
	}
}

func TestDetectWithOverridesOnce(t *testing.T) {
	d := newDetector(t)
	data := flat(64, -95)
	data[30] = -75
	f := spectrum.NewFrame(0, 100e6, 1e6, data)

	if got := d.Detect(f, nil); len(got) != 0 {
		t.Fatalf("default threshold should reject -75 dBm, got %d", len(got))
	}
	got, err := d.DetectWith(f, nil, Config{ThresholdDBm: -80, MinSNRDB: 6})
	if err != nil || len(got) != 1 {
		t.Fatalf("override: %v %d", err, len(got))
	}
	if d.Config().ThresholdDBm != DefaultThresholdDBm {
		t.Fatal("DetectWith changed the stored threshold")
	}
	if _, err := d.DetectWith(f, nil, Config{ThresholdDBm: math.NaN()}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}
