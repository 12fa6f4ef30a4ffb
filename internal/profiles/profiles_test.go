package profiles

import (
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestCatalogOrderAndSteps(t *testing.T) {
	r := NewRegistry()
	want := []string{"vhf", "uhf", "ism", "airband", "marine", "gsm900", "gsm1800", "wifi5"}
	ids := r.IDs()
	if len(ids) != len(want) {
		t.Fatalf("expected %d profiles, got %v", len(want), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("position %d: expected %s got %s", i, want[i], ids[i])
		}
	}

	steps := map[string]float64{"vhf": 25e3, "ism": 1e6, "gsm900": 200e3, "wifi5": 20e6}
	for id, hz := range steps {
		p, ok := r.Get(id)
		if !ok || p.StepHz != hz {
			t.Fatalf("%s: step %v, want %v", id, p.StepHz, hz)
		}
	}
	for _, p := range r.All() {
		if res := Validate(p); !res.Valid {
			t.Fatalf("catalog profile %s invalid: %v", p.ID, res.Errors)
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	p, _ := r.Get("vhf")
	p.Ranges[0].StartMHz = 1
	again, _ := r.Get("vhf")
	if again.Ranges[0].StartMHz != 144 {
		t.Fatal("caller mutation leaked into registry")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("unknown id reported present")
	}
}

func TestIsFrequencyInProfileInclusive(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		hz   float64
		id   string
		want bool
	}{
		{144e6, "vhf", true},
		{148e6, "vhf", true},
		{146.52e6, "vhf", true},
		{143.999e6, "vhf", false},
		{148.001e6, "vhf", false},
		{920e6, "gsm900", false},
		{925e6, "gsm900", true},
		{915e6, "gsm900", true},
		{146e6, "missing", false},
	}
	for _, tc := range cases {
		if got := r.IsFrequencyInProfile(tc.hz, tc.id); got != tc.want {
			t.Fatalf("%v in %s: got %v want %v", tc.hz, tc.id, got, tc.want)
		}
	}
}

func TestProfileForFrequency(t *testing.T) {
	r := NewRegistry()
	if id, ok := r.ProfileForFrequency(121.5e6); !ok || id != "airband" {
		t.Fatalf("got %q %v", id, ok)
	}
	if id, ok := r.ProfileForFrequency(1800e6); ok {
		t.Fatalf("gap between gsm1800 ranges matched %q", id)
	}
	if _, ok := r.ProfileForFrequency(10e6); ok {
		t.Fatal("expected no match")
	}
}

func TestProfileForFrequencyFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	custom := CreateCustomProfile("2m wide", []Range{{140, 150}}, 12.5e3, "")
	if err := r.Register("wide2m", custom); err != nil {
		t.Fatalf("register: %v", err)
	}
	if id, _ := r.ProfileForFrequency(145e6); id != "vhf" {
		t.Fatalf("expected catalog profile to win, got %s", id)
	}
	if id, _ := r.ProfileForFrequency(141e6); id != "wide2m" {
		t.Fatalf("expected custom profile, got %s", id)
	}
}

func TestValidateEmptyProfile(t *testing.T) {
	res := Validate(Profile{Name: "", Ranges: nil, StepHz: 0})
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if len(res.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %v", res.Errors)
	}
}

func TestValidateInvertedAndNegativeRanges(t *testing.T) {
	res := Validate(Profile{Name: "x", Ranges: []Range{{10, 5}}, StepHz: 1})
	if res.Valid || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "start must be less than end") {
		t.Fatalf("unexpected result %+v", res)
	}

	res = Validate(Profile{Name: "x", Ranges: []Range{{-5, -1}}, StepHz: 1})
	if res.Valid || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "positive") {
		t.Fatalf("unexpected result %+v", res)
	}

	res = Validate(Profile{Name: "x", Ranges: []Range{{5, 5}}, StepHz: 1})
	if res.Valid {
		t.Fatal("zero-width range must be rejected")
	}
}

func TestCreateCustomProfileAndRegister(t *testing.T) {
	p := CreateCustomProfile("PMR446", []Range{{446.0, 446.2}}, 12.5e3, "")
	if p.Description != "Custom profile: PMR446" {
		t.Fatalf("default description %q", p.Description)
	}

	r := NewRegistry()
	if err := r.Register("pmr", p); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("pmr", p); !errors.Is(err, ErrDuplicateProfile) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	bad := CreateCustomProfile("", nil, 0, "broken")
	var res ValidationResult
	if err := r.Register("bad", bad); !errors.As(err, &res) || len(res.Errors) != 3 {
		t.Fatalf("expected validation failure, got %v", err)
	}
	ids := r.IDs()
	if ids[len(ids)-1] != "pmr" {
		t.Fatalf("custom profile not appended: %v", ids)
	}
	got, _ := r.Get("pmr")
	if got.ID != "pmr" {
		t.Fatalf("id not stamped: %+v", got)
	}
}

func TestDemoSignals(t *testing.T) {
	r := NewRegistry()
	r.SetDemoGenerator(NewDemoGenerator(rand.New(rand.NewSource(42))))
	p, _ := r.Get("gsm900")

	for trial := 0; trial < 50; trial++ {
		signals := r.GenerateDemoSignals(p)
		if len(signals) < 2*demoMinSignals || len(signals) > 2*demoMaxSignals {
			t.Fatalf("unexpected count %d", len(signals))
		}
		seen := map[string]bool{}
		for i, s := range signals {
			if !p.Contains(s.FrequencyHz) {
				t.Fatalf("signal %v outside profile", s.FrequencyHz)
			}
			if s.PowerDBm < -80 || s.PowerDBm > -40 {
				t.Fatalf("power %v", s.PowerDBm)
			}
			if s.BandwidthHz < 5e3 || s.BandwidthHz > 50e3 {
				t.Fatalf("bandwidth %v", s.BandwidthHz)
			}
			if s.Confidence < 0.3 || s.Confidence > 0.9 {
				t.Fatalf("confidence %v", s.Confidence)
			}
			if !s.Demo || !strings.HasPrefix(s.ID, "demo-") || seen[s.ID] {
				t.Fatalf("bad id/flag %+v", s)
			}
			seen[s.ID] = true
			if i > 0 && signals[i-1].PowerDBm < s.PowerDBm {
				t.Fatal("signals not sorted by power")
			}
		}
	}
}

func TestSetDemoGeneratorIgnoresNil(t *testing.T) {
	r := NewRegistry()
	r.SetDemoGenerator(nil)
	p, _ := r.Get("vhf")
	if n := len(r.GenerateDemoSignals(p)); n < demoMinSignals || n > demoMaxSignals {
		t.Fatalf("unexpected count %d after nil generator", n)
	}
}

func TestDemoSignalCountPerRange(t *testing.T) {
	g := NewDemoGenerator(rand.New(rand.NewSource(1)))
	p := Profile{Name: "one", Ranges: []Range{{100, 101}}, StepHz: 1}
	counts := map[int]bool{}
	for i := 0; i < 500; i++ {
		n := len(g.Generate(p))
		if n < 3 || n > 8 {
			t.Fatalf("count %d outside 3..8", n)
		}
		counts[n] = true
	}
	if !counts[3] || !counts[8] {
		t.Fatalf("expected both bounds to occur, saw %v", counts)
	}
}

func TestRangeEncoding(t *testing.T) {
	b, err := json.Marshal(Profile{Name: "x", Ranges: []Range{{1, 2}}, StepHz: 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"ranges":[[1,2]]`) {
		t.Fatalf("unexpected json %s", b)
	}

	var p Profile
	src := "name: ham\nranges:\n  - [144, 146]\n  - [430, 440]\nstep_hz: 12500\n"
	if err := yaml.Unmarshal([]byte(src), &p); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(p.Ranges) != 2 || p.Ranges[1].EndMHz != 440 || p.StepHz != 12500 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if err := yaml.Unmarshal([]byte("ranges:\n  - [1, 2, 3]\n"), &p); err == nil {
		t.Fatal("expected error for three-element range")
	}
}
