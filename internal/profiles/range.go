package profiles

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Range is an inclusive frequency interval in MHz. It is written as a
// two-element [start, end] array in both JSON and YAML.
type Range struct {
	StartMHz float64
	EndMHz   float64
}

// Contains reports whether mhz lies in [StartMHz, EndMHz].
func (r Range) Contains(mhz float64) bool {
	return mhz >= r.StartMHz && mhz <= r.EndMHz
}

func (r Range) String() string {
	return fmt.Sprintf("%g-%g MHz", r.StartMHz, r.EndMHz)
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.StartMHz, r.EndMHz})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	return r.fromPair(pair)
}

func (r Range) MarshalYAML() (interface{}, error) {
	return []float64{r.StartMHz, r.EndMHz}, nil
}

func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	var pair []float64
	if err := node.Decode(&pair); err != nil {
		return fmt.Errorf("range at line %d: %w", node.Line, err)
	}
	return r.fromPair(pair)
}

func (r *Range) fromPair(pair []float64) error {
	if len(pair) != 2 {
		return fmt.Errorf("range needs [start, end], got %d values", len(pair))
	}
	r.StartMHz, r.EndMHz = pair[0], pair[1]
	return nil
}
