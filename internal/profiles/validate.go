package profiles

import (
	"fmt"
	"strings"
)

// ValidationResult lists every problem found in a profile. It is a value, not
// an error; it satisfies error only so Register can wrap it.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (v ValidationResult) Error() string {
	return "invalid profile: " + strings.Join(v.Errors, "; ")
}

// Validate checks name, ranges and step. Each range is checked for order
// and sign independently, so one range can contribute two errors.
func Validate(p Profile) ValidationResult {
	errs := []string{}

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "Profile name is required")
	}
	if len(p.Ranges) == 0 {
		errs = append(errs, "At least one frequency range is required")
	}
	for _, r := range p.Ranges {
		if r.StartMHz >= r.EndMHz {
			errs = append(errs, fmt.Sprintf("Invalid range: %g-%g MHz (start must be less than end)", r.StartMHz, r.EndMHz))
		}
		if r.StartMHz < 0 || r.EndMHz < 0 {
			errs = append(errs, fmt.Sprintf("Invalid range: %g-%g MHz (frequencies must be positive)", r.StartMHz, r.EndMHz))
		}
	}
	if !(p.StepHz > 0) {
		errs = append(errs, "Step size must be positive")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
