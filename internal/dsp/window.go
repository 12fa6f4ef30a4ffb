// Package dsp holds the spectrum processing stage: window functions and their
// coefficient cache, exponential smoothing, summary statistics with the shared
// noise-floor estimate, dB conversions and the IQ-to-power FFT used by the
// simulator.
package dsp

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// WindowType selects a window function.
type WindowType string

const (
	WindowHann        WindowType = "hann"
	WindowHamming     WindowType = "hamming"
	WindowBlackman    WindowType = "blackman"
	WindowRectangular WindowType = "rectangular"
)

// ParseWindowType accepts a window name case-insensitively.
func ParseWindowType(s string) (WindowType, error) {
	w := WindowType(strings.ToLower(strings.TrimSpace(s)))
	switch w {
	case WindowHann, WindowHamming, WindowBlackman, WindowRectangular:
		return w, nil
	}
	return "", fmt.Errorf("unknown window type %q", s)
}

// Generate returns the n coefficients of the window.
// If n is zero or negative, an empty slice is returned. A single-point window
// is [1] for every type.
func Generate(w WindowType, n int) ([]float64, error) {
	if n <= 0 {
		return []float64{}, nil
	}
	win := make([]float64, n)
	if n == 1 {
		win[0] = 1
		return win, nil
	}
	den := float64(n - 1)
	switch w {
	case WindowHann:
		for i := range win {
			win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/den)
		}
	case WindowHamming:
		for i := range win {
			win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/den)
		}
	case WindowBlackman:
		for i := range win {
			x := float64(i) / den
			win[i] = 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
		}
	case WindowRectangular:
		for i := range win {
			win[i] = 1
		}
	default:
		return nil, fmt.Errorf("unknown window type %q", w)
	}
	return win, nil
}

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	win, _ := Generate(WindowHamming, n)
	return win
}

type windowKey struct {
	typ WindowType
	n   int
}

// WindowCache keeps window coefficients per (type, length). Reads share a lock;
// a miss computes the window outside the lock and stores it. Two goroutines
// missing the same key both compute identical coefficients and the last store
// wins.
type WindowCache struct {
	mu      sync.RWMutex
	windows map[windowKey][]float64
}

// NewWindowCache creates an empty cache.
func NewWindowCache() *WindowCache {
	return &WindowCache{windows: make(map[windowKey][]float64)}
}

var defaultCache = NewWindowCache()

// Get returns the cached coefficients, generating them on first use. The
// returned slice is shared and must not be modified.
func (c *WindowCache) Get(w WindowType, n int) ([]float64, error) {
	key := windowKey{typ: w, n: n}
	c.mu.RLock()
	win, ok := c.windows[key]
	c.mu.RUnlock()
	if ok {
		return win, nil
	}

	win, err := Generate(w, n)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.windows[key] = win
	c.mu.Unlock()
	return win, nil
}

// Len reports how many windows are cached.
func (c *WindowCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.windows)
}

// ApplyWindow multiplies data by the window elementwise into a new slice.
// The window length must match the input length.
func ApplyWindow(data, window []float64) []float64 {
	if len(data) != len(window) {
		return []float64{}
	}
	out := make([]float64, len(data))
	floats.MulTo(out, data, window)
	return out
}

// applyWindowIQ multiplies complex samples by a real window.
func applyWindowIQ(samples []complex64, window []float64) []complex128 {
	if len(samples) != len(window) {
		return []complex128{}
	}
	out := make([]complex128, len(samples))
	for i, v := range samples {
		out[i] = complex(float64(real(v))*window[i], float64(imag(v))*window[i])
	}
	return out
}
