package dsp

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// CachedFFT keeps the Hamming window, its sum and the FFT plan for one size so
// a steady stream of equally sized IQ blocks does not rebuild them per block.
type CachedFFT struct {
	mu        sync.Mutex
	window    []float64
	windowSum float64
	fftSize   int
	fft       *fourier.CmplxFFT
}

// NewCachedFFT creates a power-spectrum engine for blocks of size samples.
func NewCachedFFT(size int) *CachedFFT {
	c := &CachedFFT{}
	c.resize(size)
	return c
}

func (c *CachedFFT) resize(size int) {
	c.fftSize = size
	c.window, _ = defaultCache.Get(WindowHamming, size)
	c.windowSum = floats.Sum(c.window)
	if size > 0 {
		c.fft = fourier.NewCmplxFFT(size)
	} else {
		c.fft = nil
	}
}

// PowerSpectrum is the cached equivalent of the package-level PowerSpectrum.
// Blocks of a different size fall back to the uncached path.
func (c *CachedFFT) PowerSpectrum(iq []complex64, refDBm float64) []float64 {
	if len(iq) == 0 {
		return []float64{}
	}
	c.mu.Lock()
	if len(iq) != c.fftSize {
		c.mu.Unlock()
		return PowerSpectrum(iq, refDBm)
	}
	coeffs := c.fft.Coefficients(nil, applyWindowIQ(iq, c.window))
	sum := c.windowSum
	c.mu.Unlock()
	return toDBm(coeffs, sum, refDBm)
}

// UpdateSize rebuilds the cached plan for a new block size.
func (c *CachedFFT) UpdateSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resize(size)
}

// Size returns the block size the plan was built for.
func (c *CachedFFT) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fftSize
}
