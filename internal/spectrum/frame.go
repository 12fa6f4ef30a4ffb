// Package spectrum holds the decoded power-spectrum data model, the decoder for
// receiver waterfall payloads, the packed wire format used between processes
// and the bounded buffer of recent frames.
package spectrum

import (
	"fmt"
	"sort"
)

// Compression identifies how a frame's data section is encoded on the wire.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionGzip Compression = 1
	CompressionZlib Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// MarshalText renders the compression tag by name.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a compression name.
func (c *Compression) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*c = CompressionNone
	case "gzip":
		*c = CompressionGzip
	case "zlib":
		*c = CompressionZlib
	default:
		return fmt.Errorf("unknown compression %q", string(b))
	}
	return nil
}

// Frame is one decoded power spectrum. Data holds FFTSize power values in dBm,
// lowest frequency first.
type Frame struct {
	Timestamp         int64       `json:"timestamp"` // ms since epoch
	CenterFrequencyHz float64     `json:"center_freq"`
	SampleRateHz      float64     `json:"sample_rate"`
	BandwidthHz       float64     `json:"bandwidth"`
	FFTSize           int         `json:"fft_size"`
	Data              []float64   `json:"fft_data"`
	Compression       Compression `json:"compression"`
}

// NewFrame builds a frame whose bandwidth defaults to the sample rate and whose
// size follows the data slice.
func NewFrame(timestampMs int64, centerHz, sampleRateHz float64, data []float64) Frame {
	return Frame{
		Timestamp:         timestampMs,
		CenterFrequencyHz: centerHz,
		SampleRateHz:      sampleRateHz,
		BandwidthHz:       sampleRateHz,
		FFTSize:           len(data),
		Data:              data,
		Compression:       CompressionNone,
	}
}

// Validate checks the frame size invariant.
func (f Frame) Validate() error {
	if len(f.Data) != f.FFTSize {
		return fmt.Errorf("frame has %d bins, fft_size says %d", len(f.Data), f.FFTSize)
	}
	return nil
}

// Clone returns a deep copy so the caller can read it while the original slot
// is being replaced.
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]float64, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}

// BinWidthHz is the frequency span covered by one bin.
func (f Frame) BinWidthHz() float64 {
	if len(f.Data) == 0 {
		return 0
	}
	return f.SampleRateHz / float64(len(f.Data))
}

// StartFrequencyHz is the frequency of bin 0.
func (f Frame) StartFrequencyHz() float64 {
	return f.CenterFrequencyHz - f.SampleRateHz/2
}

// BinFrequencyHz maps a bin index to an absolute frequency.
func (f Frame) BinFrequencyHz(bin int) float64 {
	return f.StartFrequencyHz() + float64(bin)*f.BinWidthHz()
}

// Signal is one detected (or synthesized) emission.
type Signal struct {
	ID          string  `json:"id"`
	FrequencyHz float64 `json:"frequency"`
	PowerDBm    float64 `json:"power"`
	BandwidthHz float64 `json:"bandwidth"`
	SNRDB       float64 `json:"snr"`
	Confidence  float64 `json:"confidence"`
	Timestamp   int64   `json:"timestamp"`
	Demo        bool    `json:"demo,omitempty"`
}

// SortByPower orders signals strongest first. Equal powers keep their
// original (ascending frequency) order.
func SortByPower(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].PowerDBm > signals[j].PowerDBm
	})
}
