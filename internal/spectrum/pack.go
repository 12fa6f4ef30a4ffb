package spectrum

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Packed frame layout. All header fields are big-endian.
const (
	Magic         uint32 = 0x48524654 // "HRFT"
	FormatVersion uint32 = 1
	HeaderSize           = 32

	dataTypeFloat32 uint8 = 0
)

// Pack encodes a frame as a 32-byte header followed by one big-endian float32
// per bin, uncompressed.
func Pack(f Frame) []byte {
	out, _ := PackWith(f, CompressionNone)
	return out
}

// PackWith is Pack with a compressed data section. The header is never
// compressed.
func PackWith(f Frame, c Compression) ([]byte, error) {
	data := make([]byte, len(f.Data)*4)
	for i, v := range f.Data {
		binary.BigEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
	}

	var body []byte
	switch c {
	case CompressionNone:
		body = data
	case CompressionGzip, CompressionZlib:
		var err error
		if body, err = compress(data, c); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}

	out := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(out[0:], Magic)
	binary.BigEndian.PutUint32(out[4:], FormatVersion)
	binary.BigEndian.PutUint32(out[8:], math.Float32bits(float32(f.Timestamp)))
	binary.BigEndian.PutUint32(out[12:], math.Float32bits(float32(f.CenterFrequencyHz)))
	binary.BigEndian.PutUint32(out[16:], math.Float32bits(float32(f.SampleRateHz)))
	binary.BigEndian.PutUint32(out[20:], uint32(len(f.Data)))
	out[24] = dataTypeFloat32
	out[25] = uint8(c)
	// bytes 26..31 reserved, left zero
	return append(out, body...), nil
}

// Unpack parses a packed frame. The magic number is checked before any other
// header field is trusted.
func Unpack(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(buf), HeaderSize)
	}
	if magic := binary.BigEndian.Uint32(buf[0:]); magic != Magic {
		return Frame{}, fmt.Errorf("%w: 0x%08x", ErrBadMagic, magic)
	}
	if version := binary.BigEndian.Uint32(buf[4:]); version != FormatVersion {
		return Frame{}, fmt.Errorf("%w: version %d", ErrUnsupported, version)
	}
	if dt := buf[24]; dt != dataTypeFloat32 {
		return Frame{}, fmt.Errorf("%w: data type %d", ErrUnsupported, dt)
	}

	bins := binary.BigEndian.Uint32(buf[20:])
	need := int64(bins) * 4
	c := Compression(buf[25])

	var data []byte
	switch c {
	case CompressionNone:
		if int64(len(buf)-HeaderSize) < need {
			return Frame{}, fmt.Errorf("%w: %d data bytes, header announces %d bins", ErrTruncated, len(buf)-HeaderSize, bins)
		}
		data = buf[HeaderSize : HeaderSize+int(need)]
	case CompressionGzip, CompressionZlib:
		var err error
		if data, err = decompress(buf[HeaderSize:], c, need); err != nil {
			return Frame{}, err
		}
		if int64(len(data)) < need {
			return Frame{}, fmt.Errorf("%w: %d decompressed bytes, header announces %d bins", ErrTruncated, len(data), bins)
		}
	default:
		return Frame{}, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}

	values := make([]float64, bins)
	for i := range values {
		values[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(data[i*4:])))
	}

	sampleRate := float64(math.Float32frombits(binary.BigEndian.Uint32(buf[16:])))
	return Frame{
		Timestamp:         int64(math.Float32frombits(binary.BigEndian.Uint32(buf[8:]))),
		CenterFrequencyHz: float64(math.Float32frombits(binary.BigEndian.Uint32(buf[12:]))),
		SampleRateHz:      sampleRate,
		BandwidthHz:       sampleRate,
		FFTSize:           int(bins),
		Data:              values,
		Compression:       c,
	}, nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	if c == CompressionGzip {
		w = gzip.NewWriter(&buf)
	} else {
		w = zlib.NewWriter(&buf)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress %s: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress %s: %w", c, err)
	}
	return buf.Bytes(), nil
}

func decompress(body []byte, c Compression, limit int64) ([]byte, error) {
	var r io.ReadCloser
	var err error
	if c == CompressionGzip {
		r, err = gzip.NewReader(bytes.NewReader(body))
	} else {
		r, err = zlib.NewReader(bytes.NewReader(body))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s data section: %v", ErrTruncated, c, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %s data section: %v", ErrTruncated, c, err)
	}
	return data, nil
}
