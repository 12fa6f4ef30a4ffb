package spectrum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Errors returned by Decode and Unpack. Callers drop the frame on any of them.
var (
	ErrUndecodable = errors.New("spectrum: payload matches no known encoding")
	ErrTruncated   = errors.New("spectrum: buffer truncated")
	ErrBadMagic    = errors.New("spectrum: bad magic number")
	ErrUnsupported = errors.New("spectrum: unsupported header field")
)

// Encoding names the element layout a waterfall payload was decoded with.
type Encoding int

const (
	EncodingFloat32 Encoding = iota
	EncodingInt16
	EncodingUint8
)

func (e Encoding) String() string {
	switch e {
	case EncodingFloat32:
		return "float32"
	case EncodingInt16:
		return "int16"
	case EncodingUint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// Decode turns a receiver FFT payload (the bytes after the message-type tag)
// into power values in dBm. The element layout is inferred from the length:
//
//   - multiple of 4: little-endian float32, one value per element, used as is
//   - multiple of 2: little-endian int16, value/327.68 - 100
//   - otherwise:     uint8, (value-127)*0.5 - 60
//
// An empty payload is an error; no partial result is ever returned.
func Decode(payload []byte) ([]float64, Encoding, error) {
	n := len(payload)
	switch {
	case n == 0:
		return nil, 0, fmt.Errorf("%w: empty payload", ErrUndecodable)
	case n%4 == 0:
		return decodeFloat32(payload), EncodingFloat32, nil
	case n%2 == 0:
		return decodeInt16(payload), EncodingInt16, nil
	default:
		return decodeUint8(payload), EncodingUint8, nil
	}
}

func decodeFloat32(payload []byte) []float64 {
	out := make([]float64, len(payload)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(payload[i*4:])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out
}

func decodeInt16(payload []byte) []float64 {
	out := make([]float64, len(payload)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		out[i] = float64(v)/327.68 - 100
	}
	return out
}

func decodeUint8(payload []byte) []float64 {
	out := make([]float64, len(payload))
	for i, b := range payload {
		out[i] = (float64(b)-127)*0.5 - 60
	}
	return out
}
