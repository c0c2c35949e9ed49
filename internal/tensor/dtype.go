// Package tensor provides the value model shared by both execution modes:
// host arrays, backend network handles, and trace-time constants.
package tensor

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// DataType represents runtime type information for tensor values.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float16
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// EncodeFloat16 packs float32 values into IEEE 754 half-precision bytes.
// dst must hold 2*len(src) bytes. Used at engine staging boundaries when an
// engine declares half-precision tensors but the host side works in float32.
func EncodeFloat16(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], float16.Fromfloat32(v).Bits())
	}
}

// DecodeFloat16 unpacks half-precision bytes into float32 values.
// src must hold 2*len(dst) bytes.
func DecodeFloat16(src []byte, dst []float32) {
	for i := range dst {
		dst[i] = float16.Frombits(binary.LittleEndian.Uint16(src[i*2:])).Float32()
	}
}
