package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents where a value's memory lives.
type Device int

// Supported devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Native is a host-resident numeric array with shape, dtype and device
// metadata. It is the eager-mode currency of the dispatch engine: handlers
// evaluating natively consume and produce Natives.
type Native struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewNative allocates a zero-filled Native with the given shape and dtype.
func NewNative(shape Shape, dtype DataType, device Device) (*Native, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Native{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromFloat32 builds a float32 Native from a host slice. The data is copied.
func FromFloat32(data []float32, shape Shape) (*Native, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, got %d", shape, shape.NumElements(), len(data))
	}
	n, err := NewNative(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(n.AsFloat32(), data)
	return n, nil
}

// FromFloat64 builds a float64 Native from a host slice. The data is copied.
func FromFloat64(data []float64, shape Shape) (*Native, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, got %d", shape, shape.NumElements(), len(data))
	}
	n, err := NewNative(shape, Float64, CPU)
	if err != nil {
		return nil, err
	}
	copy(n.AsFloat64(), data)
	return n, nil
}

// Scalar builds a rank-0 float32 Native holding a single value.
func Scalar(v float32) *Native {
	n, _ := NewNative(Shape{}, Float32, CPU)
	n.AsFloat32()[0] = v
	return n
}

// Shape returns the value's shape.
func (n *Native) Shape() Shape { return n.shape }

// DType returns the value's data type.
func (n *Native) DType() DataType { return n.dtype }

// Device returns the device the memory lives on.
func (n *Native) Device() Device { return n.device }

// NumElements returns the total element count.
func (n *Native) NumElements() int { return n.shape.NumElements() }

// ByteSize returns the size of the backing storage in bytes.
func (n *Native) ByteSize() int { return n.NumElements() * n.dtype.Size() }

// Strides returns the row-major memory strides.
func (n *Native) Strides() []int { return n.stride }

// Bytes returns the raw backing storage.
func (n *Native) Bytes() []byte { return n.data }

// AsFloat32 interprets the storage as []float32. Panics on dtype mismatch.
func (n *Native) AsFloat32() []float32 {
	if n.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", n.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&n.data[0])), n.NumElements())
}

// AsFloat64 interprets the storage as []float64. Panics on dtype mismatch.
func (n *Native) AsFloat64() []float64 {
	if n.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", n.dtype))
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&n.data[0])), n.NumElements())
}

// AsInt32 interprets the storage as []int32. Panics on dtype mismatch.
func (n *Native) AsInt32() []int32 {
	if n.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", n.dtype))
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&n.data[0])), n.NumElements())
}

// AsInt64 interprets the storage as []int64. Panics on dtype mismatch.
func (n *Native) AsInt64() []int64 {
	if n.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", n.dtype))
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&n.data[0])), n.NumElements())
}

// Float32Values returns the contents as float32 regardless of dtype,
// converting where necessary. Used for verification and diagnostics.
func (n *Native) Float32Values() []float32 {
	switch n.dtype {
	case Float32:
		out := make([]float32, n.NumElements())
		copy(out, n.AsFloat32())
		return out
	case Float16:
		out := make([]float32, n.NumElements())
		DecodeFloat16(n.data, out)
		return out
	case Float64:
		src := n.AsFloat64()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return out
	default:
		panic(fmt.Sprintf("Float32Values: unsupported dtype %s", n.dtype))
	}
}

// Clone creates a deep copy.
func (n *Native) Clone() *Native {
	out := &Native{
		data:   make([]byte, len(n.data)),
		shape:  n.shape.Clone(),
		stride: append([]int(nil), n.stride...),
		dtype:  n.dtype,
		device: n.device,
	}
	copy(out.data, n.data)
	return out
}

// WithShape returns a view of the same storage under a different shape.
// The element counts must match.
func (n *Native) WithShape(shape Shape) (*Native, error) {
	if shape.NumElements() != n.NumElements() {
		return nil, fmt.Errorf("cannot view %v as %v: element count mismatch", n.shape, shape)
	}
	return &Native{
		data:   n.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  n.dtype,
		device: n.device,
	}, nil
}

// String returns a short description of the value.
func (n *Native) String() string {
	return fmt.Sprintf("Native[%s]%v on %s", n.dtype, n.shape, n.device)
}
