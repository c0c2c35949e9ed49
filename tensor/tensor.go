// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/graft-ml/graft/internal/tensor"
)

// Shape describes tensor dimensions, outermost first.
type Shape = tensor.Shape

// DataType identifies an element type.
type DataType = tensor.DataType

// Element types.
const (
	Float32 = tensor.Float32
	Float16 = tensor.Float16
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Device identifies where tensor data lives.
type Device = tensor.Device

// Devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// Value is the sealed sum of the three value kinds a replay produces:
// *Native, Handle, and *Const.
type Value = tensor.Value

// Native is a host array: contiguous bytes plus shape, strides, dtype.
type Native = tensor.Native

// Handle is a symbolic reference to an output inside a backend network
// under construction. It carries metadata, never data.
type Handle = tensor.Handle

// Const is a host literal that has not been materialized yet.
type Const = tensor.Const

// NewNative allocates a zeroed host tensor.
func NewNative(shape Shape, dtype DataType, device Device) (*Native, error) {
	return tensor.NewNative(shape, dtype, device)
}

// FromFloat32 builds a float32 host tensor from data; len(data) must
// equal the shape's element count.
func FromFloat32(data []float32, shape Shape) (*Native, error) {
	return tensor.FromFloat32(data, shape)
}

// FromFloat64 builds a float64 host tensor from data.
func FromFloat64(data []float64, shape Shape) (*Native, error) {
	return tensor.FromFloat64(data, shape)
}

// Scalar builds a rank-0 float32 tensor.
func Scalar(v float32) *Native { return tensor.Scalar(v) }

// NewHandle wraps a backend reference with the metadata its emitting
// handler inferred.
func NewHandle(ref any, name string, shape Shape, dtype DataType) Handle {
	return tensor.NewHandle(ref, name, shape, dtype)
}

// NewConst wraps a host literal.
func NewConst(lit *Native) *Const { return tensor.NewConst(lit) }

// ConstScalar wraps a scalar literal.
func ConstScalar(v float32) *Const { return tensor.ConstScalar(v) }

// AsNative unwraps a Value to its host array; a Handle cannot be
// unwrapped and returns an error naming it.
func AsNative(v Value) (*Native, error) { return tensor.AsNative(v) }

// BroadcastShapes computes the NumPy-style broadcast of a and b.
func BroadcastShapes(a, b Shape) (Shape, error) { return tensor.BroadcastShapes(a, b) }
