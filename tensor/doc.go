// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the value model shared by graft's tracing,
// dispatch, and inference layers.
//
// # Overview
//
// Three kinds of value flow through a replayed graph:
//   - Native: a host array with shape, dtype, and strides
//   - Handle: a symbolic reference into a backend network under construction
//   - Const: a literal that stays host-side until an operation needs it
//
// Native values compute eagerly through the kernels in this package
// (Add, MatMul, Softmax, ...). Handles never hold data; they carry the
// shape and dtype the emitting handler inferred, plus an opaque backend
// reference.
//
// # Basic Usage
//
//	x, _ := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	y, _ := tensor.Sigmoid(x)
//	fmt.Println(y.Shape(), y.Float32Values())
package tensor
