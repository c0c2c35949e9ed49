// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/graft-ml/graft/internal/tensor"

// Eager kernels over host tensors. These are the same kernels the
// dispatch layer runs in native mode, so direct calls and replayed
// traces always agree.

// Add computes a + b with broadcasting.
func Add(a, b *Native) (*Native, error) { return tensor.Add(a, b) }

// Sub computes a - b with broadcasting.
func Sub(a, b *Native) (*Native, error) { return tensor.Sub(a, b) }

// Mul computes a * b element-wise with broadcasting.
func Mul(a, b *Native) (*Native, error) { return tensor.Mul(a, b) }

// Div computes a / b element-wise with broadcasting.
func Div(a, b *Native) (*Native, error) { return tensor.Div(a, b) }

// MatMul multiplies matrices, batching over leading dimensions.
func MatMul(a, b *Native) (*Native, error) { return tensor.MatMul(a, b) }

// Linear computes x @ w^T + bias; bias may be nil.
func Linear(x, w, bias *Native) (*Native, error) { return tensor.Linear(x, w, bias) }

// Sigmoid applies the logistic function element-wise.
func Sigmoid(x *Native) (*Native, error) { return tensor.Sigmoid(x) }

// Tanh applies tanh element-wise.
func Tanh(x *Native) (*Native, error) { return tensor.Tanh(x) }

// Relu applies max(0, x) element-wise.
func Relu(x *Native) (*Native, error) { return tensor.Relu(x) }

// Exp applies e^x element-wise.
func Exp(x *Native) (*Native, error) { return tensor.Exp(x) }

// Softmax normalizes along axis; negative axes count from the end.
func Softmax(x *Native, axis int) (*Native, error) { return tensor.Softmax(x, axis) }

// Reshape returns a view with a new shape; one dimension may be -1.
func Reshape(x *Native, shape Shape) (*Native, error) { return tensor.Reshape(x, shape) }

// Transpose permutes dimensions; a nil perm reverses them.
func Transpose(x *Native, perm []int) (*Native, error) { return tensor.Transpose(x, perm) }

// Concat joins tensors along axis.
func Concat(xs []*Native, axis int) (*Native, error) { return tensor.Concat(xs, axis) }

// Flatten collapses dimensions from startDim onward.
func Flatten(x *Native, startDim int) (*Native, error) { return tensor.Flatten(x, startDim) }

// Cast converts element types.
func Cast(x *Native, dtype DataType) (*Native, error) { return tensor.Cast(x, dtype) }
