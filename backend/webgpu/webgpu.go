// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu is the WebGPU execution backend. The graph recorder is
// portable; compiling and running a recorded graph needs the native
// wgpu library and is only built where go-webgpu supports it.
//
//	net := webgpu.NewNetwork()
//	module.Emit(net, []string{"x"}, func(name string, _ int) (tensor.Handle, error) {
//	    return net.AddInput(name, tensor.Shape{1, 10}, tensor.Float32)
//	})
//	rt, err := webgpu.NewRuntime() // ErrUnavailable without a device
//	eng, err := webgpu.Compile(rt, net)
package webgpu

import (
	internalwebgpu "github.com/graft-ml/graft/internal/backend/webgpu"
)

// Network records layers, constants, and outputs during graph emission.
// It implements convert.Network.
type Network = internalwebgpu.Network

// Node is one recorded layer.
type Node = internalwebgpu.Node

// Input is a named graph entry point.
type Input = internalwebgpu.Input

// Constant is a host value baked into the graph.
type Constant = internalwebgpu.Constant

// ErrUnavailable reports a missing native library or adapter.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// UnsupportedLayerError reports a recorded kind with no device lowering.
type UnsupportedLayerError = internalwebgpu.UnsupportedLayerError

// NewNetwork returns an empty graph recorder.
func NewNetwork() *Network { return internalwebgpu.NewNetwork() }
