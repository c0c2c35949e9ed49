// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgpu

import (
	internalwebgpu "github.com/graft-ml/graft/internal/backend/webgpu"
)

// Runtime owns the device, queue, and pipeline caches.
type Runtime = internalwebgpu.Runtime

// Engine is a compiled graph; it implements infer.Engine.
type Engine = internalwebgpu.Engine

// NewRuntime initializes WebGPU, returning ErrUnavailable when no
// device can be reached.
func NewRuntime() (*Runtime, error) { return internalwebgpu.NewRuntime() }

// Compile lowers a recorded network onto the runtime's device.
func Compile(rt *Runtime, net *Network) (*Engine, error) {
	return internalwebgpu.Compile(rt, net)
}
