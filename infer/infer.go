// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package infer runs compiled engines: buffers are allocated and bound
// lazily on first use, host inputs stage through pinned buffers, and
// outputs come back as fresh host tensors keyed by name in the engine's
// declared order.
//
//	ctx := infer.NewContext(engine)
//	defer ctx.Release()
//	res, err := ctx.Run(map[string]*tensor.Native{"x": x})
//	y, _ := res.Get("y")
package infer

import (
	"log/slog"

	"github.com/graft-ml/graft/internal/infer"
)

// Engine is a compiled graph: named tensors, execution contexts,
// streams, and device allocation.
type Engine = infer.Engine

// ExecContext binds buffers to engine tensors and launches execution.
type ExecContext = infer.ExecContext

// Stream orders asynchronous device work.
type Stream = infer.Stream

// DeviceBuffer is device-resident memory.
type DeviceBuffer = infer.DeviceBuffer

// PinnedBuffer is host staging memory.
type PinnedBuffer = infer.PinnedBuffer

// TensorInfo describes one engine tensor.
type TensorInfo = infer.TensorInfo

// Context drives an engine across runs, owning its buffers and stream.
type Context = infer.Context

// ContextOption configures a Context.
type ContextOption = infer.ContextOption

// DeviceTensor is a device-resident input or output.
type DeviceTensor = infer.DeviceTensor

// Results holds named host outputs in declared order.
type Results = infer.Results

// DeviceResults holds named device-resident outputs in declared order.
type DeviceResults = infer.DeviceResults

// State is the context lifecycle phase.
type State = infer.State

// Lifecycle phases.
const (
	Created  = infer.Created
	Bound    = infer.Bound
	Ready    = infer.Ready
	Running  = infer.Running
	Released = infer.Released
)

// Errors surfaced by context misuse and the device-resident path.
type (
	ContextReleasedError           = infer.ContextReleasedError
	UnsupportedDeviceOrStreamError = infer.UnsupportedDeviceOrStreamError
)

// NewContext wraps an engine; binding happens on the first run.
func NewContext(eng Engine, opts ...ContextOption) *Context {
	return infer.NewContext(eng, opts...)
}

// WithLogger routes context diagnostics to l.
func WithLogger(l *slog.Logger) ContextOption { return infer.WithLogger(l) }
