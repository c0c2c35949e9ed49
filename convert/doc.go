// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package convert turns recorded operation traces into backend networks,
// or replays them eagerly on the host, through one dispatch path.
//
// # Overview
//
// A Module binds a trace to its parameters. Invoked without an active
// network it evaluates natively; invoked while an Activation holds a
// Network it emits layers into that network instead, folding any
// operation whose inputs are all host-resident. The per-operation logic
// lives in a Registry of Handlers, each with a native branch and an
// emit branch.
//
// # Emitting a network
//
//	net := webgpu.NewNetwork()
//	outs, err := module.Emit(net, []string{"x"}, func(name string, _ int) (tensor.Handle, error) {
//	    return net.AddInput(name, tensor.Shape{1, 10}, tensor.Float32)
//	})
//
// # Eager replay
//
//	outs, err := module.Invoke(nil, []tensor.Value{x})
package convert
