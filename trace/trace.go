// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package trace defines the recorded-graph data model: operations with
// backward-pointing input references, replayed by the convert package.
package trace

import "github.com/graft-ml/graft/internal/trace"

// Trace is a recorded computation: operations in execution order plus
// declared outputs.
type Trace = trace.Trace

// Operation is one recorded call.
type Operation = trace.Operation

// Ref points an operation input at a trace input, parameter, constant,
// or earlier operation output.
type Ref = trace.Ref

// RefKind discriminates Ref targets.
type RefKind = trace.RefKind

// Ref targets.
const (
	RefInput = trace.RefInput
	RefParam = trace.RefParam
	RefConst = trace.RefConst
	RefOp    = trace.RefOp
)

// Attrs carries an operation's static attributes.
type Attrs = trace.Attrs

// InputRef references the i-th trace input.
func InputRef(i int) Ref { return trace.InputRef(i) }

// ParamRef references a named parameter.
func ParamRef(name string) Ref { return trace.ParamRef(name) }

// ConstRef references the i-th trace constant.
func ConstRef(i int) Ref { return trace.ConstRef(i) }

// OpRef references output out of operation op.
func OpRef(op, out int) Ref { return trace.OpRef(op, out) }

// EnsureScopes assigns unique scopes to operations that lack one.
func EnsureScopes(tr *Trace) { trace.EnsureScopes(tr) }
