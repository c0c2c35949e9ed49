// Copyright 2026 The Graft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package convert

import (
	"log/slog"

	"github.com/graft-ml/graft/internal/convert"
	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Network is the contract a backend builder implements to receive
// emitted layers, constants, and output marks.
type Network = convert.Network

// Handler implements one traced operation in both modes.
type Handler = convert.Handler

// HandlerFuncs adapts plain functions to Handler; a nil Emit falls back
// to the native branch with materialized inputs.
type HandlerFuncs = convert.HandlerFuncs

// NativeFunc is the eager branch of a handler.
type NativeFunc = convert.NativeFunc

// EmitFunc is the network-construction branch of a handler.
type EmitFunc = convert.EmitFunc

// Registry maps operation names to handlers.
type Registry = convert.Registry

// Activation is the mode-context stack; nil means eager everywhere.
type Activation = convert.Activation

// Dispatcher replays traces through a registry.
type Dispatcher = convert.Dispatcher

// DispatcherOption configures a Dispatcher.
type DispatcherOption = convert.DispatcherOption

// Module binds a trace to its parameters behind one dispatch path.
type Module = convert.Module

// ModuleOption configures module construction.
type ModuleOption = convert.ModuleOption

// Filter selects parameters by inclusion and exclusion patterns.
type Filter = convert.Filter

// Error types surfaced by dispatch and emission.
type (
	UnsupportedOperationError       = convert.UnsupportedOperationError
	DanglingParameterReferenceError = convert.DanglingParameterReferenceError
	ModeContextMisuseError          = convert.ModeContextMisuseError
	ShapeOrDtypeMismatchError       = convert.ShapeOrDtypeMismatchError
)

// NewRegistry returns a registry pre-loaded with the default handler set.
func NewRegistry() *Registry { return convert.NewRegistry() }

// NewEmptyRegistry returns a registry with no handlers.
func NewEmptyRegistry() *Registry { return convert.NewEmptyRegistry() }

// NewActivation returns an empty mode-context stack.
func NewActivation() *Activation { return convert.NewActivation() }

// NewDispatcher builds a Dispatcher; a nil registry means the default set.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	return convert.NewDispatcher(registry, opts...)
}

// NewModule validates a trace, applies options, and binds parameters.
func NewModule(tr *trace.Trace, params map[string]*tensor.Native, opts ...ModuleOption) (*Module, error) {
	return convert.NewModule(tr, params, opts...)
}

// WithFilter restricts the parameters a module binds.
func WithFilter(f Filter) ModuleOption { return convert.WithFilter(f) }

// WithRegistry replaces the module's handler registry.
func WithRegistry(r *Registry) ModuleOption { return convert.WithRegistry(r) }

// WithModuleVerbose enables per-operation dispatch logging.
func WithModuleVerbose(v bool) ModuleOption { return convert.WithModuleVerbose(v) }

// WithModuleLogger routes dispatch logging to l.
func WithModuleLogger(l *slog.Logger) ModuleOption { return convert.WithModuleLogger(l) }

// WithVerbose enables per-operation dispatch logging on a Dispatcher.
func WithVerbose(v bool) DispatcherOption { return convert.WithVerbose(v) }

// WithLogger routes a Dispatcher's logging to l.
func WithLogger(l *slog.Logger) DispatcherOption { return convert.WithLogger(l) }

// AsHandle folds a host value into net as a constant and returns its
// handle; handles pass through unchanged.
func AsHandle(net Network, v tensor.Value, name string) (tensor.Handle, error) {
	return convert.AsHandle(net, v, name)
}

// VerifyOutputs compares native replay outputs against engine outputs
// within tol, reporting the first mismatch by output name.
func VerifyOutputs(names []string, native []tensor.Value, backend []*tensor.Native, tol float64) error {
	return convert.VerifyOutputs(names, native, backend, tol)
}
