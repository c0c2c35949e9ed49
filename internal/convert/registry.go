package convert

import (
	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Handler implements one operation name in both modes. Handlers must return
// a slice even for single-output operations, and must not mutate inputs.
type Handler interface {
	// EvaluateNative computes the operation eagerly over host values.
	EvaluateNative(inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error)

	// EmitIntoNetwork appends equivalent layer(s) to net and returns
	// backend handles. Handlers without a network-construction branch
	// for a given input shape may fall back to EvaluateNative
	// themselves; that is a handler-local decision, not engine policy.
	EmitIntoNetwork(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error)
}

// NativeFunc is the eager branch of a handler.
type NativeFunc func(inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error)

// EmitFunc is the emission branch of a handler.
type EmitFunc func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error)

// HandlerFuncs adapts a pair of functions into a Handler. A nil Emit falls
// back to the native branch, for operations that never need a layer (pure
// metadata ops, or ops only ever reached with host inputs).
type HandlerFuncs struct {
	Native NativeFunc
	Emit   EmitFunc
}

// EvaluateNative calls the native branch.
func (h HandlerFuncs) EvaluateNative(inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
	return h.Native(inputs, attrs, scope)
}

// EmitIntoNetwork calls the emission branch, or the native branch when none
// exists.
func (h HandlerFuncs) EmitIntoNetwork(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
	if h.Emit == nil {
		return h.Native(inputs, attrs, scope)
	}
	return h.Emit(net, inputs, attrs, scope)
}

// Registry maps operation names to handlers. Registration happens at
// process start; the table is read-only during dispatch, so lookups need no
// synchronization.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a registry pre-populated with the default operation
// set.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	return r
}

// NewEmptyRegistry returns a registry with no handlers. Used by tests and
// by callers composing a fully custom operation set.
func NewEmptyRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register stores handler under name, silently overwriting any previous
// registration. Overwriting is intentional: extension packages replace
// default handlers with specialized ones.
func (r *Registry) Register(name string, handler Handler) {
	r.handlers[name] = handler
}

// Lookup resolves the handler for an operation. scope is carried into the
// error so a failure can be located in the traced graph.
func (r *Registry) Lookup(name, scope string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, &UnsupportedOperationError{Op: name, Scope: scope}
	}
	return h, nil
}

// Supported returns the registered operation names.
func (r *Registry) Supported() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
