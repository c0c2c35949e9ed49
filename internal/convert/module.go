package convert

import (
	"fmt"
	"log/slog"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Module binds a trace to its filtered parameters and exposes it as a
// repeatedly-callable unit. A module is built once per traced callable and
// example input shape; invoking it with differently-shaped inputs silently
// invalidates correctness and requires re-tracing. The core does not
// enforce this.
type Module struct {
	tr         *trace.Trace
	params     map[string]*tensor.Native
	dispatcher *Dispatcher
}

// ModuleOption configures module construction.
type ModuleOption func(*moduleConfig)

type moduleConfig struct {
	filter   Filter
	registry *Registry
	verbose  bool
	logger   *slog.Logger
}

// WithFilter sets the parameter include/exclude patterns.
func WithFilter(f Filter) ModuleOption {
	return func(c *moduleConfig) { c.filter = f }
}

// WithRegistry selects a handler registry other than the default set.
func WithRegistry(r *Registry) ModuleOption {
	return func(c *moduleConfig) { c.registry = r }
}

// WithModuleVerbose enables per-operation trace logging for every
// invocation of the module.
func WithModuleVerbose(v bool) ModuleOption {
	return func(c *moduleConfig) { c.verbose = v }
}

// WithModuleLogger sets the logger used for verbose tracing.
func WithModuleLogger(l *slog.Logger) ModuleOption {
	return func(c *moduleConfig) { c.logger = l }
}

// NewModule validates tr, applies parameter filtering, and verifies that no
// retained operation references a filtered-out parameter.
func NewModule(tr *trace.Trace, params map[string]*tensor.Native, opts ...ModuleOption) (*Module, error) {
	cfg := moduleConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trace: %w", err)
	}
	trace.EnsureScopes(tr)

	kept, err := cfg.filter.Apply(params)
	if err != nil {
		return nil, err
	}

	// Every retained operation must still resolve its parameters.
	for i := range tr.Ops {
		op := &tr.Ops[i]
		for _, in := range op.Inputs {
			if in.Kind == trace.RefParam {
				if _, ok := kept[in.Name]; !ok {
					return nil, &DanglingParameterReferenceError{Param: in.Name, Scope: op.Scope}
				}
			}
		}
	}

	return &Module{
		tr:     tr,
		params: kept,
		dispatcher: NewDispatcher(cfg.registry,
			WithVerbose(cfg.verbose),
			WithLogger(cfg.logger)),
	}, nil
}

// Trace returns the bound trace.
func (m *Module) Trace() *trace.Trace { return m.tr }

// Params returns the filtered parameter table.
func (m *Module) Params() map[string]*tensor.Native { return m.params }

// Invoke replays the bound trace over inputs, which positionally match the
// traced callable's arity. Outputs come back in declared order, always:
// the order is fixed at trace time and independent of any backend's own
// output ordering. A module's outputs may feed another module's inputs, in
// the same or a different mode, so sub-modules chain inside one active
// network.
func (m *Module) Invoke(act *Activation, inputs []tensor.Value) ([]tensor.Value, error) {
	return m.dispatcher.Replay(act, m.tr, m.params, inputs)
}

// Emit replays the module into net: one handle per module input is created
// through newInput (typically the network's input declaration), the replay
// runs with net active, and every declared output is marked on the network
// under its scope-derived name. The returned handles follow declared output
// order.
func (m *Module) Emit(net Network, inputNames []string, newInput func(name string, i int) (tensor.Handle, error)) ([]tensor.Handle, error) {
	if len(inputNames) != m.tr.NumInputs {
		return nil, fmt.Errorf("emit: got %d input names, trace expects %d", len(inputNames), m.tr.NumInputs)
	}

	act := NewActivation()
	release, err := act.Use(net)
	if err != nil {
		return nil, err
	}
	defer release() //nolint:errcheck // release misuse is impossible here: single scoped entry

	inputs := make([]tensor.Value, m.tr.NumInputs)
	for i, name := range inputNames {
		h, err := newInput(name, i)
		if err != nil {
			return nil, fmt.Errorf("emit: declaring input %q: %w", name, err)
		}
		inputs[i] = h
	}

	outputs, err := m.Invoke(act, inputs)
	if err != nil {
		return nil, err
	}

	handles := make([]tensor.Handle, len(outputs))
	for i, out := range outputs {
		name := fmt.Sprintf("output_%d", i)
		if h, ok := out.(tensor.Handle); ok && h.Name != "" {
			name = h.Name
		}
		h, err := AsHandle(net, out, name)
		if err != nil {
			return nil, fmt.Errorf("emit: output %d: %w", i, err)
		}
		if err := net.MarkOutput(name, h); err != nil {
			return nil, fmt.Errorf("emit: marking output %q: %w", name, err)
		}
		handles[i] = h
	}
	return handles, nil
}
