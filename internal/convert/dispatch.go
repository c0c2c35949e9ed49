package convert

import (
	"fmt"
	"log/slog"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Dispatcher replays a trace against fresh input values, choosing per
// operation between eager evaluation and network emission.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	verbose  bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithVerbose enables per-operation trace logging. The log is a debugging
// side channel; it never affects dispatch outcome.
func WithVerbose(v bool) DispatcherOption {
	return func(d *Dispatcher) { d.verbose = v }
}

// WithLogger sets the logger used for verbose tracing.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher builds a dispatcher over the given registry. A nil registry
// selects the default operation set.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry, logger: slog.Default()}
	if d.registry == nil {
		d.registry = NewRegistry()
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Replay executes tr in trace order. The mode is implied by act: when a
// network is current and an operation has at least one backend-resident
// input, the operation's emission branch runs; otherwise the operation
// evaluates eagerly. The eager case covers both plain native mode and the
// constant-folding path, where a subgraph with no backend-resident ancestor
// computes on the host even inside an active network, so no dead constant
// layers are emitted.
//
// Any handler failure aborts the whole replay; no partial results are
// returned.
func (d *Dispatcher) Replay(act *Activation, tr *trace.Trace, params map[string]*tensor.Native, inputs []tensor.Value) ([]tensor.Value, error) {
	if len(inputs) != tr.NumInputs {
		return nil, fmt.Errorf("replay: got %d inputs, trace expects %d", len(inputs), tr.NumInputs)
	}

	// Outputs of each executed operation, keyed by operation index. Each
	// value is produced exactly once and read by any number of
	// dependents; the trace order is already a valid execution order.
	produced := make([][]tensor.Value, len(tr.Ops))

	resolve := func(r trace.Ref, scope string) (tensor.Value, error) {
		switch r.Kind {
		case trace.RefInput:
			if r.Index < 0 || r.Index >= len(inputs) {
				return nil, fmt.Errorf("scope %q: input reference %d out of range", scope, r.Index)
			}
			return inputs[r.Index], nil
		case trace.RefParam:
			p, ok := params[r.Name]
			if !ok {
				return nil, &DanglingParameterReferenceError{Param: r.Name, Scope: scope}
			}
			return p, nil
		case trace.RefConst:
			if r.Index < 0 || r.Index >= len(tr.Consts) {
				return nil, fmt.Errorf("scope %q: constant reference %d out of range", scope, r.Index)
			}
			return tensor.NewConst(tr.Consts[r.Index]), nil
		case trace.RefOp:
			if r.Index < 0 || r.Index >= len(tr.Ops) || produced[r.Index] == nil {
				return nil, fmt.Errorf("scope %q: reference to unexecuted operation %d", scope, r.Index)
			}
			outs := produced[r.Index]
			if r.Output < 0 || r.Output >= len(outs) {
				return nil, fmt.Errorf("scope %q: output slot %d out of range for %q", scope, r.Output, tr.Ops[r.Index].Scope)
			}
			return outs[r.Output], nil
		default:
			return nil, fmt.Errorf("scope %q: unknown reference kind %d", scope, r.Kind)
		}
	}

	for i := range tr.Ops {
		op := &tr.Ops[i]

		handler, err := d.registry.Lookup(op.Name, op.Scope)
		if err != nil {
			return nil, err
		}

		opInputs := make([]tensor.Value, len(op.Inputs))
		hasBackendInput := false
		for j, ref := range op.Inputs {
			v, err := resolve(ref, op.Scope)
			if err != nil {
				return nil, err
			}
			opInputs[j] = v
			if v.BackendResident() {
				hasBackendInput = true
			}
		}

		var outputs []tensor.Value
		if net := act.Current(); net != nil && hasBackendInput {
			outputs, err = handler.EmitIntoNetwork(net, opInputs, op.Attrs, op.Scope)
		} else {
			outputs, err = handler.EvaluateNative(opInputs, op.Attrs, op.Scope)
		}
		if err != nil {
			return nil, fmt.Errorf("operation %q (scope %q): %w", op.Name, op.Scope, err)
		}
		if len(outputs) == 0 {
			return nil, fmt.Errorf("operation %q (scope %q): handler returned no outputs", op.Name, op.Scope)
		}

		if d.verbose {
			shapes := make([]tensor.Shape, len(outputs))
			for j, o := range outputs {
				shapes[j] = o.Shape()
			}
			d.logger.Debug("dispatched operation",
				"op", op.Name,
				"scope", op.Scope,
				"backend", act.Current() != nil && hasBackendInput,
				"output_shapes", fmt.Sprint(shapes))
		}

		produced[i] = outputs
	}

	results := make([]tensor.Value, len(tr.Outputs))
	for j, ref := range tr.Outputs {
		v, err := resolve(ref, fmt.Sprintf("output[%d]", j))
		if err != nil {
			return nil, err
		}
		results[j] = v
	}
	return results, nil
}
