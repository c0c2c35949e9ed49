package convert

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Shared helpers for the default handler set.

// materializeAll resolves every input to a host array. Emission never takes
// this path for backend-resident values; a Handle here is a dispatch bug
// and surfaces as an error.
func materializeAll(op string, inputs []tensor.Value) ([]*tensor.Native, error) {
	out := make([]*tensor.Native, len(inputs))
	for i, v := range inputs {
		n, err := tensor.AsNative(v)
		if err != nil {
			return nil, fmt.Errorf("%s: input %d: %w", op, i, err)
		}
		out[i] = n
	}
	return out, nil
}

// handlesAll resolves every input to a network tensor, folding host values
// into constants named after the emitting scope.
func handlesAll(net Network, scope string, inputs []tensor.Value) ([]tensor.Handle, error) {
	out := make([]tensor.Handle, len(inputs))
	for i, v := range inputs {
		h, err := AsHandle(net, v, fmt.Sprintf("%s/const_%d", scope, i))
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func wantInputs(op string, inputs []tensor.Value, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("%s requires %d input(s), got %d", op, n, len(inputs))
	}
	return nil
}

// one wraps a single native result in the uniform multi-output slice.
func one(n *tensor.Native, err error) ([]tensor.Value, error) {
	if err != nil {
		return nil, err
	}
	return []tensor.Value{n}, nil
}

// emitLayer adds a single layer and wraps the returned reference in a
// Handle carrying the shape and dtype the handler inferred.
type emitLayer struct {
	kind  string
	shape func(inputs []tensor.Handle) (tensor.Shape, error)
	dtype func(inputs []tensor.Handle) tensor.DataType
}

func firstDType(inputs []tensor.Handle) tensor.DataType { return inputs[0].DType() }

func (e emitLayer) emit(net Network, scope string, handles []tensor.Handle, attrs trace.Attrs) ([]tensor.Value, error) {
	outShape, err := e.shape(handles)
	if err != nil {
		return nil, err
	}
	dtypeOf := e.dtype
	if dtypeOf == nil {
		dtypeOf = firstDType
	}
	ref, err := net.AddLayer(e.kind, scope, handles, attrs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.kind, err)
	}
	return []tensor.Value{tensor.NewHandle(ref, scope, outShape, dtypeOf(handles))}, nil
}
