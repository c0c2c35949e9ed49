package convert

import (
	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Network is the backend graph builder handlers emit into. The core treats
// it as opaque: only handlers call these methods, and only while the
// network is the current activation target. Builders return raw tensor
// references; the emitting handler wraps them in a Handle together with the
// output shape and dtype it inferred, so shape semantics stay with the
// operation rather than being re-implemented per backend.
type Network interface {
	// AddLayer appends a layer of the given kind. name defaults to the
	// emitting operation's scope and becomes the output tensor's name.
	AddLayer(kind, name string, inputs []tensor.Handle, attrs trace.Attrs) (any, error)

	// AddConstant materializes a host array as a network constant and
	// returns its tensor reference.
	AddConstant(name string, value *tensor.Native) (any, error)

	// MarkOutput declares h as a network output under the given name.
	MarkOutput(name string, h tensor.Handle) error
}

// AsHandle resolves a Value to a network tensor, folding host-resident
// values (natives and trace constants) into network constants on demand.
// This is how a constant-folded subgraph re-enters the network when its
// result feeds an operation with backend-resident inputs.
func AsHandle(net Network, v tensor.Value, name string) (tensor.Handle, error) {
	if h, ok := v.(tensor.Handle); ok {
		return h, nil
	}
	n, err := tensor.AsNative(v)
	if err != nil {
		return tensor.Handle{}, err
	}
	ref, err := net.AddConstant(name, n)
	if err != nil {
		return tensor.Handle{}, err
	}
	return tensor.NewHandle(ref, name, n.Shape(), n.DType()), nil
}
