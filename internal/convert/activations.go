package convert

import (
	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// registerActivations adds activation operations to the registry.
func (r *Registry) registerActivations() {
	r.Register("sigmoid", unaryHandler("sigmoid", tensor.Sigmoid))
	r.Register("tanh", unaryHandler("tanh", tensor.Tanh))
	r.Register("relu", unaryHandler("relu", tensor.Relu))
	r.Register("exp", unaryHandler("exp", tensor.Exp))
	r.Register("softmax", softmaxHandler())
}

func sameShape(inputs []tensor.Handle) (tensor.Shape, error) {
	return inputs[0].Shape().Clone(), nil
}

// unaryHandler implements a shape-preserving element-wise operation in both
// modes.
func unaryHandler(kind string, kernel func(x *tensor.Native) (*tensor.Native, error)) Handler {
	layer := emitLayer{kind: kind, shape: sameShape}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs(kind, inputs, 1); err != nil {
				return nil, err
			}
			ns, err := materializeAll(kind, inputs)
			if err != nil {
				return nil, err
			}
			return one(kernel(ns[0]))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs(kind, inputs, 1); err != nil {
				return nil, err
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}

func softmaxHandler() Handler {
	layer := emitLayer{kind: "softmax", shape: sameShape}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, attrs trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs("softmax", inputs, 1); err != nil {
				return nil, err
			}
			ns, err := materializeAll("softmax", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.Softmax(ns[0], attrs.Int("axis", -1)))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs("softmax", inputs, 1); err != nil {
				return nil, err
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}
