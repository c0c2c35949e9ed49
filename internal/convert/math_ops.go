package convert

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// registerMathOps adds arithmetic and matrix operations to the registry.
func (r *Registry) registerMathOps() {
	r.Register("add", elementwiseHandler("add", tensor.Add))
	r.Register("sub", elementwiseHandler("sub", tensor.Sub))
	r.Register("mul", elementwiseHandler("mul", tensor.Mul))
	r.Register("div", elementwiseHandler("div", tensor.Div))
	r.Register("matmul", matmulHandler())
	r.Register("linear", linearHandler())
}

func broadcastOf(inputs []tensor.Handle) (tensor.Shape, error) {
	shape := inputs[0].Shape()
	for _, h := range inputs[1:] {
		var err error
		shape, err = tensor.BroadcastShapes(shape, h.Shape())
		if err != nil {
			return nil, err
		}
	}
	return shape, nil
}

// elementwiseHandler implements a broadcasted binary operation in both
// modes: the eager kernel natively, a single layer of the same kind when
// emitting.
func elementwiseHandler(kind string, kernel func(a, b *tensor.Native) (*tensor.Native, error)) Handler {
	layer := emitLayer{kind: kind, shape: broadcastOf}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs(kind, inputs, 2); err != nil {
				return nil, err
			}
			ns, err := materializeAll(kind, inputs)
			if err != nil {
				return nil, err
			}
			return one(kernel(ns[0], ns[1]))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs(kind, inputs, 2); err != nil {
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

func matmulShape(inputs []tensor.Handle) (tensor.Shape, error) {
	as, bs := inputs[0].Shape(), inputs[1].Shape()
	if len(as) < 2 || len(bs) < 2 || len(as) != len(bs) {
		return nil, fmt.Errorf("matmul: incompatible shapes %v and %v", as, bs)
	}
	if as[len(as)-1] != bs[len(bs)-2] {
		return nil, fmt.Errorf("matmul: inner dimensions disagree: %v vs %v", as, bs)
	}
	out := as.Clone()
	out[len(out)-1] = bs[len(bs)-1]
	return out, nil
}

func matmulHandler() Handler {
	layer := emitLayer{kind: "matmul", shape: matmulShape}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs("matmul", inputs, 2); err != nil {
				return nil, err
			}
			ns, err := materializeAll("matmul", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.MatMul(ns[0], ns[1]))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs("matmul", inputs, 2); err != nil {
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

// linearHandler implements x @ w^T + bias. Inputs are (x, weight) or
// (x, weight, bias) with weight shaped [outFeatures, inFeatures].
func linearHandler() Handler {
	shape := func(inputs []tensor.Handle) (tensor.Shape, error) {
		xs, ws := inputs[0].Shape(), inputs[1].Shape()
		if len(xs) != 2 || len(ws) != 2 || xs[1] != ws[1] {
			return nil, fmt.Errorf("linear: incompatible shapes %v and %v", xs, ws)
		}
		return tensor.Shape{xs[0], ws[0]}, nil
	}
	layer := emitLayer{kind: "linear", shape: shape}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
			if len(inputs) != 2 && len(inputs) != 3 {
				return nil, fmt.Errorf("linear requires 2 or 3 inputs, got %d", len(inputs))
			}
			ns, err := materializeAll("linear", inputs)
			if err != nil {
				return nil, err
			}
			var bias *tensor.Native
			if len(ns) == 3 {
				bias = ns[2]
			}
			return one(tensor.Linear(ns[0], ns[1], bias))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if len(inputs) != 2 && len(inputs) != 3 {
				return nil, fmt.Errorf("linear requires 2 or 3 inputs, got %d", len(inputs))
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}
