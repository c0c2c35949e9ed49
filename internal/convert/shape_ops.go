package convert

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// registerShapeOps adds shape and layout operations to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("reshape", reshapeHandler())
	r.Register("transpose", transposeHandler())
	r.Register("concat", concatHandler())
	r.Register("flatten", flattenHandler())
	r.Register("identity", identityHandler())
	r.Register("cast", castHandler())
}

func resolveReshape(in tensor.Shape, want []int) (tensor.Shape, error) {
	out := make(tensor.Shape, len(want))
	infer, known := -1, 1
	for i, d := range want {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d == -1:
			return nil, fmt.Errorf("reshape: at most one dimension may be -1, got %v", want)
		case d <= 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d in %v", d, want)
		default:
			out[i] = d
			known *= d
		}
	}
	total := in.NumElements()
	if infer >= 0 {
		if known == 0 || total%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension for %v from %v", want, in)
		}
		out[infer] = total / known
	} else if known != total {
		return nil, fmt.Errorf("reshape: %v has %d elements, %v requires %d", in, total, want, known)
	}
	return out, nil
}

func reshapeHandler() Handler {
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, attrs trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs("reshape", inputs, 1); err != nil {
				return nil, err
			}
			ns, err := materializeAll("reshape", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.Reshape(ns[0], attrs.Ints("shape")))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs("reshape", inputs, 1); err != nil {
				return nil, err
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			outShape, err := resolveReshape(handles[0].Shape(), attrs.Ints("shape"))
			if err != nil {
				return nil, err
			}
			layer := emitLayer{kind: "reshape", shape: func([]tensor.Handle) (tensor.Shape, error) { return outShape, nil }}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}

func transposeHandler() Handler {
	permuted := func(in tensor.Shape, perm []int) (tensor.Shape, error) {
		if len(perm) == 0 {
			out := in.Clone()
			for i := range out {
				out[i] = in[len(in)-1-i]
			}
			return out, nil
		}
		if len(perm) != len(in) {
			return nil, fmt.Errorf("transpose: perm %v does not match rank %d", perm, len(in))
		}
		out := make(tensor.Shape, len(in))
		for i, p := range perm {
			if p < 0 || p >= len(in) {
				return nil, fmt.Errorf("transpose: invalid perm %v", perm)
			}
			out[i] = in[p]
		}
		return out, nil
	}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, attrs trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs("transpose", inputs, 1); err != nil {
				return nil, err
			}
			ns, err := materializeAll("transpose", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.Transpose(ns[0], attrs.Ints("perm")))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs("transpose", inputs, 1); err != nil {
				return nil, err
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			outShape, err := permuted(handles[0].Shape(), attrs.Ints("perm"))
			if err != nil {
				return nil, err
			}
			layer := emitLayer{kind: "transpose", shape: func([]tensor.Handle) (tensor.Shape, error) { return outShape, nil }}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}

func concatHandler() Handler {
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, attrs trace.Attrs, _ string) ([]tensor.Value, error) {
			if len(inputs) == 0 {
				return nil, fmt.Errorf("concat requires at least 1 input")
			}
			ns, err := materializeAll("concat", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.Concat(ns, attrs.Int("axis", 0)))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if len(inputs) == 0 {
				return nil, fmt.Errorf("concat requires at least 1 input")
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			ax, err := handles[0].Shape().Axis(attrs.Int("axis", 0))
			if err != nil {
				return nil, fmt.Errorf("concat: %w", err)
			}
			outShape := handles[0].Shape().Clone()
			for _, h := range handles[1:] {
				s := h.Shape()
				if len(s) != len(outShape) {
					return nil, fmt.Errorf("concat: rank mismatch %v vs %v", outShape, s)
				}
				outShape[ax] += s[ax]
			}
			layer := emitLayer{kind: "concat", shape: func([]tensor.Handle) (tensor.Shape, error) { return outShape, nil }}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}

func flattenHandler() Handler {
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, attrs trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs("flatten", inputs, 1); err != nil {
				return nil, err
			}
			ns, err := materializeAll("flatten", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.Flatten(ns[0], attrs.Int("start_dim", 1)))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs("flatten", inputs, 1); err != nil {
				return nil, err
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			in := handles[0].Shape()
			ax, err := in.Axis(attrs.Int("start_dim", 1))
			if err != nil {
				return nil, fmt.Errorf("flatten: %w", err)
			}
			outShape := in[:ax].Clone()
			tail := 1
			for _, d := range in[ax:] {
				tail *= d
			}
			outShape = append(outShape, tail)
			layer := emitLayer{kind: "flatten", shape: func([]tensor.Handle) (tensor.Shape, error) { return outShape, nil }}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}

// identityHandler passes its input through unchanged. No layer is emitted:
// the output handle is the input handle, so identity chains collapse in the
// emitted network.
func identityHandler() Handler {
	passthrough := func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
		if err := wantInputs("identity", inputs, 1); err != nil {
			return nil, err
		}
		return []tensor.Value{inputs[0]}, nil
	}
	return HandlerFuncs{
		Native: passthrough,
		Emit: func(_ Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			return passthrough(inputs, attrs, scope)
		},
	}
}

func castHandler() Handler {
	dtypeAttr := func(attrs trace.Attrs) (tensor.DataType, error) {
		switch name := attrs.String("dtype", "float32"); name {
		case "float32":
			return tensor.Float32, nil
		case "float16":
			return tensor.Float16, nil
		case "float64":
			return tensor.Float64, nil
		default:
			return 0, fmt.Errorf("cast: unsupported dtype %q", name)
		}
	}
	return HandlerFuncs{
		Native: func(inputs []tensor.Value, attrs trace.Attrs, _ string) ([]tensor.Value, error) {
			if err := wantInputs("cast", inputs, 1); err != nil {
				return nil, err
			}
			dt, err := dtypeAttr(attrs)
			if err != nil {
				return nil, err
			}
			ns, err := materializeAll("cast", inputs)
			if err != nil {
				return nil, err
			}
			return one(tensor.Cast(ns[0], dt))
		},
		Emit: func(net Network, inputs []tensor.Value, attrs trace.Attrs, scope string) ([]tensor.Value, error) {
			if err := wantInputs("cast", inputs, 1); err != nil {
				return nil, err
			}
			dt, err := dtypeAttr(attrs)
			if err != nil {
				return nil, err
			}
			handles, err := handlesAll(net, scope, inputs)
			if err != nil {
				return nil, err
			}
			layer := emitLayer{
				kind:  "cast",
				shape: sameShape,
				dtype: func([]tensor.Handle) tensor.DataType { return dt },
			}
			return layer.emit(net, scope, handles, attrs)
		},
	}
}
