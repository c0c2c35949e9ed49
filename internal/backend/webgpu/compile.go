//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/graft-ml/graft/internal/infer"
	"github.com/graft-ml/graft/internal/tensor"
)

// value keys identify the logical buffers of a compiled graph:
// "in:<name>", "node:<id>", "const:<name>". Alias layers (reshape,
// flatten, identity) collapse onto their source key, so they cost
// nothing at run time.

type copySpec struct {
	src    string
	size   uint64
	dstOff uint64
}

type step struct {
	pipeline *wgpu.ComputePipeline
	bindings []string // value keys, in shader binding order
	sizes    []uint64 // exact binding sizes, parallel to bindings
	params   *wgpu.Buffer
	wgX, wgY uint32

	// concat is lowered to buffer copies instead of a pipeline
	copies []copySpec
	dst    string
}

// Compile lowers a recorded network onto the runtime's device, turning
// every layer into a WGSL dispatch or a buffer copy. Only float32
// graphs are supported on this device.
func Compile(rt *Runtime, net *Network) (*Engine, error) {
	e := &Engine{
		rt:        rt,
		tensors:   make(map[string]infer.TensorInfo),
		slotOf:    make(map[string]string),
		sizes:     make(map[string]uint64),
		constBufs: make(map[string]*wgpu.Buffer),
	}

	for _, in := range net.Inputs() {
		if in.DType != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: input %q: only float32 is supported, got %s", in.Name, in.DType)
		}
		key := "in:" + in.Name
		e.inputNames = append(e.inputNames, in.Name)
		e.tensors[in.Name] = infer.TensorInfo{Name: in.Name, Shape: in.Shape.Clone(), DType: in.DType}
		e.slotOf[in.Name] = key
		e.sizes[key] = byteSize(in.Shape)
	}

	for _, c := range net.Constants() {
		if c.Value.DType() != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: constant %q: only float32 is supported, got %s", c.Name, c.Value.DType())
		}
		key := "const:" + c.Name
		e.constBufs[key] = rt.uploadBuffer(c.Value.Bytes(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		e.sizes[key] = uint64(len(c.Value.Bytes()))
	}

	// alias maps a node key onto the key it shares a buffer with.
	alias := make(map[string]string)
	keyOf := func(h tensor.Handle) (string, error) {
		var key string
		switch ref := h.Ref.(type) {
		case *Node:
			key = fmt.Sprintf("node:%d", ref.ID)
		case *Input:
			key = "in:" + ref.Name
		case *Constant:
			key = "const:" + ref.Name
		default:
			return "", fmt.Errorf("webgpu: handle %q holds foreign ref %T", h.Name, h.Ref)
		}
		for {
			next, ok := alias[key]
			if !ok {
				return key, nil
			}
			key = next
		}
	}

	for _, node := range net.Nodes() {
		if node.OutShape == nil {
			return nil, fmt.Errorf("webgpu: layer %q was recorded but never referenced", node.Name)
		}
		if node.OutDType != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: layer %q: only float32 is supported, got %s", node.Name, node.OutDType)
		}
		key := fmt.Sprintf("node:%d", node.ID)

		ins := make([]string, len(node.Inputs))
		for i, h := range node.Inputs {
			k, err := keyOf(h)
			if err != nil {
				return nil, err
			}
			ins[i] = k
		}

		switch node.Kind {
		case "reshape", "flatten", "identity":
			alias[key] = ins[0]
			continue
		case "add", "sub", "mul", "div":
			if err := e.lowerBinary(node, ins, key); err != nil {
				return nil, err
			}
		case "relu", "sigmoid", "tanh", "exp":
			if err := e.lowerUnary(node, ins, key, unaryShaders[node.Kind]); err != nil {
				return nil, err
			}
		case "softmax":
			if err := e.lowerSoftmax(node, ins, key); err != nil {
				return nil, err
			}
		case "matmul":
			if err := e.lowerMatMul(node, ins, key); err != nil {
				return nil, err
			}
		case "linear":
			if err := e.lowerLinear(node, ins, key); err != nil {
				return nil, err
			}
		case "transpose":
			if err := e.lowerTranspose(node, ins, key); err != nil {
				return nil, err
			}
		case "concat":
			if err := e.lowerConcat(node, ins, key); err != nil {
				return nil, err
			}
		default:
			return nil, &UnsupportedLayerError{Kind: node.Kind, Name: node.Name}
		}
		e.sizes[key] = byteSize(node.OutShape)
	}

	claimed := make(map[string]bool)
	for _, out := range net.outputs {
		key, err := keyOf(out.handle)
		if err != nil {
			return nil, err
		}
		size := byteSize(out.handle.Shape())
		// An output bound to an input, a constant, or a node another
		// output already claims needs its own buffer and a final copy;
		// otherwise the compute step writes straight into the binding.
		if strings.HasPrefix(key, "node:") && !claimed[key] {
			claimed[key] = true
		} else {
			dedicated := "out:" + out.name
			e.sizes[dedicated] = size
			e.steps = append(e.steps, &step{
				copies: []copySpec{{src: key, size: size}},
				dst:    dedicated,
			})
			key = dedicated
		}
		e.outputNames = append(e.outputNames, out.name)
		e.tensors[out.name] = infer.TensorInfo{
			Name:  out.name,
			Shape: out.handle.Shape().Clone(),
			DType: out.handle.DType(),
		}
		e.slotOf[out.name] = key
	}
	if len(e.outputNames) == 0 {
		return nil, fmt.Errorf("webgpu: network has no marked outputs")
	}

	// One-element scratch buffer standing in for absent linear biases.
	e.zeroBuf = rt.uploadBuffer(make([]byte, 4), wgpu.BufferUsageStorage)
	return e, nil
}

func byteSize(s tensor.Shape) uint64 {
	return uint64(s.NumElements()) * uint64(tensor.Float32.Size())
}

func u32Params(vals ...uint32) []byte {
	buf := make([]byte, (len(vals)*4+15)&^15)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

func elementWorkgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize)
}

func tileWorkgroups(n int) uint32 {
	return uint32((n + 15) / 16)
}

func (e *Engine) lowerBinary(node *Node, ins []string, out string) error {
	aShape := node.Inputs[0].Shape()
	bShape := node.Inputs[1].Shape()
	if !node.OutShape.Equal(aShape) {
		return fmt.Errorf("webgpu: layer %q: broadcast onto the first operand only, got %v op %v -> %v",
			node.Name, aShape, bShape, node.OutShape)
	}
	// The shader indexes the second operand modulo its length, which is
	// only correct when it repeats as a contiguous trailing block of the
	// output: with leading ones stripped, its shape must match the
	// output's trailing axes.
	trimmed := bShape
	for len(trimmed) > 0 && trimmed[0] == 1 {
		trimmed = trimmed[1:]
	}
	if len(trimmed) > len(node.OutShape) {
		return fmt.Errorf("webgpu: layer %q: operand %v does not tile output %v as a trailing block",
			node.Name, bShape, node.OutShape)
	}
	tail := node.OutShape[len(node.OutShape)-len(trimmed):]
	for i := range trimmed {
		if trimmed[i] != tail[i] {
			return fmt.Errorf("webgpu: layer %q: operand %v does not tile output %v as a trailing block",
				node.Name, bShape, node.OutShape)
		}
	}
	outN := node.OutShape.NumElements()
	bN := bShape.NumElements()
	e.steps = append(e.steps, &step{
		pipeline: e.rt.pipeline(node.Kind, binaryShaders[node.Kind]),
		bindings: []string{ins[0], ins[1], out},
		sizes:    []uint64{byteSize(aShape), byteSize(bShape), byteSize(node.OutShape)},
		params:   e.rt.uniformBuffer(u32Params(uint32(outN), uint32(bN))),
		wgX:      elementWorkgroups(outN),
		wgY:      1,
	})
	return nil
}

func (e *Engine) lowerUnary(node *Node, ins []string, out, shader string) error {
	n := node.OutShape.NumElements()
	e.steps = append(e.steps, &step{
		pipeline: e.rt.pipeline(node.Kind, shader),
		bindings: []string{ins[0], out},
		sizes:    []uint64{byteSize(node.OutShape), byteSize(node.OutShape)},
		params:   e.rt.uniformBuffer(u32Params(uint32(n))),
		wgX:      elementWorkgroups(n),
		wgY:      1,
	})
	return nil
}

func (e *Engine) lowerSoftmax(node *Node, ins []string, out string) error {
	shape := node.OutShape
	ax, err := shape.Axis(node.Attrs.Int("axis", -1))
	if err != nil {
		return fmt.Errorf("webgpu: layer %q: %w", node.Name, err)
	}
	if ax != len(shape)-1 {
		return fmt.Errorf("webgpu: layer %q: softmax is lowered per row, axis %d of %v is unsupported",
			node.Name, ax, shape)
	}
	cols := shape[len(shape)-1]
	rows := shape.NumElements() / cols
	e.steps = append(e.steps, &step{
		pipeline: e.rt.pipeline("softmax", softmaxShader),
		bindings: []string{ins[0], out},
		sizes:    []uint64{byteSize(shape), byteSize(shape)},
		params:   e.rt.uniformBuffer(u32Params(uint32(rows), uint32(cols))),
		wgX:      elementWorkgroups(rows),
		wgY:      1,
	})
	return nil
}

func (e *Engine) lowerMatMul(node *Node, ins []string, out string) error {
	aShape := node.Inputs[0].Shape()
	bShape := node.Inputs[1].Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		return fmt.Errorf("webgpu: layer %q: matmul is lowered for 2D operands, got %v @ %v",
			node.Name, aShape, bShape)
	}
	m, k, n := aShape[0], aShape[1], bShape[1]
	e.steps = append(e.steps, &step{
		pipeline: e.rt.pipeline("matmul", matmulShader),
		bindings: []string{ins[0], ins[1], out},
		sizes:    []uint64{byteSize(aShape), byteSize(bShape), byteSize(node.OutShape)},
		params:   e.rt.uniformBuffer(u32Params(uint32(m), uint32(k), uint32(n))),
		wgX:      tileWorkgroups(n),
		wgY:      tileWorkgroups(m),
	})
	return nil
}

func (e *Engine) lowerLinear(node *Node, ins []string, out string) error {
	xShape := node.Inputs[0].Shape()
	wShape := node.Inputs[1].Shape()
	if len(xShape) != 2 || len(wShape) != 2 {
		return fmt.Errorf("webgpu: layer %q: linear is lowered for 2D operands, got %v and %v",
			node.Name, xShape, wShape)
	}
	m, k, n := xShape[0], xShape[1], wShape[0]
	hasBias := uint32(0)
	biasKey := zeroKey
	biasSize := uint64(4)
	if len(ins) == 3 {
		hasBias = 1
		biasKey = ins[2]
		biasSize = byteSize(node.Inputs[2].Shape())
	}
	e.steps = append(e.steps, &step{
		pipeline: e.rt.pipeline("linear", linearShader),
		bindings: []string{ins[0], ins[1], biasKey, out},
		sizes:    []uint64{byteSize(xShape), byteSize(wShape), biasSize, byteSize(node.OutShape)},
		params:   e.rt.uniformBuffer(u32Params(uint32(m), uint32(k), uint32(n), hasBias)),
		wgX:      tileWorkgroups(n),
		wgY:      tileWorkgroups(m),
	})
	return nil
}

func (e *Engine) lowerTranspose(node *Node, ins []string, out string) error {
	inShape := node.Inputs[0].Shape()
	perm := node.Attrs.Ints("perm")
	if len(inShape) != 2 || (perm != nil && !(len(perm) == 2 && perm[0] == 1 && perm[1] == 0)) {
		return fmt.Errorf("webgpu: layer %q: transpose is lowered for 2D swaps, got %v perm %v",
			node.Name, inShape, perm)
	}
	e.steps = append(e.steps, &step{
		pipeline: e.rt.pipeline("transpose", transposeShader),
		bindings: []string{ins[0], out},
		sizes:    []uint64{byteSize(inShape), byteSize(node.OutShape)},
		params:   e.rt.uniformBuffer(u32Params(uint32(inShape[0]), uint32(inShape[1]))),
		wgX:      tileWorkgroups(inShape[1]),
		wgY:      tileWorkgroups(inShape[0]),
	})
	return nil
}

func (e *Engine) lowerConcat(node *Node, ins []string, out string) error {
	ax, err := node.Inputs[0].Shape().Axis(node.Attrs.Int("axis", 0))
	if err != nil {
		return fmt.Errorf("webgpu: layer %q: %w", node.Name, err)
	}
	if ax != 0 {
		return fmt.Errorf("webgpu: layer %q: concat is lowered as contiguous copies, axis %d is unsupported",
			node.Name, ax)
	}
	var copies []copySpec
	var off uint64
	for i, h := range node.Inputs {
		size := byteSize(h.Shape())
		copies = append(copies, copySpec{src: ins[i], size: size, dstOff: off})
		off += size
	}
	e.steps = append(e.steps, &step{copies: copies, dst: out})
	return nil
}
