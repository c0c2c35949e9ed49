// Package webgpu implements the WebGPU execution backend: a graph
// recorder that captures dispatched layers, and a compiler that lowers
// the recorded graph to WGSL compute pipelines.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// Input is a named graph entry point. Its buffer is bound at run time.
type Input struct {
	Name  string
	Shape tensor.Shape
	DType tensor.DataType
}

// Constant is a weight or folded host value baked into the graph.
type Constant struct {
	Name  string
	Value *tensor.Native
}

// Node is one recorded layer. OutShape and OutDType are adopted from the
// first handle that wraps the node, so the recorder never re-derives
// shapes the dispatch layer already computed.
type Node struct {
	ID     int
	Kind   string
	Name   string
	Inputs []tensor.Handle
	Attrs  trace.Attrs

	OutShape tensor.Shape
	OutDType tensor.DataType
}

type outputBinding struct {
	name   string
	handle tensor.Handle
}

// Network records layers, constants, and outputs during graph emission.
// It is a pure host-side structure; Compile lowers it onto a device.
type Network struct {
	inputs  []*Input
	nodes   []*Node
	consts  []*Constant
	outputs []outputBinding

	constNames map[string]struct{}
}

func NewNetwork() *Network {
	return &Network{constNames: make(map[string]struct{})}
}

// AddInput declares a named graph input and returns its handle.
func (n *Network) AddInput(name string, shape tensor.Shape, dtype tensor.DataType) (tensor.Handle, error) {
	if err := shape.Validate(); err != nil {
		return tensor.Handle{}, fmt.Errorf("input %q: %w", name, err)
	}
	in := &Input{Name: name, Shape: shape.Clone(), DType: dtype}
	n.inputs = append(n.inputs, in)
	return tensor.NewHandle(in, name, in.Shape, dtype), nil
}

// AddLayer records a layer of any kind. Whether the kind has a device
// implementation is checked at compile time, not here, so a single
// recorder serves every pipeline.
func (n *Network) AddLayer(kind, name string, inputs []tensor.Handle, attrs trace.Attrs) (any, error) {
	if kind == "" || name == "" {
		return nil, fmt.Errorf("layer must have a kind and a name, got kind=%q name=%q", kind, name)
	}
	for _, h := range inputs {
		n.adopt(h)
	}
	node := &Node{
		ID:     len(n.nodes),
		Kind:   kind,
		Name:   name,
		Inputs: append([]tensor.Handle(nil), inputs...),
		Attrs:  attrs,
	}
	n.nodes = append(n.nodes, node)
	return node, nil
}

// AddConstant bakes a host value into the graph.
func (n *Network) AddConstant(name string, value *tensor.Native) (any, error) {
	if _, dup := n.constNames[name]; dup {
		return nil, fmt.Errorf("constant %q already added", name)
	}
	n.constNames[name] = struct{}{}
	c := &Constant{Name: name, Value: value.Clone()}
	n.consts = append(n.consts, c)
	return c, nil
}

// MarkOutput names a graph output.
func (n *Network) MarkOutput(name string, h tensor.Handle) error {
	n.adopt(h)
	for _, o := range n.outputs {
		if o.name == name {
			return fmt.Errorf("output %q already marked", name)
		}
	}
	n.outputs = append(n.outputs, outputBinding{name: name, handle: h})
	return nil
}

// adopt copies shape and dtype metadata from a handle onto the node it
// wraps. Handles carry what the emitting handler inferred.
func (n *Network) adopt(h tensor.Handle) {
	if node, ok := h.Ref.(*Node); ok && node.OutShape == nil {
		node.OutShape = h.Shape().Clone()
		node.OutDType = h.DType()
	}
}

func (n *Network) Inputs() []*Input       { return n.inputs }
func (n *Network) Nodes() []*Node         { return n.nodes }
func (n *Network) Constants() []*Constant { return n.consts }

// OutputNames returns the marked outputs in mark order.
func (n *Network) OutputNames() []string {
	names := make([]string, len(n.outputs))
	for i, o := range n.outputs {
		names[i] = o.name
	}
	return names
}
