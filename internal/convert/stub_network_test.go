package convert

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// stubNetwork records every builder call so tests can assert on emission
// order and layer wiring without a real backend.
type stubNetwork struct {
	layers    []stubLayer
	constants []string
	outputs   []string
}

type stubLayer struct {
	kind   string
	name   string
	inputs []string
}

func (s *stubNetwork) AddLayer(kind, name string, inputs []tensor.Handle, _ trace.Attrs) (any, error) {
	names := make([]string, len(inputs))
	for i, h := range inputs {
		names[i] = h.Name
	}
	s.layers = append(s.layers, stubLayer{kind: kind, name: name, inputs: names})
	return fmt.Sprintf("layer:%d", len(s.layers)-1), nil
}

func (s *stubNetwork) AddConstant(name string, _ *tensor.Native) (any, error) {
	s.constants = append(s.constants, name)
	return "const:" + name, nil
}

func (s *stubNetwork) MarkOutput(name string, _ tensor.Handle) error {
	s.outputs = append(s.outputs, name)
	return nil
}

// inputHandle declares a module input on the stub network.
func stubInput(name string, shape tensor.Shape) tensor.Handle {
	return tensor.NewHandle("input:"+name, name, shape, tensor.Float32)
}
