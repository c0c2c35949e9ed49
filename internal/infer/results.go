package infer

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/graft-ml/graft/internal/tensor"
)

// Results maps declared output names to host arrays, preserving declared
// output order regardless of any internal reordering by the engine.
type Results struct {
	m *orderedmap.OrderedMap[string, *tensor.Native]
}

func newResults() *Results {
	return &Results{m: orderedmap.New[string, *tensor.Native]()}
}

func (r *Results) set(name string, v *tensor.Native) {
	r.m.Set(name, v)
}

// Get returns the output with the given name.
func (r *Results) Get(name string) (*tensor.Native, bool) {
	return r.m.Get(name)
}

// Names returns the output names in declared order.
func (r *Results) Names() []string {
	names := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Values returns the outputs in declared order.
func (r *Results) Values() []*tensor.Native {
	values := make([]*tensor.Native, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Value)
	}
	return values
}

// Len returns the number of outputs.
func (r *Results) Len() int { return r.m.Len() }

// DeviceResults maps declared output names to device-resident tensors, in
// declared order. The tensors reference context-owned buffers and stay
// valid until the next run or Release.
type DeviceResults struct {
	m *orderedmap.OrderedMap[string, DeviceTensor]
}

func newDeviceResults() *DeviceResults {
	return &DeviceResults{m: orderedmap.New[string, DeviceTensor]()}
}

func (r *DeviceResults) set(name string, v DeviceTensor) {
	r.m.Set(name, v)
}

// Get returns the output with the given name.
func (r *DeviceResults) Get(name string) (DeviceTensor, bool) {
	return r.m.Get(name)
}

// Names returns the output names in declared order.
func (r *DeviceResults) Names() []string {
	names := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Len returns the number of outputs.
func (r *DeviceResults) Len() int { return r.m.Len() }
