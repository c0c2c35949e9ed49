package infer

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
)

// fakeEngine is an in-memory Engine whose "computation" is a caller
// provided function over the bound byte buffers. It counts allocations and
// stream synchronizations so tests can assert on staging behavior.
type fakeEngine struct {
	device  tensor.Device
	tensors map[string]TensorInfo
	inputs  []string
	outputs []string

	// apply computes output bytes from input bytes when the engine runs.
	apply func(in, out map[string][]byte)

	// failPinnedAlloc, when positive, makes that numbered pinned
	// allocation fail.
	failPinnedAlloc int

	deviceAllocs int
	pinnedAllocs int

	deviceBufs []*fakeDeviceBuffer
	pinnedBufs []*fakePinnedBuffer
}

func (e *fakeEngine) Device() tensor.Device { return e.device }
func (e *fakeEngine) InputNames() []string  { return e.inputs }
func (e *fakeEngine) OutputNames() []string { return e.outputs }

func (e *fakeEngine) TensorInfo(name string) (TensorInfo, bool) {
	ti, ok := e.tensors[name]
	return ti, ok
}

func (e *fakeEngine) NewExecContext() (ExecContext, error) {
	return &fakeExec{eng: e, bound: make(map[string]*fakeDeviceBuffer)}, nil
}

func (e *fakeEngine) NewStream() (Stream, error) { return &fakeStream{}, nil }

func (e *fakeEngine) AllocDevice(size int) (DeviceBuffer, error) {
	e.deviceAllocs++
	b := &fakeDeviceBuffer{data: make([]byte, size), device: e.device}
	e.deviceBufs = append(e.deviceBufs, b)
	return b, nil
}

func (e *fakeEngine) AllocPinned(size int) (PinnedBuffer, error) {
	e.pinnedAllocs++
	if e.failPinnedAlloc > 0 && e.pinnedAllocs == e.failPinnedAlloc {
		return nil, fmt.Errorf("pinned memory exhausted")
	}
	b := &fakePinnedBuffer{data: make([]byte, size)}
	e.pinnedBufs = append(e.pinnedBufs, b)
	return b, nil
}

type fakeStream struct {
	syncs int
}

func (s *fakeStream) Synchronize() error {
	s.syncs++
	return nil
}

type fakeDeviceBuffer struct {
	data   []byte
	device tensor.Device
	freed  bool
}

func (b *fakeDeviceBuffer) Size() int             { return len(b.data) }
func (b *fakeDeviceBuffer) Device() tensor.Device { return b.device }

func (b *fakeDeviceBuffer) CopyFrom(src PinnedBuffer, _ Stream) error {
	if b.freed {
		return fmt.Errorf("use after free")
	}
	copy(b.data, src.Bytes())
	return nil
}

func (b *fakeDeviceBuffer) CopyTo(dst PinnedBuffer, _ Stream) error {
	if b.freed {
		return fmt.Errorf("use after free")
	}
	copy(dst.Bytes(), b.data)
	return nil
}

func (b *fakeDeviceBuffer) Free() error {
	b.freed = true
	return nil
}

type fakePinnedBuffer struct {
	data  []byte
	freed bool
}

func (b *fakePinnedBuffer) Bytes() []byte { return b.data }
func (b *fakePinnedBuffer) Free() error {
	b.freed = true
	return nil
}

type fakeExec struct {
	eng      *fakeEngine
	bound    map[string]*fakeDeviceBuffer
	released bool
	executes int
	enqueues int
}

func (x *fakeExec) Bind(name string, buf DeviceBuffer) error {
	fb, ok := buf.(*fakeDeviceBuffer)
	if !ok {
		return fmt.Errorf("foreign buffer type %T", buf)
	}
	if _, ok := x.eng.tensors[name]; !ok {
		return fmt.Errorf("engine declares no tensor %q", name)
	}
	x.bound[name] = fb
	return nil
}

func (x *fakeExec) run() error {
	if x.released {
		return fmt.Errorf("execution context released")
	}
	in := make(map[string][]byte)
	out := make(map[string][]byte)
	for _, name := range x.eng.inputs {
		b, ok := x.bound[name]
		if !ok {
			return fmt.Errorf("input %q not bound", name)
		}
		in[name] = b.data
	}
	for _, name := range x.eng.outputs {
		b, ok := x.bound[name]
		if !ok {
			return fmt.Errorf("output %q not bound", name)
		}
		out[name] = b.data
	}
	x.eng.apply(in, out)
	return nil
}

func (x *fakeExec) Execute() error {
	x.executes++
	return x.run()
}

func (x *fakeExec) Enqueue(_ Stream) error {
	x.enqueues++
	return x.run()
}

func (x *fakeExec) Release() error {
	x.released = true
	return nil
}

// sumEngine declares two float32 inputs "a" and "b" and one float32
// output "sum" of the given shape, computing sum = a + b element-wise.
func sumEngine(shape tensor.Shape) *fakeEngine {
	return &fakeEngine{
		device: tensor.WebGPU,
		inputs: []string{"a", "b"}, outputs: []string{"sum"},
		tensors: map[string]TensorInfo{
			"a":   {Name: "a", Shape: shape, DType: tensor.Float32},
			"b":   {Name: "b", Shape: shape, DType: tensor.Float32},
			"sum": {Name: "sum", Shape: shape, DType: tensor.Float32},
		},
		apply: func(in, out map[string][]byte) {
			a, b, dst := in["a"], in["b"], out["sum"]
			for i := 0; i+3 < len(dst); i += 4 {
				f32tobytes(dst[i:], f32frombytes(a[i:])+f32frombytes(b[i:]))
			}
		},
	}
}

// addOneEngine declares one float32 input "x" and one float32 output "y"
// of the given shape, computing y = x + 1 element-wise.
func addOneEngine(shape tensor.Shape) *fakeEngine {
	return &fakeEngine{
		device: tensor.WebGPU,
		inputs: []string{"x"}, outputs: []string{"y"},
		tensors: map[string]TensorInfo{
			"x": {Name: "x", Shape: shape, DType: tensor.Float32},
			"y": {Name: "y", Shape: shape, DType: tensor.Float32},
		},
		apply: func(in, out map[string][]byte) {
			src, dst := in["x"], out["y"]
			for i := 0; i+3 < len(src); i += 4 {
				v := f32frombytes(src[i:])
				f32tobytes(dst[i:], v+1)
			}
		},
	}
}
