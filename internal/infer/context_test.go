package infer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/graft-ml/graft/internal/tensor"
)

func f32frombytes(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func f32tobytes(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func onesInput(shape tensor.Shape) *tensor.Native {
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = 1
	}
	t, _ := tensor.FromFloat32(data, shape)
	return t
}

func TestRunReturnsNamedOutputsWithoutMutatingInput(t *testing.T) {
	shape := tensor.Shape{1, 10}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	x := onesInput(shape)
	before := append([]byte(nil), x.Bytes()...)

	res, err := ctx.Run(map[string]*tensor.Native{"x": x})
	require.NoError(t, err)

	y, ok := res.Get("y")
	require.True(t, ok)
	assert.True(t, shape.Equal(y.Shape()))
	assert.Equal(t, tensor.Float32, y.DType())
	for _, v := range y.Float32Values() {
		assert.InDelta(t, 2.0, v, 1e-6)
	}
	assert.Equal(t, before, x.Bytes(), "input buffer must be unchanged after the call")
}

func TestRunAsyncSynchronizesBeforeReturn(t *testing.T) {
	shape := tensor.Shape{2, 3}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	res, err := ctx.RunAsync(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)

	// The results are fully staged back to the host: the stream has been
	// synchronized at least once and the values are readable immediately.
	require.GreaterOrEqual(t, ctx.stream.(*fakeStream).syncs, 1)
	y, ok := res.Get("y")
	require.True(t, ok)
	for _, v := range y.Float32Values() {
		assert.InDelta(t, 2.0, v, 1e-6)
	}
}

func TestRunPositionalFollowsDeclaredInputOrder(t *testing.T) {
	shape := tensor.Shape{4}
	eng := sumEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	a, _ := tensor.FromFloat32([]float32{1, 2, 3, 4}, shape)
	b, _ := tensor.FromFloat32([]float32{10, 20, 30, 40}, shape)
	res, err := ctx.RunPositional(a, b)
	require.NoError(t, err)

	sum, ok := res.Get("sum")
	require.True(t, ok)
	assert.Equal(t, []float32{11, 22, 33, 44}, sum.Float32Values())
}

func TestResultsPreserveDeclaredOutputOrder(t *testing.T) {
	shape := tensor.Shape{2}
	eng := &fakeEngine{
		device: tensor.WebGPU,
		inputs: []string{"x"}, outputs: []string{"second", "first", "third"},
		tensors: map[string]TensorInfo{
			"x":      {Name: "x", Shape: shape, DType: tensor.Float32},
			"second": {Name: "second", Shape: shape, DType: tensor.Float32},
			"first":  {Name: "first", Shape: shape, DType: tensor.Float32},
			"third":  {Name: "third", Shape: shape, DType: tensor.Float32},
		},
		apply: func(in, out map[string][]byte) {
			for _, dst := range out {
				copy(dst, in["x"])
			}
		},
	}
	ctx := NewContext(eng)
	defer ctx.Release()

	res, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first", "third"}, res.Names())
}

func TestBindingIsLazyAndHappensOnce(t *testing.T) {
	shape := tensor.Shape{1, 10}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	assert.Zero(t, eng.deviceAllocs, "no allocation before the first run")

	_, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)
	allocsAfterFirst := eng.deviceAllocs
	assert.Equal(t, 2, allocsAfterFirst) // one buffer per engine tensor

	_, err = ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)
	assert.Equal(t, allocsAfterFirst, eng.deviceAllocs, "buffers are reused across runs")
}

func TestRunRejectsMissingAndMisshapedInputs(t *testing.T) {
	shape := tensor.Shape{1, 10}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	_, err := ctx.Run(map[string]*tensor.Native{"z": onesInput(shape)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)

	_, err = ctx.Run(map[string]*tensor.Native{})
	require.Error(t, err)

	bad := onesInput(tensor.Shape{2, 5})
	_, err = ctx.Run(map[string]*tensor.Native{"x": bad})
	require.Error(t, err)
}

func TestFloat16InputsAreStagedFromFloat32(t *testing.T) {
	shape := tensor.Shape{3}
	eng := &fakeEngine{
		device: tensor.WebGPU,
		inputs: []string{"x"}, outputs: []string{"y"},
		tensors: map[string]TensorInfo{
			"x": {Name: "x", Shape: shape, DType: tensor.Float16},
			"y": {Name: "y", Shape: shape, DType: tensor.Float16},
		},
		apply: func(in, out map[string][]byte) {
			copy(out["y"], in["x"])
		},
	}
	ctx := NewContext(eng)
	defer ctx.Release()

	x, _ := tensor.FromFloat32([]float32{0.5, -1.25, 3}, shape)
	res, err := ctx.Run(map[string]*tensor.Native{"x": x})
	require.NoError(t, err)

	y, ok := res.Get("y")
	require.True(t, ok)
	require.Equal(t, tensor.Float16, y.DType())
	raw := y.Bytes()
	want := []float32{0.5, -1.25, 3}
	for i, w := range want {
		got := float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		assert.InDelta(t, w, got, 1e-3)
	}
}

func TestReleaseIsTerminal(t *testing.T) {
	shape := tensor.Shape{1, 10}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)

	_, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)

	require.NoError(t, ctx.Release())
	require.NoError(t, ctx.Release(), "releasing twice is a no-op")

	_, err = ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	var released *ContextReleasedError
	require.ErrorAs(t, err, &released)
}

func TestRunDeviceRejectsForeignDeviceAndStream(t *testing.T) {
	shape := tensor.Shape{1, 10}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	// A buffer that claims to live on a different device.
	foreign := &fakeDeviceBuffer{data: make([]byte, 40), device: tensor.CPU}
	_, err := ctx.RunDevice(map[string]DeviceTensor{
		"x": {Buffer: foreign, Shape: shape, DType: tensor.Float32},
	})
	var unsupported *UnsupportedDeviceOrStreamError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "x", unsupported.Input)

	// A buffer on the right device but carrying a stream the context
	// does not own.
	buf, aerr := eng.AllocDevice(40)
	require.NoError(t, aerr)
	_, err = ctx.RunDevice(map[string]DeviceTensor{
		"x": {Buffer: buf, Shape: shape, DType: tensor.Float32, Stream: &fakeStream{}},
	})
	require.ErrorAs(t, err, &unsupported)
}

func TestRejectedRunDeviceKeepsHostBindings(t *testing.T) {
	shape := tensor.Shape{4}
	eng := sumEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	ones := onesInput(shape)
	_, err := ctx.Run(map[string]*tensor.Native{"a": ones, "b": ones})
	require.NoError(t, err)

	good, err := eng.AllocDevice(16)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		f32tobytes(good.(*fakeDeviceBuffer).data[4*i:], 100)
	}
	foreign := &fakeDeviceBuffer{data: make([]byte, 16), device: tensor.CPU}

	// "a" is acceptable, "b" is not: the call must fail without leaving
	// any caller buffer bound.
	_, err = ctx.RunDevice(map[string]DeviceTensor{
		"a": {Buffer: good, Shape: shape, DType: tensor.Float32},
		"b": {Buffer: foreign, Shape: shape, DType: tensor.Float32},
	})
	var unsupported *UnsupportedDeviceOrStreamError
	require.ErrorAs(t, err, &unsupported)

	res, err := ctx.Run(map[string]*tensor.Native{"a": ones, "b": ones})
	require.NoError(t, err)
	sum, ok := res.Get("sum")
	require.True(t, ok)
	for _, v := range sum.Float32Values() {
		assert.InDelta(t, 2.0, v, 1e-6, "staged inputs must be read, not the rejected caller buffer")
	}
}

func TestFailedBindFreesPartialAllocations(t *testing.T) {
	shape := tensor.Shape{4}
	eng := addOneEngine(shape)
	eng.failPinnedAlloc = 2 // the output staging buffer

	ctx := NewContext(eng)
	_, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.Error(t, err)
	assert.Equal(t, Created, ctx.State())
	for _, b := range eng.deviceBufs {
		assert.True(t, b.freed, "device buffers from the failed bind must be freed")
	}
	for _, b := range eng.pinnedBufs {
		assert.True(t, b.freed, "pinned buffers from the failed bind must be freed")
	}

	eng.failPinnedAlloc = 0
	res, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)
	y, ok := res.Get("y")
	require.True(t, ok)
	assert.InDelta(t, 2.0, float64(y.Float32Values()[0]), 1e-6)
	require.NoError(t, ctx.Release())
}

func TestRunDeviceUsesCallerBuffersDirectly(t *testing.T) {
	shape := tensor.Shape{1, 10}
	eng := addOneEngine(shape)
	ctx := NewContext(eng)
	defer ctx.Release()

	// Warm up so the context owns its stream.
	_, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)

	buf, err := eng.AllocDevice(40)
	require.NoError(t, err)
	fb := buf.(*fakeDeviceBuffer)
	for i := 0; i < 10; i++ {
		f32tobytes(fb.data[4*i:], 5)
	}

	res, err := ctx.RunDevice(map[string]DeviceTensor{
		"x": {Buffer: buf, Shape: shape, DType: tensor.Float32},
	})
	require.NoError(t, err)

	out, ok := res.Get("y")
	require.True(t, ok)
	ob := out.Buffer.(*fakeDeviceBuffer)
	for i := 0; i < 10; i++ {
		assert.InDelta(t, 6.0, f32frombytes(ob.data[4*i:]), 1e-6)
	}

	// The caller buffer was read, not copied over.
	assert.InDelta(t, 5.0, f32frombytes(fb.data), 1e-6)

	// Host runs keep working afterwards: the context buffers are re-bound.
	res2, err := ctx.Run(map[string]*tensor.Native{"x": onesInput(shape)})
	require.NoError(t, err)
	y, _ := res2.Get("y")
	assert.InDelta(t, 2.0, float64(y.Float32Values()[0]), 1e-6)
}
