//go:build windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graft-ml/graft/internal/convert"
	"github.com/graft-ml/graft/internal/infer"
	"github.com/graft-ml/graft/internal/tensor"
)

func testRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime()
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(rt.Release)
	return rt
}

func TestCompileRejectsUnsupportedKind(t *testing.T) {
	rt := testRuntime(t)

	net := NewNetwork()
	x, err := net.AddInput("x", tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)
	ref, err := net.AddLayer("cast", "cast_0", []tensor.Handle{x}, nil)
	require.NoError(t, err)
	h := tensor.NewHandle(ref, "cast_0", tensor.Shape{2}, tensor.Float32)
	require.NoError(t, net.MarkOutput("y", h))

	_, err = Compile(rt, net)
	var unsupported *UnsupportedLayerError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "cast", unsupported.Kind)
}

func TestCompileRejectsNonTrailingBroadcast(t *testing.T) {
	rt := testRuntime(t)

	build := func(bShape tensor.Shape) *Network {
		net := NewNetwork()
		a, err := net.AddInput("a", tensor.Shape{2, 3}, tensor.Float32)
		require.NoError(t, err)
		b, err := net.AddInput("b", bShape, tensor.Float32)
		require.NoError(t, err)
		ref, err := net.AddLayer("add", "add_0", []tensor.Handle{a, b}, nil)
		require.NoError(t, err)
		require.NoError(t, net.MarkOutput("y", tensor.NewHandle(ref, "add_0", tensor.Shape{2, 3}, tensor.Float32)))
		return net
	}

	// A column vector repeats per row, not as a trailing block; the
	// element count divides the output but the layout is wrong.
	_, err := Compile(rt, build(tensor.Shape{2, 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing block")

	eng, err := Compile(rt, build(tensor.Shape{1, 3}))
	require.NoError(t, err)
	eng.Release()
}

func TestCompiledGraphMatchesNativeReplay(t *testing.T) {
	rt := testRuntime(t)

	net := NewNetwork()
	m := linearSigmoidModule(t)
	_, err := m.Emit(net, []string{"x"}, func(name string, _ int) (tensor.Handle, error) {
		return net.AddInput(name, tensor.Shape{1, 4}, tensor.Float32)
	})
	require.NoError(t, err)

	eng, err := Compile(rt, net)
	require.NoError(t, err)
	defer eng.Release()

	assert.Equal(t, []string{"x"}, eng.InputNames())
	assert.Equal(t, []string{"act"}, eng.OutputNames())

	x, err := tensor.FromFloat32([]float32{0.5, -1, 2, 0.25}, tensor.Shape{1, 4})
	require.NoError(t, err)

	ctx := infer.NewContext(eng)
	defer ctx.Release()

	res, err := ctx.Run(map[string]*tensor.Native{"x": x})
	require.NoError(t, err)

	want, err := convert.NewDispatcher(nil).Replay(nil, m.Trace(), m.Params(), []tensor.Value{x})
	require.NoError(t, err)

	got, ok := res.Get("act")
	require.True(t, ok)
	require.NoError(t, convert.VerifyOutputs([]string{"act"}, want, []*tensor.Native{got}, 1e-4))
}

func TestBufferPoolRecyclesAcrossContexts(t *testing.T) {
	rt := testRuntime(t)

	net := NewNetwork()
	x, err := net.AddInput("x", tensor.Shape{64}, tensor.Float32)
	require.NoError(t, err)
	ref, err := net.AddLayer("relu", "relu_0", []tensor.Handle{x}, nil)
	require.NoError(t, err)
	require.NoError(t, net.MarkOutput("y", tensor.NewHandle(ref, "relu_0", tensor.Shape{64}, tensor.Float32)))

	eng, err := Compile(rt, net)
	require.NoError(t, err)
	defer eng.Release()

	in, err := tensor.FromFloat32(make([]float32, 64), tensor.Shape{64})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ctx := infer.NewContext(eng)
		_, runErr := ctx.Run(map[string]*tensor.Native{"x": in})
		require.NoError(t, runErr)
		require.NoError(t, ctx.Release())
	}

	hits, misses := rt.pool.Stats()
	t.Logf("pool hits=%d misses=%d", hits, misses)
	assert.Greater(t, hits, uint64(0), "later contexts reuse the first context's buffers")
}
