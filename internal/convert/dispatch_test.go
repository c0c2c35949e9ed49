package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

// sigmoidSoftmaxTrace is the canonical two-operation graph
// y = sigmoid(x); z = softmax(y, axis=1) over an input of shape [1, 10].
func sigmoidSoftmaxTrace() *trace.Trace {
	return &trace.Trace{
		NumInputs: 1,
		Ops: []trace.Operation{
			{Name: "sigmoid", Inputs: []trace.Ref{trace.InputRef(0)}, Scope: "sigmoid_0"},
			{Name: "softmax", Inputs: []trace.Ref{trace.OpRef(0, 0)}, Attrs: trace.Attrs{"axis": 1}, Scope: "softmax_1"},
		},
		Outputs: []trace.Ref{trace.OpRef(1, 0)},
	}
}

func rampInput(t *testing.T) *tensor.Native {
	t.Helper()
	data := make([]float32, 10)
	for i := range data {
		data[i] = float32(i) - 4.5
	}
	n, err := tensor.FromFloat32(data, tensor.Shape{1, 10})
	require.NoError(t, err)
	return n
}

func TestReplayNativeMatchesDirectComputation(t *testing.T) {
	d := NewDispatcher(nil)
	x := rampInput(t)

	outs, err := d.Replay(nil, sigmoidSoftmaxTrace(), nil, []tensor.Value{x})
	require.NoError(t, err)
	require.Len(t, outs, 1)

	sig, err := tensor.Sigmoid(x)
	require.NoError(t, err)
	want, err := tensor.Softmax(sig, 1)
	require.NoError(t, err)

	got, err := tensor.AsNative(outs[0])
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 10}, got.Shape())
	for i, w := range want.AsFloat32() {
		assert.InDelta(t, float64(w), float64(got.AsFloat32()[i]), 1e-6)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	d := NewDispatcher(nil)
	x := rampInput(t)

	first, err := d.Replay(nil, sigmoidSoftmaxTrace(), nil, []tensor.Value{x})
	require.NoError(t, err)
	second, err := d.Replay(nil, sigmoidSoftmaxTrace(), nil, []tensor.Value{x})
	require.NoError(t, err)

	a, _ := tensor.AsNative(first[0])
	b, _ := tensor.AsNative(second[0])
	assert.Equal(t, a.AsFloat32(), b.AsFloat32())
}

func TestReplayEmitsLayersInTraceOrder(t *testing.T) {
	d := NewDispatcher(nil)
	net := &stubNetwork{}
	act := NewActivation()
	release, err := act.Use(net)
	require.NoError(t, err)
	defer release() //nolint:errcheck

	x := stubInput("x", tensor.Shape{1, 10})
	outs, err := d.Replay(act, sigmoidSoftmaxTrace(), nil, []tensor.Value{x})
	require.NoError(t, err)
	require.Len(t, outs, 1)

	// Exactly two layers, in order, each fed by a backend-resident input.
	require.Len(t, net.layers, 2)
	assert.Equal(t, "sigmoid", net.layers[0].kind)
	assert.Equal(t, "softmax", net.layers[1].kind)
	assert.Equal(t, []string{"x"}, net.layers[0].inputs)
	assert.Equal(t, []string{"sigmoid_0"}, net.layers[1].inputs)

	// The replay result is backend-resident with intact metadata.
	h, ok := outs[0].(tensor.Handle)
	require.True(t, ok)
	assert.True(t, h.BackendResident())
	assert.Equal(t, tensor.Shape{1, 10}, h.Shape())
	assert.Equal(t, "softmax_1", h.Name)
}

// Property: a graph with no backend-resident ancestor folds entirely to
// native evaluation even while a network is active, and produces the same
// numbers as plain native mode.
func TestConstantFoldingInsideActiveNetwork(t *testing.T) {
	tr := &trace.Trace{
		NumInputs: 0,
		Consts:    []*tensor.Native{mustF32(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 4})},
		Ops: []trace.Operation{
			{Name: "sigmoid", Inputs: []trace.Ref{trace.ConstRef(0)}, Scope: "sigmoid_0"},
			{Name: "softmax", Inputs: []trace.Ref{trace.OpRef(0, 0)}, Attrs: trace.Attrs{"axis": 1}, Scope: "softmax_1"},
		},
		Outputs: []trace.Ref{trace.OpRef(1, 0)},
	}

	d := NewDispatcher(nil)

	eager, err := d.Replay(nil, tr, nil, nil)
	require.NoError(t, err)

	net := &stubNetwork{}
	act := NewActivation()
	release, err := act.Use(net)
	require.NoError(t, err)
	defer release() //nolint:errcheck

	folded, err := d.Replay(act, tr, nil, nil)
	require.NoError(t, err)

	// No layers were emitted and the results are identical.
	assert.Empty(t, net.layers)
	a, err := tensor.AsNative(eager[0])
	require.NoError(t, err)
	b, err := tensor.AsNative(folded[0])
	require.NoError(t, err)
	assert.Equal(t, a.AsFloat32(), b.AsFloat32())
}

// A native-computed value feeding an op with a backend-resident sibling
// input re-enters the network as a constant.
func TestFoldedValueBecomesNetworkConstant(t *testing.T) {
	tr := &trace.Trace{
		NumInputs: 1,
		Consts:    []*tensor.Native{mustF32(t, []float32{2, 2, 2, 2}, tensor.Shape{1, 4})},
		Ops: []trace.Operation{
			// Pure-constant subgraph: folds to native.
			{Name: "relu", Inputs: []trace.Ref{trace.ConstRef(0)}, Scope: "relu_0"},
			// Mixed inputs: emits, folding the relu result in.
			{Name: "mul", Inputs: []trace.Ref{trace.InputRef(0), trace.OpRef(0, 0)}, Scope: "mul_1"},
		},
		Outputs: []trace.Ref{trace.OpRef(1, 0)},
	}

	net := &stubNetwork{}
	act := NewActivation()
	release, err := act.Use(net)
	require.NoError(t, err)
	defer release() //nolint:errcheck

	d := NewDispatcher(nil)
	outs, err := d.Replay(act, tr, nil, []tensor.Value{stubInput("x", tensor.Shape{1, 4})})
	require.NoError(t, err)

	require.Len(t, net.layers, 1)
	assert.Equal(t, "mul", net.layers[0].kind)
	require.Len(t, net.constants, 1)
	assert.True(t, outs[0].BackendResident())
}

func TestReplayUnknownOperationAborts(t *testing.T) {
	tr := sigmoidSoftmaxTrace()
	tr.Ops[1].Name = "grid_sample"

	d := NewDispatcher(nil)
	_, err := d.Replay(nil, tr, nil, []tensor.Value{rampInput(t)})

	var unsupported *UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "grid_sample", unsupported.Op)
	assert.Equal(t, "softmax_1", unsupported.Scope)
}

func TestReplayHandlerFailureAbortsWithScope(t *testing.T) {
	tr := sigmoidSoftmaxTrace()
	tr.Ops[1].Attrs = trace.Attrs{"axis": 7} // out of range for [1,10]

	d := NewDispatcher(nil)
	_, err := d.Replay(nil, tr, nil, []tensor.Value{rampInput(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "softmax_1")
}

func TestReplayArityMismatch(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Replay(nil, sigmoidSoftmaxTrace(), nil, nil)
	assert.Error(t, err)
}

func mustF32(t *testing.T, data []float32, shape tensor.Shape) *tensor.Native {
	t.Helper()
	n, err := tensor.FromFloat32(data, shape)
	require.NoError(t, err)
	return n
}
