package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graft-ml/graft/internal/tensor"
	"github.com/graft-ml/graft/internal/trace"
)

func TestNewRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	essential := []string{
		"add", "sub", "mul", "div", "matmul", "linear",
		"sigmoid", "tanh", "relu", "exp", "softmax",
		"reshape", "transpose", "concat", "flatten", "identity", "cast",
	}
	for _, op := range essential {
		if _, err := r.Lookup(op, "test"); err != nil {
			t.Errorf("expected %s to be registered: %v", op, err)
		}
	}
}

func TestLookupUnknownCarriesOpAndScope(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("grid_sample", "backbone.head_0")
	var unsupported *UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "grid_sample", unsupported.Op)
	assert.Equal(t, "backbone.head_0", unsupported.Scope)
	assert.Contains(t, err.Error(), "grid_sample")
	assert.Contains(t, err.Error(), "backbone.head_0")
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()

	replacement := HandlerFuncs{
		Native: func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
			return []tensor.Value{inputs[0]}, nil
		},
	}
	r.Register("relu", replacement)

	h, err := r.Lookup("relu", "s")
	require.NoError(t, err)

	in := tensor.Scalar(-5)
	out, err := h.EvaluateNative([]tensor.Value{in}, nil, "s")
	require.NoError(t, err)
	// The replacement is a passthrough, so the default relu is gone.
	assert.Same(t, in, out[0])
}

func TestHandlerFuncsEmitFallsBackToNative(t *testing.T) {
	h := HandlerFuncs{
		Native: func(inputs []tensor.Value, _ trace.Attrs, _ string) ([]tensor.Value, error) {
			return []tensor.Value{inputs[0]}, nil
		},
	}
	net := &stubNetwork{}
	out, err := h.EmitIntoNetwork(net, []tensor.Value{tensor.Scalar(1)}, nil, "s")
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Empty(t, net.layers)
}
