package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromF32(t *testing.T, data []float32, shape Shape) *Native {
	t.Helper()
	n, err := FromFloat32(data, shape)
	require.NoError(t, err)
	return n
}

func TestAddBroadcast(t *testing.T) {
	a := fromF32(t, []float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	b := fromF32(t, []float32{10, 20, 30}, Shape{3})

	out, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestAddScalarBroadcast(t *testing.T) {
	a := fromF32(t, []float32{1, 2, 3, 4}, Shape{2, 2})
	out, err := Add(a, Scalar(0.5))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2.5, 3.5, 4.5}, out.AsFloat32())
}

func TestBinaryOpsDoNotMutateInputs(t *testing.T) {
	a := fromF32(t, []float32{1, 2}, Shape{2})
	b := fromF32(t, []float32{3, 4}, Shape{2})
	_, err := Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, a.AsFloat32())
	assert.Equal(t, []float32{3, 4}, b.AsFloat32())
}

func TestSigmoid(t *testing.T) {
	x := fromF32(t, []float32{0, 2, -2}, Shape{3})
	out, err := Sigmoid(x)
	require.NoError(t, err)

	want := []float64{0.5, 1 / (1 + math.Exp(-2)), 1 / (1 + math.Exp(2))}
	for i, w := range want {
		assert.InDelta(t, w, float64(out.AsFloat32()[i]), 1e-6)
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	x := fromF32(t, []float32{1, 2, 3, 4, 1000, 1000, 1000, 1000}, Shape{2, 4})
	out, err := Softmax(x, 1)
	require.NoError(t, err)

	v := out.AsFloat32()
	for row := 0; row < 2; row++ {
		sum := float64(0)
		for col := 0; col < 4; col++ {
			sum += float64(v[row*4+col])
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", row)
	}
	// Large magnitudes must not overflow thanks to the max-shift.
	assert.InDelta(t, 0.25, float64(v[4]), 1e-5)
}

func TestSoftmaxNegativeAxis(t *testing.T) {
	x := fromF32(t, []float32{1, 2, 3, 4}, Shape{2, 2})
	a, err := Softmax(x, -1)
	require.NoError(t, err)
	b, err := Softmax(x, 1)
	require.NoError(t, err)
	assert.Equal(t, a.AsFloat32(), b.AsFloat32())
}

func TestMatMul2D(t *testing.T) {
	a := fromF32(t, []float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	b := fromF32(t, []float32{7, 8, 9, 10, 11, 12}, Shape{3, 2})

	out, err := MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMulBatched(t *testing.T) {
	a := fromF32(t, []float32{1, 0, 0, 1, 2, 0, 0, 2}, Shape{2, 2, 2})
	b := fromF32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, Shape{2, 2, 2})

	out, err := MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 10, 12, 14, 16}, out.AsFloat32())
}

func TestMatMulShapeErrors(t *testing.T) {
	a := fromF32(t, []float32{1, 2, 3, 4}, Shape{2, 2})
	b := fromF32(t, []float32{1, 2, 3}, Shape{3, 1})
	_, err := MatMul(a, b)
	assert.Error(t, err)
}

func TestLinear(t *testing.T) {
	x := fromF32(t, []float32{1, 2}, Shape{1, 2})
	w := fromF32(t, []float32{1, 0, 0, 1, 1, 1}, Shape{3, 2}) // [out=3, in=2]
	bias := fromF32(t, []float32{10, 20, 30}, Shape{3})

	out, err := Linear(x, w, bias)
	require.NoError(t, err)
	assert.Equal(t, Shape{1, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33}, out.AsFloat32())
}

func TestReshapeInferred(t *testing.T) {
	x := fromF32(t, []float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	out, err := Reshape(x, Shape{3, -1})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, out.Shape())

	_, err = Reshape(x, Shape{4, -1})
	assert.Error(t, err)
}

func TestTranspose2D(t *testing.T) {
	x := fromF32(t, []float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	out, err := Transpose(x, nil)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.AsFloat32())
}

func TestConcat(t *testing.T) {
	a := fromF32(t, []float32{1, 2, 3, 4}, Shape{2, 2})
	b := fromF32(t, []float32{5, 6, 7, 8}, Shape{2, 2})

	rows, err := Concat([]*Native{a, b}, 0)
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 2}, rows.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, rows.AsFloat32())

	cols, err := Concat([]*Native{a, b}, 1)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 4}, cols.Shape())
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4, 7, 8}, cols.AsFloat32())
}

func TestFlatten(t *testing.T) {
	x := fromF32(t, make([]float32, 24), Shape{2, 3, 4})
	out, err := Flatten(x, 1)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 12}, out.Shape())
}

func TestCastFloat16RoundTrip(t *testing.T) {
	x := fromF32(t, []float32{0.5, -1.25, 3}, Shape{3})
	half, err := Cast(x, Float16)
	require.NoError(t, err)
	assert.Equal(t, Float16, half.DType())

	back, err := Cast(half, Float32)
	require.NoError(t, err)
	for i, v := range x.AsFloat32() {
		assert.InDelta(t, float64(v), float64(back.AsFloat32()[i]), 1e-3)
	}
}
