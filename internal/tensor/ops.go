package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// Eager kernels used by the native branch of every handler. All kernels are
// pure: inputs are never mutated and a fresh Native is returned.

func checkFloat(op string, ns ...*Native) error {
	for _, n := range ns {
		if n.DType() != Float32 && n.DType() != Float64 {
			return fmt.Errorf("%s: unsupported dtype %s", op, n.DType())
		}
	}
	for _, n := range ns[1:] {
		if n.DType() != ns[0].DType() {
			return fmt.Errorf("%s: mixed dtypes %s and %s", op, ns[0].DType(), n.DType())
		}
	}
	return nil
}

// broadcastOffsets maps a flat output index to the source offset of a tensor
// being broadcast to outShape.
func broadcastOffset(flat int, outShape Shape, outStrides []int, src *Native) int {
	srcShape := src.Shape()
	srcStrides := src.Strides()
	pad := len(outShape) - len(srcShape)
	offset := 0
	for i := range outShape {
		idx := flat / outStrides[i]
		flat %= outStrides[i]
		if i < pad {
			continue
		}
		if srcShape[i-pad] != 1 {
			offset += idx * srcStrides[i-pad]
		}
	}
	return offset
}

func binaryOp(op string, a, b *Native, f32 func(x, y float32) float32, f64 func(x, y float64) float64) (*Native, error) {
	if err := checkFloat(op, a, b); err != nil {
		return nil, err
	}
	outShape, err := BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := NewNative(outShape, a.DType(), CPU)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	outStrides := outShape.ComputeStrides()
	sameShape := a.Shape().Equal(b.Shape()) && a.Shape().Equal(outShape)

	if a.DType() == Float32 {
		av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
		if sameShape {
			for i := range ov {
				ov[i] = f32(av[i], bv[i])
			}
			return out, nil
		}
		for i := range ov {
			ov[i] = f32(av[broadcastOffset(i, outShape, outStrides, a)], bv[broadcastOffset(i, outShape, outStrides, b)])
		}
		return out, nil
	}

	av, bv, ov := a.AsFloat64(), b.AsFloat64(), out.AsFloat64()
	if sameShape {
		for i := range ov {
			ov[i] = f64(av[i], bv[i])
		}
		return out, nil
	}
	for i := range ov {
		ov[i] = f64(av[broadcastOffset(i, outShape, outStrides, a)], bv[broadcastOffset(i, outShape, outStrides, b)])
	}
	return out, nil
}

func unaryOp(op string, x *Native, f32 func(v float32) float32, f64 func(v float64) float64) (*Native, error) {
	if err := checkFloat(op, x); err != nil {
		return nil, err
	}
	out, err := NewNative(x.Shape(), x.DType(), CPU)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if x.DType() == Float32 {
		xv, ov := x.AsFloat32(), out.AsFloat32()
		for i := range ov {
			ov[i] = f32(xv[i])
		}
	} else {
		xv, ov := x.AsFloat64(), out.AsFloat64()
		for i := range ov {
			ov[i] = f64(xv[i])
		}
	}
	return out, nil
}

// Add performs broadcasted element-wise addition.
func Add(a, b *Native) (*Native, error) {
	return binaryOp("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs broadcasted element-wise subtraction.
func Sub(a, b *Native) (*Native, error) {
	return binaryOp("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs broadcasted element-wise multiplication.
func Mul(a, b *Native) (*Native, error) {
	return binaryOp("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs broadcasted element-wise division.
func Div(a, b *Native) (*Native, error) {
	return binaryOp("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// Sigmoid computes 1/(1+exp(-x)) element-wise.
func Sigmoid(x *Native) (*Native, error) {
	return unaryOp("sigmoid", x,
		func(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) },
		func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
}

// Tanh computes the hyperbolic tangent element-wise.
func Tanh(x *Native) (*Native, error) {
	return unaryOp("tanh", x,
		func(v float32) float32 { return float32(math.Tanh(float64(v))) },
		math.Tanh)
}

// Relu computes max(0, x) element-wise.
func Relu(x *Native) (*Native, error) {
	return unaryOp("relu", x,
		func(v float32) float32 {
			if v > 0 {
				return v
			}
			return 0
		},
		func(v float64) float64 {
			if v > 0 {
				return v
			}
			return 0
		})
}

// Exp computes e^x element-wise.
func Exp(x *Native) (*Native, error) {
	return unaryOp("exp", x,
		func(v float32) float32 { return float32(math.Exp(float64(v))) },
		math.Exp)
}

// Softmax computes a numerically stable softmax along the given axis.
func Softmax(x *Native, axis int) (*Native, error) {
	if err := checkFloat("softmax", x); err != nil {
		return nil, err
	}
	ax, err := x.Shape().Axis(axis)
	if err != nil {
		return nil, fmt.Errorf("softmax: %w", err)
	}
	out, err := NewNative(x.Shape(), x.DType(), CPU)
	if err != nil {
		return nil, err
	}

	shape := x.Shape()
	axisLen := shape[ax]
	inner := 1
	for i := ax + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	outer := x.NumElements() / (axisLen * inner)

	softmaxRows := func(get func(i int) float64, set func(i int, v float64)) {
		for o := 0; o < outer; o++ {
			for in := 0; in < inner; in++ {
				base := o*axisLen*inner + in
				maxV := math.Inf(-1)
				for k := 0; k < axisLen; k++ {
					if v := get(base + k*inner); v > maxV {
						maxV = v
					}
				}
				sum := 0.0
				for k := 0; k < axisLen; k++ {
					e := math.Exp(get(base+k*inner) - maxV)
					set(base+k*inner, e)
					sum += e
				}
				for k := 0; k < axisLen; k++ {
					set(base+k*inner, get(base+k*inner)/sum)
				}
			}
		}
	}

	if x.DType() == Float32 {
		xv, ov := x.AsFloat32(), out.AsFloat32()
		copy(ov, xv)
		softmaxRows(
			func(i int) float64 { return float64(ov[i]) },
			func(i int, v float64) { ov[i] = float32(v) })
	} else {
		xv, ov := x.AsFloat64(), out.AsFloat64()
		copy(ov, xv)
		softmaxRows(
			func(i int) float64 { return ov[i] },
			func(i int, v float64) { ov[i] = v })
	}
	return out, nil
}

// MatMul multiplies two matrices, or batches of matrices when rank > 2. The
// trailing two dimensions are contracted; leading batch dimensions must
// match. GEMM is delegated to gonum BLAS.
func MatMul(a, b *Native) (*Native, error) {
	if err := checkFloat("matmul", a, b); err != nil {
		return nil, err
	}
	as, bs := a.Shape(), b.Shape()
	if len(as) < 2 || len(bs) < 2 {
		return nil, fmt.Errorf("matmul: both inputs must have rank >= 2, got %v and %v", as, bs)
	}
	if len(as) != len(bs) {
		return nil, fmt.Errorf("matmul: rank mismatch %v vs %v", as, bs)
	}
	m, k := as[len(as)-2], as[len(as)-1]
	k2, n := bs[len(bs)-2], bs[len(bs)-1]
	if k != k2 {
		return nil, fmt.Errorf("matmul: inner dimensions disagree: %v vs %v", as, bs)
	}
	batch := 1
	outShape := make(Shape, len(as))
	for i := 0; i < len(as)-2; i++ {
		if as[i] != bs[i] {
			return nil, fmt.Errorf("matmul: batch dimensions disagree: %v vs %v", as, bs)
		}
		batch *= as[i]
		outShape[i] = as[i]
	}
	outShape[len(outShape)-2], outShape[len(outShape)-1] = m, n

	out, err := NewNative(outShape, a.DType(), CPU)
	if err != nil {
		return nil, err
	}

	if a.DType() == Float32 {
		av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
		for i := 0; i < batch; i++ {
			ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: av[i*m*k : (i+1)*m*k]}
			gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: bv[i*k*n : (i+1)*k*n]}
			gc := blas32.General{Rows: m, Cols: n, Stride: n, Data: ov[i*m*n : (i+1)*m*n]}
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, ga, gb, 0, gc)
		}
		return out, nil
	}

	av, bv, ov := a.AsFloat64(), b.AsFloat64(), out.AsFloat64()
	for i := 0; i < batch; i++ {
		ga := blas64.General{Rows: m, Cols: k, Stride: k, Data: av[i*m*k : (i+1)*m*k]}
		gb := blas64.General{Rows: k, Cols: n, Stride: n, Data: bv[i*k*n : (i+1)*k*n]}
		gc := blas64.General{Rows: m, Cols: n, Stride: n, Data: ov[i*m*n : (i+1)*m*n]}
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, ga, gb, 0, gc)
	}
	return out, nil
}

// Linear computes x @ w^T + bias where w has shape [outFeatures, inFeatures]
// and bias (optional, may be nil) has shape [outFeatures].
func Linear(x, w, bias *Native) (*Native, error) {
	if err := checkFloat("linear", x, w); err != nil {
		return nil, err
	}
	xs, ws := x.Shape(), w.Shape()
	if len(xs) != 2 || len(ws) != 2 {
		return nil, fmt.Errorf("linear: expected 2-D input and weight, got %v and %v", xs, ws)
	}
	m, k := xs[0], xs[1]
	outF, inF := ws[0], ws[1]
	if k != inF {
		return nil, fmt.Errorf("linear: input features %d do not match weight %v", k, ws)
	}
	out, err := NewNative(Shape{m, outF}, x.DType(), CPU)
	if err != nil {
		return nil, err
	}

	if x.DType() == Float32 {
		ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: x.AsFloat32()}
		gb := blas32.General{Rows: outF, Cols: inF, Stride: inF, Data: w.AsFloat32()}
		gc := blas32.General{Rows: m, Cols: outF, Stride: outF, Data: out.AsFloat32()}
		blas32.Gemm(blas.NoTrans, blas.Trans, 1, ga, gb, 0, gc)
	} else {
		ga := blas64.General{Rows: m, Cols: k, Stride: k, Data: x.AsFloat64()}
		gb := blas64.General{Rows: outF, Cols: inF, Stride: inF, Data: w.AsFloat64()}
		gc := blas64.General{Rows: m, Cols: outF, Stride: outF, Data: out.AsFloat64()}
		blas64.Gemm(blas.NoTrans, blas.Trans, 1, ga, gb, 0, gc)
	}
	if bias == nil {
		return out, nil
	}
	return Add(out, bias)
}

// Reshape returns a view under a new shape. One dimension may be -1 and is
// inferred from the element count.
func Reshape(x *Native, shape Shape) (*Native, error) {
	resolved := shape.Clone()
	infer := -1
	known := 1
	for i, d := range resolved {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d == -1:
			return nil, fmt.Errorf("reshape: at most one dimension may be -1, got %v", shape)
		case d <= 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d in %v", d, shape)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || x.NumElements()%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension for %v from %v", shape, x.Shape())
		}
		resolved[infer] = x.NumElements() / known
	}
	return x.WithShape(resolved)
}

// Transpose permutes the axes. An empty perm reverses them.
func Transpose(x *Native, perm []int) (*Native, error) {
	rank := len(x.Shape())
	if len(perm) == 0 {
		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}
	if len(perm) != rank {
		return nil, fmt.Errorf("transpose: perm %v does not match rank %d", perm, rank)
	}
	seen := make([]bool, rank)
	outShape := make(Shape, rank)
	for i, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, fmt.Errorf("transpose: invalid perm %v", perm)
		}
		seen[p] = true
		outShape[i] = x.Shape()[p]
	}
	out, err := NewNative(outShape, x.DType(), CPU)
	if err != nil {
		return nil, err
	}

	inStrides := x.Strides()
	outStrides := outShape.ComputeStrides()
	elemSize := x.DType().Size()
	total := x.NumElements()
	for flat := 0; flat < total; flat++ {
		rem := flat
		src := 0
		for i := 0; i < rank; i++ {
			idx := rem / outStrides[i]
			rem %= outStrides[i]
			src += idx * inStrides[perm[i]]
		}
		copy(out.data[flat*elemSize:(flat+1)*elemSize], x.data[src*elemSize:(src+1)*elemSize])
	}
	return out, nil
}

// Concat joins tensors along the given axis. All inputs must agree on dtype
// and on every other dimension.
func Concat(xs []*Native, axis int) (*Native, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("concat: no inputs")
	}
	ax, err := xs[0].Shape().Axis(axis)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	outShape := xs[0].Shape().Clone()
	for _, x := range xs[1:] {
		s := x.Shape()
		if len(s) != len(outShape) || x.DType() != xs[0].DType() {
			return nil, fmt.Errorf("concat: mismatched inputs %v and %v", xs[0], x)
		}
		for i := range s {
			if i != ax && s[i] != outShape[i] {
				return nil, fmt.Errorf("concat: shapes %v and %v disagree outside axis %d", xs[0].Shape(), s, ax)
			}
		}
		outShape[ax] += s[ax]
	}
	out, err := NewNative(outShape, xs[0].DType(), CPU)
	if err != nil {
		return nil, err
	}

	elemSize := xs[0].DType().Size()
	inner := 1
	for i := ax + 1; i < len(outShape); i++ {
		inner *= outShape[i]
	}
	outer := 1
	for i := 0; i < ax; i++ {
		outer *= outShape[i]
	}
	rowBytes := inner * elemSize
	dstOffset := 0
	for o := 0; o < outer; o++ {
		for _, x := range xs {
			n := x.Shape()[ax] * rowBytes
			src := o * n
			copy(out.data[dstOffset:dstOffset+n], x.data[src:src+n])
			dstOffset += n
		}
	}
	return out, nil
}

// Flatten collapses dimensions from startDim onward into one.
func Flatten(x *Native, startDim int) (*Native, error) {
	ax, err := x.Shape().Axis(startDim)
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	outShape := x.Shape()[:ax].Clone()
	tail := 1
	for _, d := range x.Shape()[ax:] {
		tail *= d
	}
	outShape = append(outShape, tail)
	return x.WithShape(outShape)
}

// Cast converts the value to a different dtype. Only float conversions are
// supported; integer casts have no traced-operation source today.
func Cast(x *Native, dtype DataType) (*Native, error) {
	if x.DType() == dtype {
		return x.Clone(), nil
	}
	vals := x.Float32Values()
	out, err := NewNative(x.Shape(), dtype, x.Device())
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		copy(out.AsFloat32(), vals)
	case Float16:
		EncodeFloat16(out.data, vals)
	case Float64:
		dst := out.AsFloat64()
		for i, v := range vals {
			dst[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("cast: unsupported target dtype %s", dtype)
	}
	return out, nil
}
