package tensor

import "fmt"

// Value is the tagged union flowing through the dispatch engine. Exactly
// three variants exist: *Native (host array), Handle (backend network
// tensor), and *Const (trace-time literal, not yet materialized in either
// mode). The set is sealed so handler branches can match exhaustively.
type Value interface {
	// BackendResident reports whether the value lives inside a backend
	// network rather than in host memory. The dispatch engine's
	// constant-folding check is defined in terms of this predicate.
	BackendResident() bool

	// Shape is valid in every representation.
	Shape() Shape

	// DType is valid in every representation.
	DType() DataType

	sealedValue()
}

func (*Native) sealedValue() {}

// BackendResident always reports false for host arrays.
func (*Native) BackendResident() bool { return false }

// Handle references a tensor inside a backend network under construction.
// Ref is owned by the network implementation; the core only carries it.
type Handle struct {
	// Ref is the network implementation's tensor object.
	Ref any

	// Name is the tensor's name inside the network, defaulting to the
	// scope of the operation that emitted it.
	Name string

	shape Shape
	dtype DataType
}

// NewHandle builds a Handle carrying the given shape/dtype metadata.
func NewHandle(ref any, name string, shape Shape, dtype DataType) Handle {
	return Handle{Ref: ref, Name: name, shape: shape.Clone(), dtype: dtype}
}

func (Handle) sealedValue() {}

// BackendResident always reports true for network tensors.
func (Handle) BackendResident() bool { return true }

// Shape returns the metadata shape recorded when the handle was emitted.
func (h Handle) Shape() Shape { return h.shape }

// DType returns the metadata dtype recorded when the handle was emitted.
func (h Handle) DType() DataType { return h.dtype }

// String returns a short description of the handle.
func (h Handle) String() string {
	return fmt.Sprintf("Handle[%s]%v %q", h.dtype, h.shape, h.Name)
}

// Const is a literal scalar or array known at trace time. It is not
// materialized in either mode until a handler asks for it: the native branch
// materializes it as a host array, the emission branch folds it into a
// network constant.
type Const struct {
	lit *Native
}

// NewConst wraps a literal value.
func NewConst(lit *Native) *Const { return &Const{lit: lit} }

// ConstScalar builds a scalar float32 constant.
func ConstScalar(v float32) *Const { return &Const{lit: Scalar(v)} }

func (*Const) sealedValue() {}

// BackendResident always reports false for literals.
func (*Const) BackendResident() bool { return false }

// Shape returns the literal's shape.
func (c *Const) Shape() Shape { return c.lit.Shape() }

// DType returns the literal's dtype.
func (c *Const) DType() DataType { return c.lit.DType() }

// Materialize returns the literal as a host array.
func (c *Const) Materialize() *Native { return c.lit }

// AsNative resolves a Value to a host array. Handles cannot be materialized:
// once a tensor lives inside a network under construction there is no
// evaluation path back to host data.
func AsNative(v Value) (*Native, error) {
	switch t := v.(type) {
	case *Native:
		return t, nil
	case *Const:
		return t.Materialize(), nil
	case Handle:
		return nil, fmt.Errorf("value %q is backend-resident and cannot be materialized", t.Name)
	default:
		return nil, fmt.Errorf("unknown value variant %T", v)
	}
}
