// Package trace defines the operation-record data model consumed from an
// external tracer. A trace is a recorded sequence of operations, already in
// a valid execution order, whose inputs reference module inputs, parameters,
// trace-time constants, or the outputs of earlier operations.
package trace

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
)

// RefKind discriminates the source of an operation input.
type RefKind int

// Reference kinds.
const (
	// RefInput references a module input by position.
	RefInput RefKind = iota
	// RefParam references a bound parameter or buffer by name.
	RefParam
	// RefConst references a trace-time literal by index.
	RefConst
	// RefOp references output Output of the operation at index Index.
	RefOp
)

// Ref identifies a value flowing into an operation.
type Ref struct {
	Kind   RefKind
	Index  int    // input position, const index, or producing op index
	Output int    // output slot of the producing op (RefOp only)
	Name   string // parameter name (RefParam only)
}

// InputRef references the module input at position i.
func InputRef(i int) Ref { return Ref{Kind: RefInput, Index: i} }

// ParamRef references the parameter or buffer with the given name.
func ParamRef(name string) Ref { return Ref{Kind: RefParam, Name: name} }

// ConstRef references the trace constant at index i.
func ConstRef(i int) Ref { return Ref{Kind: RefConst, Index: i} }

// OpRef references output slot out of the operation at index op.
func OpRef(op, out int) Ref { return Ref{Kind: RefOp, Index: op, Output: out} }

// Attrs holds an operation's attributes as recorded by the tracer.
type Attrs map[string]any

// Int returns an integer attribute, or def when absent.
func (a Attrs) Int(name string, def int) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Float returns a float attribute, or def when absent.
func (a Attrs) Float(name string, def float64) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return def
	}
}

// Ints returns an integer-slice attribute, or nil when absent.
func (a Attrs) Ints(name string) []int {
	switch v := a[name].(type) {
	case []int:
		return v
	case []int64:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out
	default:
		return nil
	}
}

// String returns a string attribute, or def when absent.
func (a Attrs) String(name, def string) string {
	if v, ok := a[name].(string); ok {
		return v
	}
	return def
}

// Bool returns a boolean attribute, or def when absent.
func (a Attrs) Bool(name string, def bool) bool {
	if v, ok := a[name].(bool); ok {
		return v
	}
	return def
}

// Operation is a single traced operation. Immutable once captured.
type Operation struct {
	// Name is the operation name resolved against the handler registry.
	Name string
	// Inputs reference the operation's inputs in positional order.
	Inputs []Ref
	// Attrs carries literal attributes (axis, permutation, ...).
	Attrs Attrs
	// Scope is unique within one trace; it names emitted layers and
	// locates failures in diagnostics.
	Scope string
	// NumOutputs is the number of values the operation produces.
	// Zero means one.
	NumOutputs int
}

func (op *Operation) outputs() int {
	if op.NumOutputs <= 0 {
		return 1
	}
	return op.NumOutputs
}

// Trace is a captured operation sequence plus the declared input and output
// slots of the traced callable.
type Trace struct {
	// Ops in execution order. The order is the dependency order: an
	// operation may only reference earlier operations.
	Ops []Operation
	// NumInputs is the traced callable's input arity.
	NumInputs int
	// Outputs are the declared outputs in declared order. This order is
	// fixed at trace time and independent of any backend ordering.
	Outputs []Ref
	// Consts are trace-time literals referenced by RefConst.
	Consts []*tensor.Native
}

// Validate checks referential integrity: every Ref must resolve within the
// trace and RefOp references must point strictly backwards.
func (t *Trace) Validate() error {
	check := func(r Ref, at int, where string) error {
		switch r.Kind {
		case RefInput:
			if r.Index < 0 || r.Index >= t.NumInputs {
				return fmt.Errorf("%s: input reference %d out of range (arity %d)", where, r.Index, t.NumInputs)
			}
		case RefConst:
			if r.Index < 0 || r.Index >= len(t.Consts) {
				return fmt.Errorf("%s: constant reference %d out of range", where, r.Index)
			}
		case RefOp:
			if r.Index < 0 || r.Index >= at {
				return fmt.Errorf("%s: operation reference %d does not point backwards", where, r.Index)
			}
			if r.Output < 0 || r.Output >= t.Ops[r.Index].outputs() {
				return fmt.Errorf("%s: output slot %d out of range for %q", where, r.Output, t.Ops[r.Index].Name)
			}
		case RefParam:
			if r.Name == "" {
				return fmt.Errorf("%s: parameter reference with empty name", where)
			}
		default:
			return fmt.Errorf("%s: unknown reference kind %d", where, r.Kind)
		}
		return nil
	}

	for i := range t.Ops {
		op := &t.Ops[i]
		for j, in := range op.Inputs {
			if err := check(in, i, fmt.Sprintf("op %q (scope %q) input %d", op.Name, op.Scope, j)); err != nil {
				return err
			}
		}
	}
	for j, out := range t.Outputs {
		if err := check(out, len(t.Ops), fmt.Sprintf("declared output %d", j)); err != nil {
			return err
		}
	}
	return nil
}

// ParamRefs returns the set of parameter names referenced by retained
// operations, in first-reference order.
func (t *Trace) ParamRefs() []string {
	seen := make(map[string]bool)
	var names []string
	for i := range t.Ops {
		for _, in := range t.Ops[i].Inputs {
			if in.Kind == RefParam && !seen[in.Name] {
				seen[in.Name] = true
				names = append(names, in.Name)
			}
		}
	}
	return names
}

// ScopeOf returns the scope of the operation producing the referenced value,
// or a description for non-operation references. Diagnostics only.
func (t *Trace) ScopeOf(r Ref) string {
	switch r.Kind {
	case RefOp:
		if r.Index >= 0 && r.Index < len(t.Ops) {
			return t.Ops[r.Index].Scope
		}
	case RefInput:
		return fmt.Sprintf("input[%d]", r.Index)
	case RefParam:
		return "param:" + r.Name
	case RefConst:
		return fmt.Sprintf("const[%d]", r.Index)
	}
	return "?"
}
