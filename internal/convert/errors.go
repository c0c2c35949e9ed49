// Package convert implements the dual-mode graph replay engine: the same
// traced operation sequence either executes eagerly on host arrays or emits
// equivalent layers into a backend network under construction, decided per
// operation by the active mode context and a constant-folding check.
package convert

import (
	"fmt"

	"github.com/graft-ml/graft/internal/tensor"
)

// UnsupportedOperationError reports a traced operation with no registered
// handler. Fatal to the enclosing replay.
type UnsupportedOperationError struct {
	Op    string
	Scope string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("no handler registered for operation %q (scope %q)", e.Op, e.Scope)
}

// DanglingParameterReferenceError reports a retained operation referencing a
// parameter removed by filtering. Fatal at module construction.
type DanglingParameterReferenceError struct {
	Param string
	Scope string
}

func (e *DanglingParameterReferenceError) Error() string {
	return fmt.Sprintf("operation at scope %q references parameter %q removed by filtering", e.Scope, e.Param)
}

// ModeContextMisuseError reports unmatched or conflicting network
// activation. Surfaced immediately at the offending call.
type ModeContextMisuseError struct {
	Reason string
}

func (e *ModeContextMisuseError) Error() string {
	return "mode context misuse: " + e.Reason
}

// ShapeOrDtypeMismatchError reports disagreement between native-mode and
// backend-mode results for the same trace. Produced only by the optional
// verification pass; dispatch itself never raises it.
type ShapeOrDtypeMismatchError struct {
	Output    string
	WantShape tensor.Shape
	GotShape  tensor.Shape
	WantDType tensor.DataType
	GotDType  tensor.DataType
}

func (e *ShapeOrDtypeMismatchError) Error() string {
	return fmt.Sprintf("output %q: native mode produced %s%v, backend mode produced %s%v",
		e.Output, e.WantDType, e.WantShape, e.GotDType, e.GotShape)
}
