package convert

import (
	"fmt"
	"math"

	"github.com/graft-ml/graft/internal/tensor"
)

// VerifyOutputs compares native-mode replay outputs against the results of
// backend execution for the same trace and sample inputs. Shape or dtype
// disagreement is reported as ShapeOrDtypeMismatchError; numeric
// disagreement beyond tol reports the first offending element. names,
// native and backend are parallel, in declared output order.
//
// The core never runs this automatically: agreement between the two modes
// is the caller's correctness contract, and this helper is the optional
// verification pass over sample data.
func VerifyOutputs(names []string, native []tensor.Value, backend []*tensor.Native, tol float64) error {
	if len(native) != len(backend) || len(names) != len(native) {
		return fmt.Errorf("verify: output count mismatch: %d names, %d native, %d backend",
			len(names), len(native), len(backend))
	}

	for i, name := range names {
		want, err := tensor.AsNative(native[i])
		if err != nil {
			return fmt.Errorf("verify: output %q: %w", name, err)
		}
		got := backend[i]

		if !want.Shape().Equal(got.Shape()) || want.DType() != got.DType() {
			return &ShapeOrDtypeMismatchError{
				Output:    name,
				WantShape: want.Shape(),
				GotShape:  got.Shape(),
				WantDType: want.DType(),
				GotDType:  got.DType(),
			}
		}

		wv := want.Float32Values()
		gv := got.Float32Values()
		for j := range wv {
			if diff := math.Abs(float64(wv[j]) - float64(gv[j])); diff > tol || math.IsNaN(diff) {
				return fmt.Errorf("verify: output %q element %d: native %g vs backend %g (tolerance %g)",
					name, j, wv[j], gv[j], tol)
			}
		}
	}
	return nil
}
