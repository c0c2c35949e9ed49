package trace

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EnsureScopes assigns a unique scope to every operation that lacks one and
// disambiguates duplicates. Scopes double as emitted layer names, so the
// invariant "globally unique within one trace" must hold before dispatch.
//
// Missing scopes become "<name>_<n>"; colliding scopes gain a short random
// suffix so externally supplied names are preserved as a prefix.
func EnsureScopes(t *Trace) {
	seen := make(map[string]bool, len(t.Ops))
	for i := range t.Ops {
		op := &t.Ops[i]
		if op.Scope == "" {
			op.Scope = fmt.Sprintf("%s_%d", op.Name, i)
		}
		for seen[op.Scope] {
			salt := strings.SplitN(uuid.NewString(), "-", 2)[0]
			op.Scope = op.Scope + "_" + salt
		}
		seen[op.Scope] = true
	}
}
