package convert

import (
	"fmt"
	"regexp"

	"github.com/graft-ml/graft/internal/tensor"
)

// Filter selects which parameters and buffers stay bound to a module.
// Include (when non-empty) restricts the table to matching names first;
// Exclude then removes matches from that set, so exclusion wins on conflict.
type Filter struct {
	Include string
	Exclude string
}

// Apply returns the filtered parameter table. The input map is not
// modified. Patterns are anchored the way the tracer reports names are
// matched: a pattern matches anywhere in the name unless anchored
// explicitly.
func (f Filter) Apply(params map[string]*tensor.Native) (map[string]*tensor.Native, error) {
	var include, exclude *regexp.Regexp
	var err error
	if f.Include != "" {
		if include, err = regexp.Compile(f.Include); err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", f.Include, err)
		}
	}
	if f.Exclude != "" {
		if exclude, err = regexp.Compile(f.Exclude); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", f.Exclude, err)
		}
	}

	kept := make(map[string]*tensor.Native, len(params))
	for name, v := range params {
		if include != nil && !include.MatchString(name) {
			continue
		}
		if exclude != nil && exclude.MatchString(name) {
			continue
		}
		kept[name] = v
	}
	return kept, nil
}
