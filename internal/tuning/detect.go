package tuning

import (
	"iter"
	"slices"
	"strings"
)

// Scan yields the tunable parameters of script from top to bottom.
//
// A name is reported once, at its first assignment; later assignments of
// the same name are ignored. A line that cannot be parsed is skipped
// without affecting the rest of the scan. The sequence may be ranged over
// any number of times.
func Scan(script string) iter.Seq[Parameter] {
	return func(yield func(Parameter) bool) {
		seen := make(map[string]struct{})
		for idx, line := range strings.Split(script, "\n") {
			match, ok := matchLine(line)
			if !ok {
				continue
			}
			if _, dup := seen[match.name]; dup {
				continue
			}
			seen[match.name] = struct{}{}

			param, err := match.parameter(idx + 1)
			if err != nil {
				continue
			}
			if !yield(param) {
				return
			}
		}
	}
}

// Detect returns every parameter Scan yields.
func Detect(script string) []Parameter {
	return slices.Collect(Scan(script))
}

// HasAdjustable reports whether script contains at least one parameter.
func HasAdjustable(script string) bool {
	for range Scan(script) {
		return true
	}
	return false
}
