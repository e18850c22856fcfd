package tuning

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// Rewrite replaces the value of the first assignment of each name in
// updates and returns the new script.
//
// The rewritten line keeps its indentation and trailing comment and becomes
// "<indent><name> = <value>". Every other line is left byte-identical.
// Names are matched exactly; names absent from the script are ignored, as
// are NaN and infinite values, which have no literal form.
// Applying the same updates twice yields the same text as applying them once.
func Rewrite(script string, updates map[string]float64) string {
	if len(updates) == 0 {
		return script
	}

	names := make([]string, 0, len(updates))
	for name, v := range updates {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	lines := strings.Split(script, "\n")
	for _, name := range names {
		re := exactAssignment(name)
		for i, line := range lines {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			lines[i] = m[1] + name + " = " + FormatValue(updates[name]) + m[4]
			break
		}
	}

	return strings.Join(lines, "\n")
}

// FormatValue renders v the way Rewrite writes it: integral values without
// a decimal point, other values with at most six fractional digits and no
// trailing zeros.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if v == 0 {
		return "0"
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}

	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
