package tuning

import "math"

// Kind tells whether a literal was written as an integer or a real number.
type Kind string

const (
	KindInt  Kind = "int"
	KindReal Kind = "real"
)

// Parameter is a tunable numeric assignment found in a script.
type Parameter struct {
	Name     string
	Kind     Kind
	// Category groups related parameters for layout, e.g. "rate" or "seed".
	Category string
	RawValue float64
	// Line is 1-based.
	Line int
	// Text is the matched assignment, e.g. "learning_rate = 0.01".
	Text string
	Min  float64
	Max  float64
	Step float64
}

// Contains reports whether v lies inside the parameter's range.
func (p Parameter) Contains(v float64) bool {
	return v >= p.Min && v <= p.Max
}

func newParameter(name string, kind Kind, value float64, line int, text string) Parameter {
	p := Parameter{
		Name:     name,
		Kind:     kind,
		RawValue: value,
		Line:     line,
		Text:     text,
	}
	p.Min, p.Max, p.Step = defaultRange(kind, value)
	applyHints(&p)
	p.normalize()
	return p
}

func defaultRange(kind Kind, value float64) (lo, hi, step float64) {
	if kind == KindInt {
		v := math.Trunc(value)
		return math.Max(0, v-100), math.Max(v+100, v*3), 1
	}

	abs := math.Abs(value)
	switch {
	case abs < 1:
		lo, hi = 0, 1
	case abs < 10:
		lo, hi = 0, value*5
	default:
		lo, hi = 0, value*3
	}

	switch {
	case abs < 0.01:
		step = 0.001
	case abs < 0.1:
		step = 0.01
	case abs < 1:
		step = 0.05
	default:
		step = 0.1
	}
	return lo, hi, step
}

// normalize keeps min <= value <= max and step > 0 whatever the hints chose.
func (p *Parameter) normalize() {
	if p.Min > p.Max {
		p.Min, p.Max = p.Max, p.Min
	}
	p.Min = math.Min(p.Min, p.RawValue)
	p.Max = math.Max(p.Max, p.RawValue)

	if p.Kind == KindInt {
		p.Step = math.Max(1, math.Ceil(p.Step))
	}
	if !(p.Step > 0) {
		p.Step = 1
	}
}
