package tuning

import (
	"math"
	"strings"
)

// hint overrides the generic range for a family of parameter names.
type hint struct {
	category string
	match    func(name string, value float64) bool
	apply    func(p *Parameter)
}

// hints are evaluated in order; the first category that matches wins.
var hints = []hint{
	{
		category: "rate",
		match:    containsAny("rate", "alpha", "eta", "epsilon"),
		apply: func(p *Parameter) {
			p.Min, p.Max = 0.0001, 1.0
			p.Step = 0.001
			if p.RawValue < 0.01 {
				p.Step = 0.0001
			}
		},
	},
	{
		category: "ratio",
		match: func(name string, value float64) bool {
			return value <= 1 && containsAny("dropout", "ratio", "size")(name, value)
		},
		apply: func(p *Parameter) {
			p.Min, p.Max, p.Step = 0, 1, 0.05
		},
	},
	{
		category: "iterations",
		match:    containsAny("epoch", "iteration", "batch"),
		apply: func(p *Parameter) {
			p.Min = 1
			p.Max = math.Max(1000, math.Trunc(p.RawValue)*5)
			p.Step = 1
			if p.RawValue >= 100 {
				p.Step = 10
			}
		},
	},
	{
		category: "depth",
		match:    containsAny("depth", "layer", "level"),
		apply: func(p *Parameter) {
			p.Min, p.Max, p.Step = 1, 50, 1
		},
	},
	{
		category: "count",
		match: func(name string, _ float64) bool {
			return strings.HasPrefix(name, "n_") || strings.HasPrefix(name, "num_")
		},
		apply: func(p *Parameter) {
			p.Min = 1
			p.Max = math.Max(100, math.Trunc(p.RawValue)*5)
			p.Step = 1
		},
	},
	{
		category: "seed",
		match:    containsAny("random", "seed"),
		apply: func(p *Parameter) {
			p.Min, p.Max, p.Step = 0, 9999, 1
		},
	},
	{
		category: "regularization",
		match: func(name string, _ float64) bool {
			return name == "c" || name == "lambda" || name == "lambda_"
		},
		apply: func(p *Parameter) {
			p.Min, p.Max, p.Step = 0.001, 100, 0.1
		},
	},
	{
		category: "momentum",
		match:    containsAny("momentum", "decay", "beta", "gamma"),
		apply: func(p *Parameter) {
			p.Min, p.Max, p.Step = 0, 1, 0.01
		},
	},
}

const categoryGeneral = "general"

func applyHints(p *Parameter) {
	p.Category = categoryGeneral
	name := strings.ToLower(p.Name)
	for _, h := range hints {
		if h.match(name, p.RawValue) {
			p.Category = h.category
			h.apply(p)
			return
		}
	}
}

func containsAny(parts ...string) func(string, float64) bool {
	return func(name string, _ float64) bool {
		for _, part := range parts {
			if strings.Contains(name, part) {
				return true
			}
		}
		return false
	}
}
