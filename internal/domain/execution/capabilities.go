package execution

import (
	"slices"
	"strings"
)

// Handle is a library bound into the script namespace under a fixed name.
type Handle struct {
	Name   string `json:"name" yaml:"name"`
	Module string `json:"module" yaml:"module"`
}

// Capabilities is the explicit set of names a script may use.
//
// Nothing outside Builtins, Modules, the dataset and Handles is reachable
// from the script namespace.
type Capabilities struct {
	DatasetName string
	// Builtins are the interpreter built-ins exposed to the script.
	Builtins []string
	// Modules are the top-level modules the script may import.
	Modules []string
	Handles []Handle
	// ResultNames are checked in order to pick Result.ResultValue.
	ResultNames []string
	// ReservedPrefix marks implementation-internal names.
	ReservedPrefix string
}

// DefaultCapabilities returns the data-analysis profile.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		DatasetName: "df",
		Builtins:    slices.Clone(defaultBuiltins),
		Modules:     slices.Clone(defaultModules),
		Handles: []Handle{
			{Name: "pd", Module: "pandas"},
			{Name: "np", Module: "numpy"},
			{Name: "plt", Module: "matplotlib.pyplot"},
			{Name: "sns", Module: "seaborn"},
			{Name: "sklearn", Module: "sklearn"},
			{Name: "scipy", Module: "scipy"},
			{Name: "plotly", Module: "plotly"},
		},
		ResultNames:    []string{"result", "output"},
		ReservedPrefix: "__",
	}
}

// WithModules returns a copy that also allows importing extra modules.
func (c Capabilities) WithModules(extra ...string) Capabilities {
	out := c
	out.Modules = slices.Clone(c.Modules)
	for _, mod := range extra {
		mod = strings.TrimSpace(mod)
		if mod != "" && !slices.Contains(out.Modules, mod) {
			out.Modules = append(out.Modules, mod)
		}
	}
	return out
}

// HandleNames lists the names handles are bound under.
func (c Capabilities) HandleNames() []string {
	names := make([]string, len(c.Handles))
	for i, h := range c.Handles {
		names[i] = h.Name
	}
	return names
}

// Excluded reports whether a namespace binding is hidden from Result.Variables.
func (c Capabilities) Excluded(name string) bool {
	if c.ReservedPrefix != "" && strings.HasPrefix(name, c.ReservedPrefix) {
		return true
	}
	if name == c.DatasetName {
		return true
	}
	for _, h := range c.Handles {
		if h.Name == name {
			return true
		}
	}
	return false
}

// SelectResult picks the value bound to the first present result name.
func (c Capabilities) SelectResult(vars Variables) *Value {
	for _, name := range c.ResultNames {
		if v, ok := vars.Get(name); ok {
			return &v
		}
	}
	return nil
}

var defaultBuiltins = []string{
	// constructors and conversions
	"bool", "bytes", "bytearray", "complex", "dict", "float", "frozenset",
	"int", "list", "object", "range", "set", "slice", "str", "tuple", "type",
	// numeric and iteration helpers
	"abs", "all", "any", "ascii", "bin", "callable", "chr", "divmod",
	"enumerate", "filter", "format", "getattr", "hasattr", "hash", "hex",
	"id", "isinstance", "issubclass", "iter", "len", "map", "max", "min",
	"next", "oct", "ord", "pow", "print", "repr", "reversed", "round",
	"sorted", "sum", "zip",
	// class definitions
	"__build_class__", "classmethod", "property", "staticmethod", "super",
	// exceptions
	"ArithmeticError", "AssertionError", "AttributeError", "BaseException",
	"Exception", "FloatingPointError", "ImportError", "IndexError",
	"KeyError", "LookupError", "ModuleNotFoundError", "NameError",
	"NotImplementedError", "OverflowError", "RuntimeError", "StopIteration",
	"TypeError", "UserWarning", "ValueError", "Warning", "ZeroDivisionError",
	"NotImplemented", "Ellipsis",
}

var defaultModules = []string{
	"pandas", "numpy", "matplotlib", "seaborn", "sklearn", "scipy", "plotly",
	"statsmodels", "math", "statistics", "random", "collections",
	"itertools", "functools", "operator", "datetime", "decimal",
	"fractions", "json", "re", "string", "textwrap", "dataclasses",
	"typing", "enum", "copy", "heapq", "bisect", "warnings",
}
