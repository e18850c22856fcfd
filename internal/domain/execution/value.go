package execution

import (
	"encoding/json"
	"fmt"
)

// Value is a script value captured from the sandbox.
//
// Repr is always set. Data holds a JSON projection of the value when one
// exists (numbers, strings, sequences, mappings, arrays, table heads).
type Value struct {
	Type string          `json:"type"`
	Repr string          `json:"repr"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the value carries a JSON projection.
func (v Value) HasData() bool {
	return len(v.Data) > 0
}

// Decode unmarshals the JSON projection into dst.
func (v Value) Decode(dst any) error {
	if !v.HasData() {
		return fmt.Errorf("value of type %s has no data projection", v.Type)
	}
	return json.Unmarshal(v.Data, dst)
}

// Variable is a named binding created by a script.
type Variable struct {
	Name  string
	Value Value
}

// Variables keeps bindings in the order the script defined them.
type Variables []Variable

// Get returns the value bound to name.
func (vs Variables) Get(name string) (Value, bool) {
	for _, v := range vs {
		if v.Name == name {
			return v.Value, true
		}
	}
	return Value{}, false
}

// Names lists the variable names in definition order.
func (vs Variables) Names() []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}

// Figure is a plot rendered by the script.
type Figure struct {
	Number int
	Label  string
	PNG    []byte
}
