package pyharness

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
)

const (
	phaseCompile = "compile"
	phaseRuntime = "runtime"
)

// Outcome is what the harness reports after running a script.
type Outcome struct {
	Error          *outcomeError `json:"error,omitempty"`
	Namespace      []binding     `json:"namespace"`
	Figures        []figure      `json:"figures"`
	MissingHandles []string      `json:"missing_handles"`
}

type outcomeError struct {
	Phase     string `json:"phase"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
	Line      int    `json:"line"`
}

type binding struct {
	Name  string          `json:"name"`
	Value execution.Value `json:"value"`
}

type figure struct {
	Number int    `json:"number"`
	Label  string `json:"label"`
	PNG    string `json:"png"`
}

// Decode parses the outcome file written by the harness.
func Decode(data []byte) (*Outcome, error) {
	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode harness outcome: %w", err)
	}
	return &out, nil
}

// Apply copies the outcome into result, filtering the namespace through caps.
func (o *Outcome) Apply(result *execution.Result, caps execution.Capabilities) error {
	if o.Error != nil {
		result.Err = o.Error.scriptError()
	}

	vars := make(execution.Variables, 0, len(o.Namespace))
	for _, b := range o.Namespace {
		if caps.Excluded(b.Name) {
			continue
		}
		vars = append(vars, execution.Variable{Name: b.Name, Value: b.Value})
	}
	if len(vars) > 0 {
		result.Variables = vars
		result.ResultValue = caps.SelectResult(vars)
	}

	for _, f := range o.Figures {
		png, err := base64.StdEncoding.DecodeString(f.PNG)
		if err != nil {
			return fmt.Errorf("decode figure %d: %w", f.Number, err)
		}
		result.Figures = append(result.Figures, execution.Figure{Number: f.Number, Label: f.Label, PNG: png})
	}

	result.UnavailableHandles = append(result.UnavailableHandles, o.MissingHandles...)
	return nil
}

func (e *outcomeError) scriptError() *execution.ScriptError {
	kind := execution.ErrorSandbox
	switch e.Phase {
	case phaseCompile:
		kind = execution.ErrorCompile
	case phaseRuntime:
		kind = execution.ErrorRuntime
	}
	return &execution.ScriptError{
		Kind:      kind,
		Type:      e.Type,
		Message:   e.Message,
		Traceback: e.Traceback,
		Line:      e.Line,
	}
}
