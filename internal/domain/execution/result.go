package execution

import "time"

// StderrMarker separates captured stdout from stderr in Result.Output.
const StderrMarker = "\n[STDERR]\n"

// Result captures the outcome of executing a script.
//
// A Result is built once per run and not modified after it is returned.
type Result struct {
	Success bool
	// Output is stdout, followed by StderrMarker and stderr when stderr is non-empty.
	Output string
	Err    *ScriptError
	// ResultValue is the value bound to the first present result name.
	ResultValue *Value
	Variables   Variables
	Figures     []Figure
	// UnavailableHandles lists library handles that could not be bound.
	UnavailableHandles []string

	Stdout   string
	Stderr   string
	ExitCode int64
	Duration time.Duration
}

// ErrorText returns the formatted failure description, or "" on success.
func (r *Result) ErrorText() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Finalize derives Success and Output from the captured fields.
func (r *Result) Finalize() {
	r.Success = r.Err == nil
	r.Output = MergeOutput(r.Stdout, r.Stderr)
}

// MergeOutput joins the two captured streams for display.
func MergeOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	return stdout + StderrMarker + stderr
}

// Failed builds a finalized Result for a run that did not complete.
func Failed(kind ErrorKind, message string) *Result {
	r := &Result{Err: &ScriptError{Kind: kind, Message: message}}
	r.Finalize()
	return r
}
