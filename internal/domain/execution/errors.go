package execution

import "strings"

// ErrorKind classifies why a script did not complete.
type ErrorKind string

const (
	// ErrorCompile means the script is not well-formed.
	ErrorCompile ErrorKind = "compile"
	// ErrorRuntime means the script raised while running.
	ErrorRuntime ErrorKind = "runtime"
	// ErrorTimeout means the script exceeded its time budget.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorSandbox means the isolated worker itself failed.
	ErrorSandbox ErrorKind = "sandbox"
)

// Label is the human-readable phase label for the kind.
func (k ErrorKind) Label() string {
	switch k {
	case ErrorCompile:
		return "Syntax Error"
	case ErrorRuntime:
		return "Runtime Error"
	case ErrorTimeout:
		return "Timeout Error"
	default:
		return "Sandbox Error"
	}
}

// ScriptError describes a failed run.
type ScriptError struct {
	Kind ErrorKind
	// Type is the exception class raised by the script, e.g. "ValueError".
	Type      string
	Message   string
	Traceback string
	// Line is the 1-based script line of a syntax error, or zero.
	Line int
}

func (e *ScriptError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Label())
	b.WriteString(": ")
	if e.Type != "" {
		b.WriteString(e.Type)
		if e.Message != "" {
			b.WriteString(": ")
		}
	}
	b.WriteString(e.Message)
	if e.Traceback != "" {
		b.WriteString("\n")
		b.WriteString(e.Traceback)
	}
	return b.String()
}
