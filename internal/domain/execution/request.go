package execution

import (
	"github.com/Acteus/Base-ML-Platform/internal/domain/notebook"
	"github.com/Acteus/Base-ML-Platform/internal/tuning"
)

// Request is a single script run against an optional dataset.
type Request struct {
	ID     string
	Source string
	// Dataset is bound to the dataset name inside the script. Nil binds None.
	Dataset *Dataset
	Limits  RunLimits
	// Parameters are value updates applied to Source before it runs.
	Parameters map[string]float64
	// Notebook describes the notebook Source was flattened from, if any.
	Notebook *notebook.Summary
}

// RunReport captures the outcome of executing a Request.
type RunReport struct {
	Request Request
	// Source is the script text that actually ran, after parameter updates.
	Source     string
	Result     *Result
	Parameters []tuning.Parameter
	Err        error
}
