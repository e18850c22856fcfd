// Package pyharness packages a script run for the Python sandbox harness
// and turns the harness outcome back into an execution.Result.
package pyharness

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
)

const (
	HarnessFilename = "harness.py"
	RequestFilename = "request.json"
	OutcomeFilename = "outcome.json"
)

//go:embed harness.py
var harnessSource []byte

// File is a file placed in the sandbox working directory.
type File struct {
	Name string
	Mode int64
	Data []byte
}

// Command is the argv that runs the harness inside the sandbox.
func Command() []string {
	return []string{"python", "-u", "-B", HarnessFilename, RequestFilename, OutcomeFilename}
}

// Env is the environment the harness expects. MPLCONFIGDIR is left to the
// image; the harness falls back to a directory under the workdir.
func Env(workdir string) []string {
	return []string{
		"HOME=" + workdir,
		"TMPDIR=" + workdir,
		"MPLBACKEND=Agg",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONIOENCODING=utf-8",
	}
}

type harnessRequest struct {
	Source       string             `json:"source"`
	Dataset      *execution.Dataset `json:"dataset"`
	Capabilities harnessCaps        `json:"capabilities"`
}

type harnessCaps struct {
	DatasetName    string             `json:"dataset_name"`
	Builtins       []string           `json:"builtins"`
	Modules        []string           `json:"modules"`
	Handles        []execution.Handle `json:"handles"`
	ReservedPrefix string             `json:"reserved_prefix"`
}

// Files returns the harness, and the request it reads, for one run.
func Files(source string, dataset *execution.Dataset, caps execution.Capabilities) ([]File, error) {
	if err := dataset.Validate(); err != nil {
		return nil, err
	}

	handles := caps.Handles
	if handles == nil {
		handles = []execution.Handle{}
	}

	payload, err := json.Marshal(harnessRequest{
		Source:  source,
		Dataset: dataset,
		Capabilities: harnessCaps{
			DatasetName:    caps.DatasetName,
			Builtins:       caps.Builtins,
			Modules:        caps.Modules,
			Handles:        handles,
			ReservedPrefix: caps.ReservedPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode harness request: %w", err)
	}

	return []File{
		{Name: HarnessFilename, Mode: 0o644, Data: harnessSource},
		{Name: RequestFilename, Mode: 0o644, Data: payload},
	}, nil
}
