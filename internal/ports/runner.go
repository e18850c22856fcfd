package ports

import (
	"context"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
)

// Runner executes a script request inside an isolated worker.
//
// Script failures (syntax errors, exceptions, timeouts) are reported in the
// returned Result. An error means the worker itself could not be used.
type Runner interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Result, error)
	Close() error
}
