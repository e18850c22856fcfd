package ports

import (
	"context"
	"errors"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
)

// ErrInvalidRequest marks a request that could not be decoded. Consumers
// skip it and keep reading.
var ErrInvalidRequest = errors.New("invalid run request")

// RequestProducer supplies run requests to the executor service.
//
// NextRequest returns io.EOF once no further requests will arrive.
type RequestProducer interface {
	NextRequest(ctx context.Context) (execution.Request, error)
}
