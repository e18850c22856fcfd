package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/observability"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
	"github.com/Acteus/Base-ML-Platform/internal/tuning"
)

// Service coordinates script execution through a runner implementation.
type Service struct {
	runtime ports.Runner
	logger  *slog.Logger
}

// NewService constructs a Service with the provided runner dependency.
func NewService(runtime ports.Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runtime: runtime, logger: logger.With("component", "executor")}
}

// Run executes one request and always returns a finalized result. Faults of
// the runner itself are reported as sandbox errors, and an expired caller
// deadline as a timeout.
func (s *Service) Run(ctx context.Context, req execution.Request) *execution.Result {
	result, _ := s.execute(ctx, req)
	return result
}

// Handle applies the request's parameter updates, runs the resulting
// script and re-detects its tunable parameters.
func (s *Service) Handle(ctx context.Context, req execution.Request) execution.RunReport {
	source := req.Source
	if len(req.Parameters) > 0 {
		source = tuning.Rewrite(source, req.Parameters)
	}

	run := req
	run.Source = source
	result, err := s.execute(ctx, run)

	params := tuning.Detect(source)
	for _, p := range params {
		observability.ParametersDetectedTotal.WithLabelValues(p.Category).Inc()
	}

	return execution.RunReport{
		Request:    req,
		Source:     source,
		Result:     result,
		Parameters: params,
		Err:        err,
	}
}

func (s *Service) execute(ctx context.Context, req execution.Request) (*execution.Result, error) {
	observability.RunsInFlight.Inc()
	defer observability.RunsInFlight.Dec()

	result, err := s.runtime.Execute(ctx, req)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		result = execution.Failed(execution.ErrorTimeout, "execution timed out: caller deadline exceeded")
	case err != nil && errors.Is(err, context.Canceled):
		result = execution.Failed(execution.ErrorSandbox, "execution cancelled")
	case err != nil:
		result = execution.Failed(execution.ErrorSandbox, err.Error())
	case result == nil:
		err = fmt.Errorf("runner returned no result for %q", req.ID)
		result = execution.Failed(execution.ErrorSandbox, err.Error())
	}

	outcome := observability.OutcomeSuccess
	if result.Err != nil {
		outcome = string(result.Err.Kind)
	}
	observability.ObserveRun(outcome, result.Duration, len(result.Figures), result.UnavailableHandles)

	if err != nil {
		s.logger.Error("run failed", "id", req.ID, "error", err)
	} else {
		s.logger.Info("run finished", "id", req.ID, "outcome", outcome, "duration", result.Duration, "variables", len(result.Variables), "figures", len(result.Figures))
	}

	return result, err
}

// ExecuteFromProducer pulls requests from the supplied producer and runs them with bounded parallelism.
//
// If maxRequests is greater than zero the execution stops after the specified
// number of requests has been processed. Otherwise it keeps consuming until the
// context is cancelled or the producer signals completion via io.EOF.
// Requests the producer reports as ports.ErrInvalidRequest are skipped.
//
// When onReport is provided it is invoked after every run with the
// corresponding report.
func (s *Service) ExecuteFromProducer(
	ctx context.Context,
	producer ports.RequestProducer,
	maxRequests int,
	maxParallel int,
	onReport func(execution.RunReport),
) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)
	processed := 0

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		if maxRequests > 0 && processed >= maxRequests {
			return finish(nil)
		}

		req, err := producer.NextRequest(ctx)
		if err != nil {
			if errors.Is(err, ports.ErrInvalidRequest) {
				observability.InvalidRequestsTotal.Inc()
				s.logger.Warn("skipping invalid request", "error", err)
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return finish(nil)
			}

			return finish(fmt.Errorf("get next request: %w", err))
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return finish(nil)
		}
		wg.Add(1)
		processed++
		go func(req execution.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			report := s.Handle(ctx, req)
			if onReport != nil {
				onReport(report)
			}
		}(req)
	}
}

// Close releases any resources owned by the underlying runner.
func (s *Service) Close() error {
	return s.runtime.Close()
}
