package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docker/docker/client"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
	"github.com/Acteus/Base-ML-Platform/internal/runtime/pyharness"
)

var _ ports.Runner = (*Engine)(nil)

// Engine runs scripts in single-use Docker containers through the embedded
// Python harness.
type Engine struct {
	client     dockerClient
	containers *containerEngine
	config     Config
	logger     *slog.Logger

	imageMu    sync.Mutex
	imageReady bool
}

// New constructs an Engine using the supplied configuration.
func New(cfg Config) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}

	return newEngineWithClient(cli, cfg), nil
}

func newEngineWithClient(cli dockerClient, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		client:     cli,
		containers: newContainerEngine(cli, cfg),
		config:     cfg,
		logger:     cfg.Logger.With("component", "docker"),
	}
}

// Capabilities reports what scripts run by this engine can reach.
func (e *Engine) Capabilities() execution.Capabilities {
	return e.config.Capabilities
}

// Execute runs one request. Script failures are reported in the result;
// the error is reserved for faults of the engine itself.
func (e *Engine) Execute(ctx context.Context, req execution.Request) (*execution.Result, error) {
	if err := e.ensureImage(ctx); err != nil {
		return nil, err
	}

	files, err := pyharness.Files(req.Source, req.Dataset, e.config.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("prepare harness: %w", err)
	}

	limits := effectiveLimits(e.config.DefaultLimits, req.Limits)
	out, err := e.containers.runProgram(ctx, limits, programSpec{
		command: pyharness.Command(),
		env:     pyharness.Env(e.config.Workdir),
		files:   files,
		outcome: pyharness.OutcomeFilename,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", req.ID, err)
	}

	result := &execution.Result{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Duration: out.Duration,
	}

	switch {
	case out.TimedOut:
		result.Err = &execution.ScriptError{
			Kind:    execution.ErrorTimeout,
			Message: fmt.Sprintf("execution timed out after %s", limits.TimeLimit),
		}
	case out.Outcome == nil:
		result.Err = e.sandboxFailure(req.ID, out)
	default:
		if err := e.applyOutcome(result, out.Outcome); err != nil {
			e.logger.Warn("decode outcome", "id", req.ID, "error", err)
			result.Err = &execution.ScriptError{Kind: execution.ErrorSandbox, Message: err.Error()}
		}
	}

	if len(result.UnavailableHandles) > 0 {
		e.logger.Warn("library handles unavailable", "id", req.ID, "handles", result.UnavailableHandles)
	}

	result.Finalize()
	return result, nil
}

func (e *Engine) applyOutcome(result *execution.Result, data []byte) error {
	outcome, err := pyharness.Decode(data)
	if err != nil {
		return err
	}
	return outcome.Apply(result, e.config.Capabilities)
}

func (e *Engine) sandboxFailure(id string, out *runOutput) *execution.ScriptError {
	message := fmt.Sprintf("sandbox exited with status %d without reporting an outcome", out.ExitCode)
	if out.OOMKilled {
		message = "sandbox exceeded its memory limit"
	}
	e.logger.Warn("sandbox failure", "id", id, "exit_code", out.ExitCode, "oom", out.OOMKilled, "outcome_error", out.OutcomeErr)
	return &execution.ScriptError{Kind: execution.ErrorSandbox, Message: message}
}

// ensureImage provisions the image on first use. Failures are not
// remembered, so a later request retries.
func (e *Engine) ensureImage(ctx context.Context) error {
	if e.config.SkipPull {
		return nil
	}

	e.imageMu.Lock()
	defer e.imageMu.Unlock()
	if e.imageReady {
		return nil
	}
	if err := e.containers.ensureImage(ctx, e.config.Image); err != nil {
		return err
	}
	e.imageReady = true
	return nil
}

// Close releases the Docker client.
func (e *Engine) Close() error {
	var errs []error
	if err := e.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("docker client: %w", err))
	}
	return errors.Join(errs...)
}
