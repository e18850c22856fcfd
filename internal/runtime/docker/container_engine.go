package docker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/runtime/pyharness"
)

// containerEngine runs one program per throwaway container.
type containerEngine struct {
	cli    dockerClient
	config Config
}

// programSpec is one sandboxed process: its argv and environment, plus the
// files staged into the working directory and the file it leaves behind.
type programSpec struct {
	command []string
	env     []string
	files   []pyharness.File
	outcome string
}

// runOutput is what a finished or stopped container left behind.
type runOutput struct {
	Stdout    string
	Stderr    string
	ExitCode  int64
	Duration  time.Duration
	TimedOut  bool
	OOMKilled bool
	// Outcome is nil when the program did not write its outcome file.
	Outcome    []byte
	OutcomeErr error
}

func newContainerEngine(cli dockerClient, cfg Config) *containerEngine {
	return &containerEngine{cli: cli, config: cfg}
}

func (c *containerEngine) runProgram(ctx context.Context, limits execution.RunLimits, spec programSpec) (*runOutput, error) {
	containerID, err := c.createContainer(ctx, limits, spec)
	if err != nil {
		return nil, err
	}
	defer c.removeContainer(containerID)

	if err := c.stageFiles(ctx, containerID, c.config.Workdir, spec.files); err != nil {
		return nil, fmt.Errorf("stage files: %w", err)
	}

	started := time.Now()
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, limits.TimeLimit)
	status, err := c.waitForExit(deadlineCtx, containerID)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return c.stopOverdue(containerID, started)
	default:
		return nil, err
	}

	out := &runOutput{ExitCode: status.StatusCode, Duration: time.Since(started)}

	// A cancelled caller still gets the logs of a container that finished.
	collectCtx := ctx
	if collectCtx.Err() != nil {
		collectCtx = context.Background()
	}

	state, err := c.cli.ContainerInspect(collectCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container: %w", err)
	}
	out.OOMKilled = state.ContainerJSONBase != nil && state.State != nil && state.State.OOMKilled

	out.Stdout, out.Stderr, err = c.collectLogs(collectCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("collect logs: %w", err)
	}

	if spec.outcome != "" {
		out.Outcome, out.OutcomeErr = c.readFile(collectCtx, containerID, path.Join(c.config.Workdir, spec.outcome))
	}
	return out, nil
}

func (c *containerEngine) hostConfig(limits execution.RunLimits) *container.HostConfig {
	pids := c.config.PidsLimit
	host := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs:  c.config.NanoCPUs,
			PidsLimit: &pids,
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}
	if !c.config.AllowNetwork {
		host.NetworkMode = container.NetworkMode("none")
	}
	if limits.MemoryLimitBytes > 0 {
		// Equal swap and memory limits leave the process no swap to spill into.
		host.Resources.Memory = limits.MemoryLimitBytes
		host.Resources.MemorySwap = limits.MemoryLimitBytes
	}
	return host
}

func (c *containerEngine) createContainer(ctx context.Context, limits execution.RunLimits, spec programSpec) (string, error) {
	cfg := &container.Config{
		Image:           c.config.Image,
		Cmd:             spec.command,
		Env:             spec.env,
		User:            c.config.User,
		WorkingDir:      c.config.Workdir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: !c.config.AllowNetwork,
	}

	created, err := c.cli.ContainerCreate(ctx, cfg, c.hostConfig(limits), nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return created.ID, nil
}

func (c *containerEngine) removeContainer(containerID string) {
	_ = c.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
}
