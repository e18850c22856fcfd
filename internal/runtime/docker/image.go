package docker

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	typesimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/Acteus/Base-ML-Platform/internal/runtime/pyharness"
)

// SandboxImage is the tag of the image built from the embedded Dockerfile.
// It carries the data-analysis stack every library handle expects.
const SandboxImage = "scriptlab-sandbox:py3.12-1"

//go:embed sandbox/Dockerfile
var sandboxDockerfile []byte

// ensureImage makes ref available to the daemon. A missing SandboxImage is
// built locally; any other missing image is pulled.
func (c *containerEngine) ensureImage(ctx context.Context, ref string) error {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	if ref == SandboxImage {
		return c.buildSandboxImage(ctx, ref)
	}
	return c.pullImage(ctx, ref)
}

func (c *containerEngine) pullImage(ctx context.Context, ref string) error {
	progress, err := c.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer progress.Close()

	if err := drainProgress(progress); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}

func (c *containerEngine) buildSandboxImage(ctx context.Context, ref string) error {
	buildContext, err := tarFiles([]pyharness.File{{Name: "Dockerfile", Data: sandboxDockerfile}}, time.Now())
	if err != nil {
		return fmt.Errorf("build image %s: %w", ref, err)
	}

	resp, err := c.cli.ImageBuild(ctx, bytes.NewReader(buildContext), types.ImageBuildOptions{
		Tags:        []string{ref},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("build image %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if err := drainProgress(resp.Body); err != nil {
		return fmt.Errorf("build image %s: %w", ref, err)
	}
	return nil
}

// drainProgress reads a pull or build progress stream to the end. The daemon
// reports failures inside the stream, with a successful HTTP status.
func drainProgress(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.ErrorMessage != "" {
			return errors.New(msg.ErrorMessage)
		}
	}
}
