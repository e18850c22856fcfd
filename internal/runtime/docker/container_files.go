package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Acteus/Base-ML-Platform/internal/runtime/pyharness"
)

const (
	// maxOutcomeBytes bounds how much of the outcome file is read back.
	maxOutcomeBytes = 64 << 20

	stopGrace   = 5 * time.Second
	reapTimeout = 15 * time.Second
)

// stageFiles places files in dir inside the container as one tar archive.
func (c *containerEngine) stageFiles(ctx context.Context, containerID, dir string, files []pyharness.File) error {
	if len(files) == 0 {
		return nil
	}

	archive, err := tarFiles(files, time.Now())
	if err != nil {
		return err
	}

	return c.cli.CopyToContainer(ctx, containerID, dir, bytes.NewReader(archive), types.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

func tarFiles(files []pyharness.File, modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, file := range files {
		mode := file.Mode
		if mode == 0 {
			mode = 0o644
		}

		if err := tw.WriteHeader(&tar.Header{
			Name:     file.Name,
			Mode:     mode,
			Size:     int64(len(file.Data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}); err != nil {
			return nil, fmt.Errorf("archive %s: %w", file.Name, err)
		}
		if _, err := tw.Write(file.Data); err != nil {
			return nil, fmt.Errorf("archive %s: %w", file.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// readFile returns the contents of the first regular file in the archive
// the Docker API produces for srcPath.
func (c *containerEngine) readFile(ctx context.Context, containerID, srcPath string) ([]byte, error) {
	rc, _, err := c.cli.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return nil, fmt.Errorf("copy %s from container: %w", srcPath, err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: no regular file in archive", srcPath)
		}
		if err != nil {
			return nil, fmt.Errorf("read archive for %s: %w", srcPath, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Size > maxOutcomeBytes {
			return nil, fmt.Errorf("%s is %d bytes, limit %d", srcPath, header.Size, maxOutcomeBytes)
		}
		return io.ReadAll(tr)
	}
}

// stopOverdue kills a container that outlived its time limit and collects
// whatever it printed before that.
func (c *containerEngine) stopOverdue(containerID string, started time.Time) (*runOutput, error) {
	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopGrace)
	defer cancelStop()

	kill := 0
	if err := c.cli.ContainerStop(stopCtx, containerID, container.StopOptions{Timeout: &kill}); err != nil && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("stop overdue container: %w", err)
	}

	reapCtx, cancelReap := context.WithTimeout(context.Background(), reapTimeout)
	defer cancelReap()

	out := &runOutput{ExitCode: -1, TimedOut: true}
	status, err := c.waitForExit(reapCtx, containerID)
	switch {
	case err == nil:
		out.ExitCode = status.StatusCode
	case errors.Is(err, context.DeadlineExceeded), client.IsErrNotFound(err):
	default:
		return nil, fmt.Errorf("reap overdue container: %w", err)
	}
	out.Duration = time.Since(started)

	out.Stdout, out.Stderr, err = c.collectLogs(context.Background(), containerID)
	if err != nil {
		return nil, fmt.Errorf("collect logs: %w", err)
	}
	return out, nil
}

func (c *containerEngine) waitForExit(ctx context.Context, containerID string) (container.WaitResponse, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return status, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return status, nil
	case err := <-errCh:
		return container.WaitResponse{}, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return container.WaitResponse{}, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

// collectLogs splits the multiplexed log stream into stdout and stderr,
// keeping at most MaxOutputBytes of each. The stream is still read to the
// end so a chatty script cannot grow host memory.
func (c *containerEngine) collectLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	outBuf := &cappedBuffer{limit: c.config.MaxOutputBytes}
	errBuf := &cappedBuffer{limit: c.config.MaxOutputBytes}
	if _, err := stdcopy.StdCopy(outBuf, errBuf, logs); err != nil {
		return "", "", err
	}
	return outBuf.String(), errBuf.String(), nil
}

// cappedBuffer keeps the first limit bytes written to it and counts the rest.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int64
	dropped int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room < 0 {
		room = 0
	}
	keep := int64(len(p))
	if keep > room {
		keep = room
	}
	b.buf.Write(p[:keep])
	b.dropped += int64(len(p)) - keep
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.dropped == 0 {
		return b.buf.String()
	}
	return fmt.Sprintf("%s\n... [output truncated: %d bytes omitted]\n", b.buf.String(), b.dropped)
}
