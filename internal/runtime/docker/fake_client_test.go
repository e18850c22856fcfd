package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// sandboxFake is an in-memory daemon. Each created container plays the next
// queued behaviour; containers created with nothing queued never exit.
type sandboxFake struct {
	mu sync.Mutex

	localImages map[string]bool
	pulled      []string
	// failPulls makes that many upcoming pulls fail.
	failPulls int
	// pullProgress replaces the progress stream of successful pulls.
	pullProgress string
	builds       []build

	queued     []behaviour
	containers map[string]*fakeContainer
	order      []string
	stopped    []string
	closed     bool
}

type build struct {
	tags       []string
	dockerfile string
}

type behaviour struct {
	exits      []exit
	stdout     string
	stderr     string
	oomKilled  bool
	outcome    string
	hasOutcome bool
}

// exit is one answer to ContainerWait; a nil code never answers.
type exit struct {
	code *int64
}

type fakeContainer struct {
	behaviour
	config *container.Config
	host   *container.HostConfig
	staged []stagedArchive
}

type stagedArchive struct {
	dir  string
	data []byte
}

func newSandboxFake() *sandboxFake {
	return &sandboxFake{
		localImages: make(map[string]bool),
		containers:  make(map[string]*fakeContainer),
	}
}

func exitsWith(code int64) behaviour {
	return behaviour{exits: []exit{{code: &code}}}
}

// hangsUntilStopped blocks the first wait and reports code once stopped.
func hangsUntilStopped(code int64) behaviour {
	return behaviour{exits: []exit{{}, {code: &code}}}
}

func (b behaviour) printing(stdout, stderr string) behaviour {
	b.stdout, b.stderr = stdout, stderr
	return b
}

func (b behaviour) reporting(outcome string) behaviour {
	b.outcome, b.hasOutcome = outcome, true
	return b
}

func (b behaviour) outOfMemory() behaviour {
	b.oomKilled = true
	return b
}

func (f *sandboxFake) expect(b behaviour) {
	f.mu.Lock()
	f.queued = append(f.queued, b)
	f.mu.Unlock()
}

func (f *sandboxFake) lastContainer() *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[f.order[len(f.order)-1]]
}

func (f *sandboxFake) pulls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pulled...)
}

func (f *sandboxFake) lookup(id string) (*fakeContainer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, notFound(id)
	}
	return c, nil
}

type notFound string

func (n notFound) Error() string { return fmt.Sprintf("no such object: %s", string(n)) }

func (notFound) NotFound() {}

func (f *sandboxFake) ImageInspectWithRaw(ctx context.Context, ref string) (types.ImageInspect, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.localImages[ref] {
		return types.ImageInspect{}, nil, notFound(ref)
	}
	return types.ImageInspect{ID: ref}, nil, nil
}

func (f *sandboxFake) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, ref)
	if f.failPulls > 0 {
		f.failPulls--
		return nil, fmt.Errorf("registry unreachable")
	}
	progress := f.pullProgress
	if progress == "" {
		progress = `{"status":"Pulling fs layer"}` + "\n" + `{"status":"Downloaded newer image"}`
	}
	f.localImages[ref] = true
	return io.NopCloser(bytes.NewBufferString(progress)), nil
}

func (f *sandboxFake) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	var dockerfile bytes.Buffer
	tr := tar.NewReader(buildContext)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.ImageBuildResponse{}, err
		}
		if header.Name == options.Dockerfile {
			if _, err := io.Copy(&dockerfile, tr); err != nil {
				return types.ImageBuildResponse{}, err
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, build{tags: options.Tags, dockerfile: dockerfile.String()})
	for _, tag := range options.Tags {
		f.localImages[tag] = true
	}
	body := `{"stream":"Step 1/5 : FROM python:3.12-slim\n"}` + "\n" + `{"aux":{"ID":"sha256:feed"}}`
	return types.ImageBuildResponse{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func (f *sandboxFake) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := &fakeContainer{config: config, host: hostConfig}
	if len(f.queued) > 0 {
		c.behaviour = f.queued[0]
		f.queued = f.queued[1:]
	}

	id := fmt.Sprintf("sandbox-%02d", len(f.order)+1)
	f.containers[id] = c
	f.order = append(f.order, id)
	return container.CreateResponse{ID: id}, nil
}

func (f *sandboxFake) CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error {
	c, err := f.lookup(containerID)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	c.staged = append(c.staged, stagedArchive{dir: dstPath, data: data})
	f.mu.Unlock()
	return nil
}

func (f *sandboxFake) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	_, err := f.lookup(containerID)
	return err
}

func (f *sandboxFake) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	c, err := f.lookup(containerID)
	if err != nil {
		errCh <- err
		return statusCh, errCh
	}

	f.mu.Lock()
	var next exit
	if len(c.exits) > 0 {
		next, c.exits = c.exits[0], c.exits[1:]
	}
	f.mu.Unlock()

	if next.code != nil {
		statusCh <- container.WaitResponse{StatusCode: *next.code}
	}
	return statusCh, errCh
}

func (f *sandboxFake) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, containerID)
	f.mu.Unlock()
	return nil
}

func (f *sandboxFake) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	c, err := f.lookup(containerID)
	if err != nil {
		return types.ContainerJSON{}, err
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    containerID,
			State: &types.ContainerState{OOMKilled: c.oomKilled},
		},
	}, nil
}

func (f *sandboxFake) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return nil
}

func (f *sandboxFake) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	c, err := f.lookup(containerID)
	if err != nil {
		return nil, err
	}

	var stream bytes.Buffer
	for _, part := range []struct {
		kind stdcopy.StdType
		text string
	}{{stdcopy.Stdout, c.stdout}, {stdcopy.Stderr, c.stderr}} {
		if part.text != "" {
			_, _ = stdcopy.NewStdWriter(&stream, part.kind).Write([]byte(part.text))
		}
	}
	return io.NopCloser(&stream), nil
}

func (f *sandboxFake) CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, types.ContainerPathStat, error) {
	c, err := f.lookup(containerID)
	if err != nil {
		return nil, types.ContainerPathStat{}, err
	}
	if !c.hasOutcome || path.Base(srcPath) != "outcome.json" {
		return nil, types.ContainerPathStat{}, notFound(srcPath)
	}

	var archive bytes.Buffer
	tw := tar.NewWriter(&archive)
	_ = tw.WriteHeader(&tar.Header{Name: "outcome.json", Mode: 0o644, Size: int64(len(c.outcome)), Typeflag: tar.TypeReg})
	_, _ = tw.Write([]byte(c.outcome))
	_ = tw.Close()

	stat := types.ContainerPathStat{Name: "outcome.json", Size: int64(len(c.outcome))}
	return io.NopCloser(&archive), stat, nil
}

func (f *sandboxFake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
