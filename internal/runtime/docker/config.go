package docker

import (
	"log/slog"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
)

// DefaultMaxOutputBytes caps each of stdout and stderr kept per run.
const DefaultMaxOutputBytes = 1 << 20

const (
	defaultUser      = "65534:65534"
	defaultWorkdir   = "/tmp"
	defaultPidsLimit = 256
	defaultNanoCPUs  = 1_000_000_000
)

// Config describes how to create a Docker-backed script engine.
type Config struct {
	// Image must provide a python interpreter. Defaults to SandboxImage;
	// handles whose library the image lacks are reported unavailable.
	Image   string
	Workdir string
	// User runs the interpreter. Defaults to nobody (65534:65534).
	User          string
	DefaultLimits execution.RunLimits
	// Capabilities defaults to execution.DefaultCapabilities when DatasetName is empty.
	Capabilities execution.Capabilities
	// AllowNetwork attaches the sandbox to the default network. Off by default.
	AllowNetwork bool
	PidsLimit    int64
	NanoCPUs     int64
	// SkipPull uses the local image without contacting a registry.
	SkipPull bool
	// MaxOutputBytes caps each captured stream; the rest is dropped.
	MaxOutputBytes int64
	Logger         *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = SandboxImage
	}
	if c.User == "" {
		c.User = defaultUser
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.Workdir == "" {
		c.Workdir = defaultWorkdir
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = defaultPidsLimit
	}
	if c.NanoCPUs <= 0 {
		c.NanoCPUs = defaultNanoCPUs
	}
	if c.Capabilities.DatasetName == "" {
		c.Capabilities = execution.DefaultCapabilities()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
