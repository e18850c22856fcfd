//go:build integration

package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/Acteus/Base-ML-Platform/internal/app/executor"
	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/runtime/docker"
)

// imageBuildTimeout covers the first run on a host without the sandbox
// image, which builds it and installs the data stack.
const imageBuildTimeout = 20 * time.Minute

func newDockerService(t *testing.T, timeLimit time.Duration) *executor.Service {
	t.Helper()

	runner, err := docker.New(docker.Config{
		DefaultLimits: execution.RunLimits{
			TimeLimit: timeLimit,
		},
	})
	if err != nil {
		t.Skipf("docker runner unavailable: %v", err)
	}
	service := executor.NewService(runner, nil)
	t.Cleanup(func() { _ = service.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), imageBuildTimeout)
	defer cancel()
	warmUp := execution.Request{ID: "warm-up", Source: "pass\n", Limits: execution.RunLimits{TimeLimit: 2 * time.Minute}}
	if warm := service.Run(ctx, warmUp); !warm.Success {
		t.Skipf("sandbox image unavailable: %s", warm.ErrorText())
	}
	return service
}

func TestServiceRunsScriptsAgainstDocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping docker integration test in short mode")
	}

	service := newDockerService(t, 60*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dataset := &execution.Dataset{Columns: []string{"a", "b"}, Rows: [][]any{{1, 2}, {3, 4}, {5, 6}}}

	t.Run("dataset shape", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{ID: "shape", Source: "df_shape = df.shape\n", Dataset: dataset})
		if !result.Success {
			t.Fatalf("expected success, got %s", result.ErrorText())
		}
		if len(result.UnavailableHandles) != 0 {
			t.Fatalf("expected every handle bound, missing %v", result.UnavailableHandles)
		}
		value, ok := result.Variables.Get("df_shape")
		if !ok {
			t.Fatalf("expected df_shape, got %v", result.Variables.Names())
		}
		var shape []int
		if err := value.Decode(&shape); err != nil || len(shape) != 2 || shape[0] != 3 || shape[1] != 2 {
			t.Fatalf("expected shape (3, 2), got %v (%v)", shape, err)
		}
	})

	t.Run("success", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{
			ID:      "ok",
			Source:  "total = int(df['a'].sum())\nprint('total', total)\nresult = total\n__hidden = 1\n",
			Dataset: dataset,
		})
		if !result.Success {
			t.Fatalf("expected success, got %s", result.ErrorText())
		}
		if result.Output != "total 9\n" {
			t.Fatalf("unexpected output %q", result.Output)
		}
		if result.ResultValue == nil || result.ResultValue.Repr != "9" {
			t.Fatalf("unexpected result %+v", result.ResultValue)
		}
		if _, ok := result.Variables.Get("__hidden"); ok {
			t.Fatalf("reserved names must not be listed")
		}
		if _, ok := result.Variables.Get("df"); ok {
			t.Fatalf("dataset binding must not be listed")
		}
	})

	t.Run("figure", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{
			ID:      "plot",
			Source:  "fig, ax = plt.subplots()\nax.plot(df['a'], df['b'])\n",
			Dataset: dataset,
		})
		if !result.Success {
			t.Fatalf("expected success, got %s", result.ErrorText())
		}
		if len(result.Figures) != 1 {
			t.Fatalf("expected one figure, got %d", len(result.Figures))
		}
		if png := result.Figures[0].PNG; len(png) < 8 || string(png[1:4]) != "PNG" {
			t.Fatalf("expected PNG bytes, got %d bytes", len(png))
		}
	})

	t.Run("runtime error", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{ID: "raise", Source: "print('before')\nraise ValueError('bad input')\n"})
		if result.Success || result.Err.Kind != execution.ErrorRuntime || result.Err.Type != "ValueError" {
			t.Fatalf("expected ValueError runtime failure, got %+v", result.Err)
		}
		if result.Output != "before\n" {
			t.Fatalf("expected output before the failure, got %q", result.Output)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{ID: "syntax", Source: "x = = 1\n"})
		if result.Success || result.Err.Kind != execution.ErrorCompile {
			t.Fatalf("expected compile failure, got %+v", result.Err)
		}
	})

	t.Run("blocked builtins", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{ID: "open", Source: "open('/etc/passwd').read()\n"})
		if result.Success || result.Err.Kind != execution.ErrorRuntime {
			t.Fatalf("expected open to be unavailable, got %+v", result.Err)
		}
	})

	t.Run("blocked import", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{ID: "os", Source: "import os\n"})
		if result.Success || result.Err.Type != "ImportError" {
			t.Fatalf("expected ImportError, got %+v", result.Err)
		}
	})

	t.Run("os reached through an allowed module", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{
			ID:     "escape",
			Source: "import typing\nos = typing.sys.modules['os']\nos.system('id > marker')\n",
		})
		if result.Success || result.Err.Type != "PermissionError" {
			t.Fatalf("expected the shell to be refused, got %+v", result.Err)
		}
	})

	t.Run("runs unprivileged", func(t *testing.T) {
		result := service.Run(ctx, execution.Request{
			ID:     "uid",
			Source: "import typing\nuid = typing.sys.modules['os'].getuid()\n",
		})
		if !result.Success {
			t.Fatalf("expected success, got %s", result.ErrorText())
		}
		if v, _ := result.Variables.Get("uid"); v.Repr != "65534" {
			t.Fatalf("expected uid 65534, got %q", v.Repr)
		}
	})
}

func TestServiceEnforcesTimeLimitAgainstDocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping docker integration test in short mode")
	}

	service := newDockerService(t, 2*time.Second)
	result := service.Run(context.Background(), execution.Request{ID: "loop", Source: "while True:\n    pass\n"})
	if result.Success || result.Err.Kind != execution.ErrorTimeout {
		t.Fatalf("expected timeout, got %+v", result.Err)
	}
}
