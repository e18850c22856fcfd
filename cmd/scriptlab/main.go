package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Acteus/Base-ML-Platform/internal/app/executor"
	"github.com/Acteus/Base-ML-Platform/internal/app/producer"
	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	kafkainfra "github.com/Acteus/Base-ML-Platform/internal/infra/kafka"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
	"github.com/Acteus/Base-ML-Platform/internal/runtime/docker"
)

type cliArgs struct {
	Config string `help:"Path to a YAML config file." type:"path" env:"SCRIPTLAB_CONFIG"`
}

func newParser(args *cliArgs) (*kong.Kong, error) {
	return kong.New(args,
		kong.Name("scriptlab"),
		kong.Description("Runs analysis scripts in sandboxed containers and reports their results."),
	)
}

func main() {
	var args cliArgs
	parser, err := newParser(&args)
	if err != nil {
		slog.Error("build command line", "error", err)
		os.Exit(2)
	}
	_, err = parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := run(args.Config); err != nil {
		slog.Error("scriptlab stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}

	level, _ := cfg.logLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := docker.New(cfg.dockerConfig(logger))
	if err != nil {
		return fmt.Errorf("initialize docker runner: %w", err)
	}

	service := executor.NewService(runtime, logger)
	defer func() {
		if cerr := service.Close(); cerr != nil {
			logger.Warn("failed to close runner", "error", cerr)
		}
	}()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	source, publisher, closeIO, err := buildIO(cfg)
	if err != nil {
		return err
	}
	defer closeIO()

	logger.Info("scriptlab started",
		"source", sourceName(cfg),
		"image", cfg.Sandbox.Image,
		"time_limit", cfg.Runner.TimeLimit,
		"max_parallel", cfg.Runner.MaxParallel,
	)

	if err := service.ExecuteFromProducer(
		ctx,
		source,
		cfg.Runner.MaxRequests,
		cfg.Runner.MaxParallel,
		reportHandler(ctx, publisher, os.Stdout, logger),
	); err != nil {
		return fmt.Errorf("execute requests: %w", err)
	}
	return nil
}

// buildIO selects the request source and report sink. Without brokers the
// demo catalogue runs and reports are only printed.
func buildIO(cfg appConfig) (ports.RequestProducer, ports.RunReportPublisher, func(), error) {
	if !cfg.useKafka() {
		return producer.NewService(), nil, func() {}, nil
	}

	consumer, err := kafkainfra.NewConsumer(cfg.consumerConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize kafka consumer: %w", err)
	}

	publisher, err := kafkainfra.NewPublisher(cfg.publisherConfig())
	if err != nil {
		_ = consumer.Close()
		return nil, nil, nil, fmt.Errorf("initialize kafka publisher: %w", err)
	}

	closeIO := func() {
		if err := errors.Join(consumer.Close(), publisher.Close()); err != nil {
			slog.Warn("failed to close kafka clients", "error", err)
		}
	}
	return consumer, publisher, closeIO, nil
}

func sourceName(cfg appConfig) string {
	if cfg.useKafka() {
		return "kafka:" + cfg.Kafka.Topic
	}
	return "demo"
}

// reportHandler is called from every worker; each report reaches out as
// one write so concurrent reports never interleave.
func reportHandler(ctx context.Context, publisher ports.RunReportPublisher, out io.Writer, logger *slog.Logger) func(execution.RunReport) {
	var mu sync.Mutex
	return func(report execution.RunReport) {
		mu.Lock()
		printReport(out, report)
		mu.Unlock()

		if publisher == nil {
			return
		}
		if err := publisher.PublishRunReport(ctx, report); err != nil {
			logger.Error("failed to publish run report", "id", report.Request.ID, "error", err)
		}
	}
}

func printReport(out io.Writer, report execution.RunReport) {
	_, _ = out.Write(renderReport(report))
}

func renderReport(report execution.RunReport) []byte {
	var b bytes.Buffer
	result := report.Result
	if result == nil {
		fmt.Fprintf(&b, "run %q produced no result\n", report.Request.ID)
		return b.Bytes()
	}

	status := "ok"
	if !result.Success {
		status = result.Err.Kind.Label()
	}
	fmt.Fprintf(&b, "run %q: %s after %s\n", report.Request.ID, status, result.Duration.Round(time.Millisecond))
	if nb := report.Request.Notebook; nb != nil {
		fmt.Fprintf(&b, "  notebook: %d of %d cells are code, kernel %s, nbformat %s\n", nb.CodeCells, nb.TotalCells, nb.Kernel, nb.Format)
	}
	if ds := report.Request.Dataset.Summary(); ds != nil {
		fmt.Fprintf(&b, "  dataset: %d rows x %d columns", ds.Rows, len(ds.Columns))
		for _, col := range ds.Columns {
			if n := ds.NullCounts[col]; n > 0 {
				fmt.Fprintf(&b, ", %s has %d null(s)", col, n)
			}
		}
		b.WriteByte('\n')
	}
	if result.Output != "" {
		b.WriteString(result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			b.WriteByte('\n')
		}
	}
	if !result.Success {
		b.WriteString(result.ErrorText() + "\n")
	}
	if result.ResultValue != nil {
		fmt.Fprintf(&b, "result = %s\n", result.ResultValue.Repr)
	}
	for _, v := range result.Variables {
		fmt.Fprintf(&b, "  %s (%s) = %s\n", v.Name, v.Value.Type, v.Value.Repr)
	}
	if n := len(result.Figures); n > 0 {
		fmt.Fprintf(&b, "  %d figure(s)\n", n)
	}
	for _, p := range report.Parameters {
		fmt.Fprintf(&b, "  parameter %s = %v [%v, %v] step %v\n", p.Name, p.RawValue, p.Min, p.Max, p.Step)
	}
	return b.Bytes()
}

func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
