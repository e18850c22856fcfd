//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Acteus/Base-ML-Platform/internal/app/executor"
	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	kafkainfra "github.com/Acteus/Base-ML-Platform/internal/infra/kafka"
	"github.com/Acteus/Base-ML-Platform/internal/runtime/docker"
	"github.com/Acteus/Base-ML-Platform/internal/testhelpers"
)

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline integration test in short mode")
	}

	// The first run may build the sandbox image.
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Minute)
	defer cancel()

	const (
		runsTopic    = "integration-runs"
		reportsTopic = "integration-reports"
	)
	broker := testhelpers.StartKafka(ctx, t, runsTopic, reportsTopic)

	runner, err := docker.New(docker.Config{
		DefaultLimits: execution.RunLimits{
			TimeLimit: time.Minute,
		},
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	service := executor.NewService(runner, nil)
	defer service.Close()

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers: []string{broker},
		Topic:   runsTopic,
		GroupID: "pipeline-integration-consumer",
	})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	defer consumer.Close()

	publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: []string{broker},
		Topic:   reportsTopic,
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	execCtx, execCancel := context.WithCancel(ctx)
	defer execCancel()

	errCh := make(chan error, 1)
	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	go func() {
		defer execCancel()
		err := service.ExecuteFromProducer(execCtx, consumer, 1, 1, func(report execution.RunReport) {
			if pubErr := publisher.PublishRunReport(execCtx, report); pubErr != nil {
				sendErr(fmt.Errorf("publish run report: %w", pubErr))
				execCancel()
			}
		})
		sendErr(err)
	}()

	requestID := "pipeline-run"
	payload, err := json.Marshal(map[string]any{
		"type":   "run",
		"id":     requestID,
		"source": "n_rows = 3\nrows = len(df)\nprint('rows', rows)\nresult = rows * n_rows\n",
		"dataset": map[string]any{
			"columns": []string{"a", "b"},
			"rows":    [][]any{{1, 2}, {3, 4}},
		},
		"parameters": map[string]float64{"n_rows": 5},
	})
	if err != nil {
		t.Fatalf("marshal run payload: %v", err)
	}
	if err := testhelpers.WriteJSONMessages(ctx, broker, runsTopic, payload); err != nil {
		t.Fatalf("write run message: %v", err)
	}

	reportsReader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   reportsTopic,
		GroupID: "pipeline-integration-reports",
	})
	defer reportsReader.Close()

	msgCtx, msgCancel := context.WithTimeout(ctx, time.Minute)
	defer msgCancel()

	msg, err := reportsReader.ReadMessage(msgCtx)
	if err != nil {
		t.Fatalf("read report message: %v", err)
	}

	var envelope struct {
		ID         string `json:"id"`
		Success    bool   `json:"success"`
		Output     string `json:"output"`
		Result     *struct {
			Repr string `json:"repr"`
		} `json:"result"`
		Parameters []struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		t.Fatalf("decode report message: %v", err)
	}

	if envelope.ID != requestID {
		t.Fatalf("expected report for %q, got %q", requestID, envelope.ID)
	}
	if !envelope.Success {
		t.Fatalf("expected successful run, got %s", msg.Value)
	}
	if envelope.Output != "rows 2\n" {
		t.Fatalf("unexpected output %q", envelope.Output)
	}
	if envelope.Result == nil || envelope.Result.Repr != "10" {
		t.Fatalf("expected result 10, got %+v", envelope.Result)
	}
	if len(envelope.Parameters) != 1 || envelope.Parameters[0].Name != "n_rows" || envelope.Parameters[0].Value != 5 {
		t.Fatalf("unexpected parameters %+v", envelope.Parameters)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("pipeline execution error: %v", err)
	}
}
