//go:build integration

package testhelpers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	brokerWaitInterval = 500 * time.Millisecond
	brokerWaitTimeout  = 30 * time.Second

	// KafkaImage is the single-node broker used by integration tests.
	KafkaImage = "confluentinc/confluent-local:7.7.0"
)

// StartKafka runs a throwaway broker, creates topics on it and returns its
// address. The test is skipped when Docker is unavailable.
func StartKafka(ctx context.Context, t *testing.T, topics ...string) string {
	t.Helper()

	container, err := kafkatc.Run(ctx, KafkaImage)
	if err != nil {
		t.Skipf("skipping Kafka integration test (requires Docker): %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to obtain bootstrap servers: %v", err)
	}
	if len(brokers) == 0 {
		t.Fatal("kafka provided zero bootstrap servers")
	}

	broker := brokers[0]
	if err := WaitForKafkaBroker(ctx, broker); err != nil {
		t.Fatalf("wait for broker: %v", err)
	}
	if err := EnsureKafkaTopics(ctx, broker, topics...); err != nil {
		t.Fatalf("ensure topics: %v", err)
	}
	return broker
}

// WaitForKafkaBroker blocks until the provided broker address accepts connections or the context ends.
func WaitForKafkaBroker(ctx context.Context, broker string) error {
	deadline := time.Now().Add(brokerWaitTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	for time.Now().Before(deadline) {
		conn, err := kafkago.Dial("tcp", broker)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-time.After(brokerWaitInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("kafka broker %q not ready before timeout", broker)
}

// EnsureKafkaTopics creates the provided topics if they don't exist.
func EnsureKafkaTopics(ctx context.Context, broker string, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	conn, err := kafkago.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafkago.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	configs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	return ctrlConn.CreateTopics(configs...)
}

// WriteJSONMessages publishes raw payloads to topic, one message each.
func WriteJSONMessages(ctx context.Context, broker, topic string, payloads ...[]byte) error {
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(broker),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
	}
	defer writer.Close()

	msgs := make([]kafkago.Message, 0, len(payloads))
	for _, payload := range payloads {
		msgs = append(msgs, kafkago.Message{Value: payload})
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}
