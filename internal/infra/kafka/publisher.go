package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
)

const (
	headerContentType = "content-type"
	headerOutcome     = "outcome"
	contentTypeJSON   = "application/json"
)

// DefaultMaxMessageBytes bounds one encoded report. Figures travel inline as
// base64 PNG, so this is well above the kafka-go default of 1 MiB. The
// broker's message.max.bytes (or the topic's max.message.bytes) must be at
// least as large.
const DefaultMaxMessageBytes = 16 << 20

// Ensure Publisher implements ports.RunReportPublisher.
var _ ports.RunReportPublisher = (*Publisher)(nil)

// PublisherConfig configures the Kafka-based run report publisher.
type PublisherConfig struct {
	Brokers []string
	Topic   string
	// MaxMessageBytes caps one report. Zero uses DefaultMaxMessageBytes.
	MaxMessageBytes int64
}

// Publisher publishes run reports to Kafka, keyed by request ID.
type Publisher struct {
	writer messageWriter
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewPublisher constructs a Publisher using the supplied configuration.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must be provided")
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		BatchBytes:             cfg.MaxMessageBytes,
	}

	return newPublisher(writer), nil
}

func newPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// PublishRunReport serializes and writes the supplied report to Kafka.
func (p *Publisher) PublishRunReport(ctx context.Context, report execution.RunReport) error {
	if p.writer == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	payload, err := encodeRunReport(report)
	if err != nil {
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(report.Request.ID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: headerContentType, Value: []byte(contentTypeJSON)},
			{Key: headerOutcome, Value: []byte(reportOutcome(report))},
		},
		Time: time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write report %q: %w", report.Request.ID, err)
	}

	return nil
}

// reportOutcome is "success", the failing error kind, or "fault" when no
// result was produced.
func reportOutcome(report execution.RunReport) string {
	switch {
	case report.Result == nil:
		return "fault"
	case report.Result.Err != nil:
		return string(report.Result.Err.Kind)
	default:
		return "success"
	}
}

// Close releases the underlying Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
