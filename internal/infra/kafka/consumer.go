package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/ports"
)

// DefaultMaxRequestBytes bounds a single run message, dataset included.
const DefaultMaxRequestBytes = 8 << 20

// Config describes how to connect to a Kafka cluster for consuming run requests.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
	// MaxRequestBytes rejects larger messages as invalid. Zero uses DefaultMaxRequestBytes.
	MaxRequestBytes int
}

var _ ports.RequestProducer = (*Consumer)(nil)

// Consumer wraps a kafka-go reader to implement ports.RequestProducer.
type Consumer struct {
	reader          messageReader
	maxRequestBytes int
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewConsumer builds a new Consumer from the provided configuration.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must be provided")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "scriptlab-runner"
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}

	readerConfig := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	}

	if readerConfig.MinBytes == 0 {
		readerConfig.MinBytes = 1
	}
	if readerConfig.MaxBytes == 0 {
		readerConfig.MaxBytes = 2 * cfg.MaxRequestBytes
	}
	if readerConfig.MaxWait == 0 {
		readerConfig.MaxWait = time.Second
	}

	return newConsumer(kafkago.NewReader(readerConfig), cfg.MaxRequestBytes), nil
}

func newConsumer(reader messageReader, maxRequestBytes int) *Consumer {
	if maxRequestBytes <= 0 {
		maxRequestBytes = DefaultMaxRequestBytes
	}
	return &Consumer{reader: reader, maxRequestBytes: maxRequestBytes}
}

// NextRequest blocks until the next run message is available in Kafka or the context is cancelled.
//
// Every fetched message is committed once decoded, so a malformed one is
// reported as ports.ErrInvalidRequest exactly once and then skipped.
func (c *Consumer) NextRequest(ctx context.Context) (execution.Request, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return execution.Request{}, err
	}

	req, decodeErr := c.decode(msg)
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return execution.Request{}, fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}
	return req, decodeErr
}

func (c *Consumer) decode(msg kafkago.Message) (execution.Request, error) {
	if len(msg.Value) > c.maxRequestBytes {
		return execution.Request{}, fmt.Errorf("%w: message at offset %d is %d bytes, limit %d",
			ports.ErrInvalidRequest, msg.Offset, len(msg.Value), c.maxRequestBytes)
	}
	return decodeRunMessage(msg)
}

// Close releases the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
