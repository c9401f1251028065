package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"student-records/internal/metrics"

	"github.com/IBM/sarama"
)

// Driver labels publish metrics from this producer.
const Driver = "kafka"

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  *metrics.EventMetrics
}

func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "student-records"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

func NewProducer(brokers []string, topic string, logger *slog.Logger, m *metrics.EventMetrics) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka producer initialized", "brokers", brokers, "topic", topic)

	return NewProducerWithClient(producer, topic, logger, m), nil
}

// NewProducerWithClient wraps an existing SyncProducer, e.g. sarama's mocks.
func NewProducerWithClient(producer sarama.SyncProducer, topic string, logger *slog.Logger, m *metrics.EventMetrics) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  m,
	}
}

// SendMessage publishes value as JSON. Records with the same key land on
// the same partition, so one student's events stay ordered.
func (p *Producer) SendMessage(ctx context.Context, key string, value interface{}) error {
	start := time.Now()

	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(valueBytes),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.RecordPublish(ctx, Driver, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to kafka", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to kafka", "topic", p.topic, "partition", partition, "offset", offset, "key", key)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
