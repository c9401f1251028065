package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"student-records/internal/metrics"

	"github.com/nats-io/nats.go"
)

const (
	// Driver labels publish metrics from this producer.
	Driver = "nats"
	// KeyHeader carries the message key, mirroring the Kafka record key.
	KeyHeader = "Student-Id"
)

type Producer struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	metrics *metrics.EventMetrics
}

func NewProducer(url string, subject string, logger *slog.Logger, m *metrics.EventMetrics) (*Producer, error) {
	nc, err := nats.Connect(url,
		nats.Name("student-records"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS producer initialized", "url", url, "subject", subject)

	return &Producer{
		conn:    nc,
		subject: subject,
		logger:  logger,
		metrics: m,
	}, nil
}

func (p *Producer) SendMessage(ctx context.Context, key string, value interface{}) error {
	start := time.Now()

	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set(KeyHeader, key)
	msg.Data = valueBytes

	err = p.conn.PublishMsg(msg)
	p.metrics.RecordPublish(ctx, Driver, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to NATS", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to NATS", "subject", p.subject, "key", key)
	return nil
}

func (p *Producer) Close() error {
	return p.conn.Drain()
}
