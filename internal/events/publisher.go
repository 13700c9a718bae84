// Package events streams committed operation-log entries to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"esim-service/internal/model"
	"esim-service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher emits operation-log entries after they are committed
type Publisher interface {
	Publish(ctx context.Context, entry model.OperationLogEntry) error
	Close() error
}

// KafkaPublisher writes entries keyed by profile id so a profile's history stays ordered
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic on brokers
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry model.OperationLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(entry.ProfileID),
		Value:   payload,
		Time:    time.Now().UTC(),
		Headers: messageHeaders(ctx, entry),
	})
}

// messageHeaders lets consumers route by operation and tenant and trace the
// originating request
func messageHeaders(ctx context.Context, entry model.OperationLogEntry) []kafka.Header {
	headers := []kafka.Header{
		{Key: "operation", Value: []byte(entry.Operation)},
		{Key: "tenant_id", Value: []byte(entry.TenantID)},
	}
	if id := logger.RequestID(ctx); id != "" {
		headers = append(headers, kafka.Header{Key: "request_id", Value: []byte(id)})
	}
	return headers
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LoggingPublisher is used when no brokers are configured
type LoggingPublisher struct {
	logger *zap.Logger
}

// NewLoggingPublisher creates a publisher that only logs
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, entry model.OperationLogEntry) error {
	p.logger.Debug("Operation log event published",
		zap.String("entry_id", entry.ID),
		zap.String("request_id", logger.RequestID(ctx)),
		zap.String("profile_id", entry.ProfileID),
		zap.String("tenant_id", entry.TenantID),
		zap.String("operation", string(entry.Operation)),
		zap.String("status", string(entry.Status)))
	return nil
}

func (p *LoggingPublisher) Close() error {
	return nil
}
