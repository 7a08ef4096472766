package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/config"
)

// messageWriter kafka.Writer 的最小子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer Kafka 生产者，按消息 Key 哈希分区
type KafkaProducer struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
}

// NewKafkaProducer 创建 Kafka 生产者
func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaProducer(w, cfg.Topic, cfg.WriteTimeout), nil
}

func newKafkaProducer(w messageWriter, topic string, writeTimeout time.Duration) *KafkaProducer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &KafkaProducer{writer: w, topic: topic, writeTimeout: writeTimeout}
}

// Driver 驱动名
func (p *KafkaProducer) Driver() string { return "kafka" }

// Publish 同步写入一条消息
func (p *KafkaProducer) Publish(ctx context.Context, msg *Message) error {
	ctx, span := tracer.Start(ctx, "kafka.Publish",
		trace.WithAttributes(
			attribute.String("topic", p.topic),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	value, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshaling message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	return nil
}

// Close 刷新并关闭底层 writer
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
