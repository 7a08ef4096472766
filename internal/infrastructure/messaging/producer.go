package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Publisher 消息发布者
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Driver() string
}

// StreamProducer Redis Stream 生产者
type StreamProducer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamProducer 创建 Redis Stream 生产者
func NewStreamProducer(client *redis.Client, stream string, maxLen int64) *StreamProducer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &StreamProducer{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Driver 驱动名
func (p *StreamProducer) Driver() string { return "redis" }

// Publish 以 XADD 写入流，超过 MaxLen 时近似裁剪
func (p *StreamProducer) Publish(ctx context.Context, msg *Message) error {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", p.stream),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": msg.Type,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return nil
}
