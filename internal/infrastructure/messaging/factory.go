package messaging

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"cinemind/internal/config"
)

// NewPublisher 按 messaging.driver 创建发布者；driver 为 none 或空时返回 nil
func NewPublisher(cfg config.MessagingConfig, rdb *redis.Client) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("messaging driver redis requires cache.redis.enabled")
		}
		stream := cfg.RedisStream.Stream
		if stream == "" {
			stream = "stream:ingestion:events"
		}
		return NewStreamProducer(rdb, stream, cfg.RedisStream.MaxLen), nil
	case "kafka":
		return NewKafkaProducer(cfg.Kafka)
	}
	return nil, fmt.Errorf("unsupported messaging driver %q", cfg.Driver)
}
