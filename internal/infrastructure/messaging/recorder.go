package messaging

import (
	"context"
	"fmt"

	"cinemind/internal/domain/entity"
	"cinemind/pkg/metrics"
)

// EventRecorder 以 ingestion.completed 事件记录运行结果
type EventRecorder struct {
	publisher Publisher
}

// NewEventRecorder 创建事件记录器
func NewEventRecorder(publisher Publisher) *EventRecorder {
	return &EventRecorder{publisher: publisher}
}

// Record 发布运行完成事件；消息 Key 为数据源类型
func (r *EventRecorder) Record(ctx context.Context, run *entity.IngestionRun) error {
	msg, err := NewMessage(run.ID, EventIngestionCompleted, string(run.SourceType), NewIngestionCompleted(run))
	if err != nil {
		return fmt.Errorf("failed to build ingestion event: %w", err)
	}
	msg.SetMetadata("should_retry", fmt.Sprintf("%t", run.ShouldRetry()))

	if err := r.publisher.Publish(ctx, msg); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(r.publisher.Driver(), "error").Inc()
		return err
	}
	metrics.EventsPublishedTotal.WithLabelValues(r.publisher.Driver(), "success").Inc()
	return nil
}
