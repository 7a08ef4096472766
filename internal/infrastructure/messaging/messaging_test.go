package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/config"
	"cinemind/internal/domain/entity"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakePublisher struct {
	msgs []*Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Driver() string { return "fake" }

func sampleRun() *entity.IngestionRun {
	run := entity.NewIngestionRun(entity.SourceReview)
	run.DocumentsSeen = 3
	run.DocumentsWritten = 2
	run.Failures = append(run.Failures, entity.Failure{SourceKey: "r9", Kind: entity.FailureEmbedding})
	run.Finish()
	return run
}

func TestNewIngestionCompleted(t *testing.T) {
	run := sampleRun()
	ev := NewIngestionCompleted(run)
	assert.Equal(t, run.ID, ev.RunID)
	assert.Equal(t, "review", ev.SourceType)
	assert.Equal(t, 2, ev.DocumentsWritten)
	assert.Equal(t, map[string]int{"embedding_unavailable": 1}, ev.FailureCounts)
	assert.True(t, ev.ShouldRetry)
}

func TestKafkaProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w, "cinemind.ingestion", time.Second)

	msg, err := NewMessage("id-1", EventIngestionCompleted, "review", map[string]int{"n": 1})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("review"), w.msgs[0].Key)
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)

	var decoded Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, EventIngestionCompleted, decoded.Type)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducer_PublishError(t *testing.T) {
	p := newKafkaProducer(&fakeWriter{err: errors.New("leader not available")}, "t", 0)
	msg, _ := NewMessage("id", EventIngestionCompleted, "k", struct{}{})
	assert.ErrorContains(t, p.Publish(context.Background(), msg), "leader not available")
}

func TestNewKafkaProducer_Validation(t *testing.T) {
	_, err := NewKafkaProducer(kafkaConfig(nil, "t"))
	assert.Error(t, err)
	_, err = NewKafkaProducer(kafkaConfig([]string{"localhost:9092"}, ""))
	assert.Error(t, err)
}

func TestEventRecorder_Record(t *testing.T) {
	pub := &fakePublisher{}
	run := sampleRun()
	require.NoError(t, NewEventRecorder(pub).Record(context.Background(), run))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, run.ID, msg.ID)
	assert.Equal(t, "review", msg.Key)
	assert.Equal(t, "true", msg.Metadata["should_retry"])

	var ev IngestionCompleted
	require.NoError(t, msg.UnmarshalPayload(&ev))
	assert.Equal(t, 3, ev.DocumentsSeen)
}

func TestEventRecorder_PropagatesError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("stream down")}
	assert.Error(t, NewEventRecorder(pub).Record(context.Background(), sampleRun()))
}

func kafkaConfig(brokers []string, topic string) config.KafkaConfig {
	return config.KafkaConfig{Brokers: brokers, Topic: topic}
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(config.MessagingConfig{Driver: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewPublisher(config.MessagingConfig{Driver: "redis"}, nil)
	assert.Error(t, err)

	p, err = NewPublisher(config.MessagingConfig{Driver: "kafka", Kafka: kafkaConfig([]string{"localhost:9092"}, "events")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "kafka", p.Driver())

	_, err = NewPublisher(config.MessagingConfig{Driver: "nats"}, nil)
	assert.Error(t, err)
}
