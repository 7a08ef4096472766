// Package messaging 发布入库完成事件（Redis Stream / Kafka）
package messaging

import (
	"encoding/json"
	"time"

	"cinemind/internal/domain/entity"
)

// EventIngestionCompleted 入库运行完成事件类型
const EventIngestionCompleted = "ingestion.completed"

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Key       string            `json:"key"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, key string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Key:       key,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// IngestionCompleted 入库完成事件载荷
type IngestionCompleted struct {
	RunID                     string         `json:"run_id"`
	SourceType                string         `json:"source_type"`
	StartedAt                 time.Time      `json:"started_at"`
	FinishedAt                time.Time      `json:"finished_at"`
	DocumentsSeen             int            `json:"documents_seen"`
	DocumentsWritten          int            `json:"documents_written"`
	DocumentsSkippedUnchanged int            `json:"documents_skipped_unchanged"`
	DocumentsDeleted          int            `json:"documents_deleted"`
	FailureCounts             map[string]int `json:"failure_counts"`
	ShouldRetry               bool           `json:"should_retry"`
	Cancelled                 bool           `json:"cancelled"`
}

// NewIngestionCompleted 由运行记录生成事件载荷
func NewIngestionCompleted(run *entity.IngestionRun) IngestionCompleted {
	counts := make(map[string]int)
	for kind, n := range run.FailureCounts() {
		counts[string(kind)] = n
	}
	return IngestionCompleted{
		RunID:                     run.ID,
		SourceType:                string(run.SourceType),
		StartedAt:                 run.StartedAt,
		FinishedAt:                run.FinishedAt,
		DocumentsSeen:             run.DocumentsSeen,
		DocumentsWritten:          run.DocumentsWritten,
		DocumentsSkippedUnchanged: run.DocumentsSkippedUnchanged,
		DocumentsDeleted:          run.DocumentsDeleted,
		FailureCounts:             counts,
		ShouldRetry:               run.ShouldRetry(),
		Cancelled:                 run.Cancelled,
	}
}
