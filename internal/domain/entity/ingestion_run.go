package entity

import (
	"time"

	"github.com/google/uuid"
)

// FailureKind 入库失败类型
type FailureKind string

const (
	FailureNormalization FailureKind = "normalization_error"
	FailureEmbedding     FailureKind = "embedding_unavailable"
	FailureIndex         FailureKind = "index_unavailable"
	FailureSource        FailureKind = "source_error"
)

// Transient 是否为可通过重跑恢复的失败
func (k FailureKind) Transient() bool {
	return k == FailureEmbedding || k == FailureIndex || k == FailureSource
}

// Failure 单条失败记录
type Failure struct {
	SourceKey string      `json:"source_key"`
	Kind      FailureKind `json:"error_kind"`
	Message   string      `json:"message,omitempty"`
}

// IngestionRun 一次入库执行的记账记录，仅由入库协调器写入
type IngestionRun struct {
	ID                        string     `json:"id"`
	SourceType                SourceType `json:"source_type"`
	StartedAt                 time.Time  `json:"started_at"`
	FinishedAt                time.Time  `json:"finished_at,omitempty"`
	DocumentsSeen             int        `json:"documents_seen"`
	DocumentsWritten          int        `json:"documents_written"`
	DocumentsSkippedUnchanged int        `json:"documents_skipped_unchanged"`
	DocumentsDeleted          int        `json:"documents_deleted"`
	Failures                  []Failure  `json:"failures"`
	Cancelled                 bool       `json:"cancelled,omitempty"`
}

// NewIngestionRun 创建运行记录
func NewIngestionRun(sourceType SourceType) *IngestionRun {
	return &IngestionRun{
		ID:         uuid.NewString(),
		SourceType: sourceType,
		StartedAt:  time.Now().UTC(),
		Failures:   []Failure{},
	}
}

// Finish 标记运行结束
func (r *IngestionRun) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Duration 运行耗时
func (r *IngestionRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed 是否存在失败项
func (r *IngestionRun) Failed() bool {
	return len(r.Failures) > 0
}

// ShouldRetry 存在瞬时失败或被取消时建议重跑（写入幂等，重跑安全）
func (r *IngestionRun) ShouldRetry() bool {
	if r.Cancelled {
		return true
	}
	for _, f := range r.Failures {
		if f.Kind.Transient() {
			return true
		}
	}
	return false
}

// FailureCounts 按失败类型统计
func (r *IngestionRun) FailureCounts() map[FailureKind]int {
	out := make(map[FailureKind]int)
	for _, f := range r.Failures {
		out[f.Kind]++
	}
	return out
}
