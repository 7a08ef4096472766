package dto

import (
	"time"

	"cinemind/internal/domain/entity"
)

// IngestRequest 触发入库请求
type IngestRequest struct {
	Source string `json:"source" binding:"required,oneof=screenplay review catalog all"`
	// Limit 每个数据源最多处理的条目数，0 表示不限制
	Limit int `json:"limit" binding:"omitempty,min=1,max=100000"`
}

// IngestAccepted 入库已受理
type IngestAccepted struct {
	Status  string   `json:"status"`
	Sources []string `json:"sources"`
}

// ListRunsRequest 运行记录查询参数
type ListRunsRequest struct {
	SourceType string `form:"source_type" binding:"omitempty,oneof=screenplay review catalog"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// FailureResponse 入库失败条目
type FailureResponse struct {
	SourceKey string `json:"source_key"`
	Kind      string `json:"kind"`
	Message   string `json:"message,omitempty"`
}

// IngestionRunResponse 入库运行记录
type IngestionRunResponse struct {
	ID                        string             `json:"id"`
	SourceType                string             `json:"source_type"`
	StartedAt                 time.Time          `json:"started_at"`
	FinishedAt                *time.Time         `json:"finished_at,omitempty"`
	DocumentsSeen             int                `json:"documents_seen"`
	DocumentsWritten          int                `json:"documents_written"`
	DocumentsSkippedUnchanged int                `json:"documents_skipped_unchanged"`
	DocumentsDeleted          int                `json:"documents_deleted"`
	Cancelled                 bool               `json:"cancelled"`
	ShouldRetry               bool               `json:"should_retry"`
	Failures                  []*FailureResponse `json:"failures"`
}

// ToIngestionRunResponse 转换运行记录
func ToIngestionRunResponse(run *entity.IngestionRun) *IngestionRunResponse {
	if run == nil {
		return nil
	}
	resp := &IngestionRunResponse{
		ID:                        run.ID,
		SourceType:                string(run.SourceType),
		StartedAt:                 run.StartedAt,
		DocumentsSeen:             run.DocumentsSeen,
		DocumentsWritten:          run.DocumentsWritten,
		DocumentsSkippedUnchanged: run.DocumentsSkippedUnchanged,
		DocumentsDeleted:          run.DocumentsDeleted,
		Cancelled:                 run.Cancelled,
		ShouldRetry:               run.ShouldRetry(),
		Failures:                  make([]*FailureResponse, 0, len(run.Failures)),
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		resp.FinishedAt = &t
	}
	for _, f := range run.Failures {
		resp.Failures = append(resp.Failures, &FailureResponse{SourceKey: f.SourceKey, Kind: string(f.Kind), Message: f.Message})
	}
	return resp
}

// ToIngestionRunList 批量转换
func ToIngestionRunList(runs []*entity.IngestionRun) []*IngestionRunResponse {
	out := make([]*IngestionRunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToIngestionRunResponse(r))
	}
	return out
}
