package repository

import (
	"context"

	"cinemind/internal/domain/entity"
)

// IngestionRunFilter 运行记录过滤条件
type IngestionRunFilter struct {
	SourceType entity.SourceType
	Limit      int
}

// IngestionRunRepository 入库运行记录仓储
type IngestionRunRepository interface {
	// Save 保存（或覆盖）运行记录
	Save(ctx context.Context, run *entity.IngestionRun) error

	// GetByID 获取运行记录，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.IngestionRun, error)

	// List 按开始时间倒序列出
	List(ctx context.Context, filter IngestionRunFilter) ([]*entity.IngestionRun, error)
}
