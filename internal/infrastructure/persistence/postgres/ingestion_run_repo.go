package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
)

const defaultRunListLimit = 20

// ingestionRunModel ingestion_runs 表
type ingestionRunModel struct {
	ID                        string    `gorm:"primaryKey;type:uuid"`
	SourceType                string    `gorm:"size:32;index;not null"`
	StartedAt                 time.Time `gorm:"index;not null"`
	FinishedAt                *time.Time
	DocumentsSeen             int
	DocumentsWritten          int
	DocumentsSkippedUnchanged int
	DocumentsDeleted          int
	Cancelled                 bool
	ShouldRetry               bool
	// RetryKeys 发生瞬时失败的 source_key，供重跑时定位
	RetryKeys pq.StringArray          `gorm:"type:text[]"`
	Failures  []ingestionFailureModel `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (ingestionRunModel) TableName() string { return "ingestion_runs" }

// ingestionFailureModel ingestion_failures 表
type ingestionFailureModel struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"type:uuid;index;not null"`
	Position  int    `gorm:"not null"`
	SourceKey string `gorm:"not null"`
	Kind      string `gorm:"size:32;not null"`
	Message   string
}

func (ingestionFailureModel) TableName() string { return "ingestion_failures" }

// IngestionRunRepository 入库运行记录仓储，同时作为协调器的 RunRecorder
type IngestionRunRepository struct {
	client *Client
}

var _ repository.IngestionRunRepository = (*IngestionRunRepository)(nil)

// NewIngestionRunRepository 创建入库运行记录仓储
func NewIngestionRunRepository(client *Client) *IngestionRunRepository {
	return &IngestionRunRepository{client: client}
}

// Record 实现 RunRecorder
func (r *IngestionRunRepository) Record(ctx context.Context, run *entity.IngestionRun) error {
	return r.Save(ctx, run)
}

// Save 按 ID 覆盖写入运行记录及其失败明细
func (r *IngestionRunRepository) Save(ctx context.Context, run *entity.IngestionRun) error {
	ctx, span := tracer.Start(ctx, "postgres.IngestionRunRepository.Save")
	defer span.End()

	m := toRunModel(run)
	failures := m.Failures
	m.Failures = nil

	err := r.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", m.ID).Delete(&ingestionFailureModel{}).Error; err != nil {
			return err
		}
		if len(failures) == 0 {
			return nil
		}
		return tx.CreateInBatches(failures, 200).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save ingestion run: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取运行记录，不存在时返回 nil
func (r *IngestionRunRepository) GetByID(ctx context.Context, id string) (*entity.IngestionRun, error) {
	ctx, span := tracer.Start(ctx, "postgres.IngestionRunRepository.GetByID")
	defer span.End()

	var m ingestionRunModel
	err := r.client.db.WithContext(ctx).
		Preload("Failures", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get ingestion run: %w", err)
	}
	return fromRunModel(&m), nil
}

// List 按开始时间倒序列出运行记录
func (r *IngestionRunRepository) List(ctx context.Context, filter repository.IngestionRunFilter) ([]*entity.IngestionRun, error) {
	ctx, span := tracer.Start(ctx, "postgres.IngestionRunRepository.List")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	query := r.client.db.WithContext(ctx).Model(&ingestionRunModel{})
	if filter.SourceType != "" {
		query = query.Where("source_type = ?", string(filter.SourceType))
	}

	var models []ingestionRunModel
	if err := query.
		Preload("Failures", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ingestion runs: %w", err)
	}

	runs := make([]*entity.IngestionRun, 0, len(models))
	for i := range models {
		runs = append(runs, fromRunModel(&models[i]))
	}
	return runs, nil
}

func toRunModel(run *entity.IngestionRun) ingestionRunModel {
	m := ingestionRunModel{
		ID:                        run.ID,
		SourceType:                string(run.SourceType),
		StartedAt:                 run.StartedAt,
		DocumentsSeen:             run.DocumentsSeen,
		DocumentsWritten:          run.DocumentsWritten,
		DocumentsSkippedUnchanged: run.DocumentsSkippedUnchanged,
		DocumentsDeleted:          run.DocumentsDeleted,
		Cancelled:                 run.Cancelled,
		ShouldRetry:               run.ShouldRetry(),
		RetryKeys:                 pq.StringArray{},
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		m.FinishedAt = &t
	}
	seen := make(map[string]struct{})
	for i, f := range run.Failures {
		m.Failures = append(m.Failures, ingestionFailureModel{
			RunID:     run.ID,
			Position:  i,
			SourceKey: f.SourceKey,
			Kind:      string(f.Kind),
			Message:   f.Message,
		})
		if _, ok := seen[f.SourceKey]; ok || !f.Kind.Transient() {
			continue
		}
		seen[f.SourceKey] = struct{}{}
		m.RetryKeys = append(m.RetryKeys, f.SourceKey)
	}
	return m
}

func fromRunModel(m *ingestionRunModel) *entity.IngestionRun {
	run := &entity.IngestionRun{
		ID:                        m.ID,
		SourceType:                entity.SourceType(m.SourceType),
		StartedAt:                 m.StartedAt.UTC(),
		DocumentsSeen:             m.DocumentsSeen,
		DocumentsWritten:          m.DocumentsWritten,
		DocumentsSkippedUnchanged: m.DocumentsSkippedUnchanged,
		DocumentsDeleted:          m.DocumentsDeleted,
		Cancelled:                 m.Cancelled,
		Failures:                  make([]entity.Failure, 0, len(m.Failures)),
	}
	if m.FinishedAt != nil {
		run.FinishedAt = m.FinishedAt.UTC()
	}
	for _, f := range m.Failures {
		run.Failures = append(run.Failures, entity.Failure{
			SourceKey: f.SourceKey,
			Kind:      entity.FailureKind(f.Kind),
			Message:   f.Message,
		})
	}
	return run
}
