// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"cinemind/internal/domain/entity"
)

// UpsertResult 写入统计
type UpsertResult struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// Add 累加统计
func (r *UpsertResult) Add(o UpsertResult) {
	r.Written += o.Written
	r.Skipped += o.Skipped
}

// SkipKnown 剔除指纹已在 known 中或在本批内重复的文档，返回待写入文档与跳过数量
//
// known 会被追加本批保留文档的指纹。
func SkipKnown(docs []entity.Document, known map[string]struct{}) ([]entity.Document, int) {
	todo := make([]entity.Document, 0, len(docs))
	skipped := 0
	for _, d := range docs {
		if _, ok := known[d.Fingerprint]; ok {
			skipped++
			continue
		}
		known[d.Fingerprint] = struct{}{}
		todo = append(todo, d)
	}
	return todo, skipped
}

// VectorIndex 统一向量索引
//
// 同一指纹只保留一条记录；同 ID 不同指纹时整体替换；单条文档写入原子。
type VectorIndex interface {
	// Upsert 写入已向量化的文档
	Upsert(ctx context.Context, docs []entity.Document) (UpsertResult, error)

	// Search 余弦相似度检索，结果按 entity.Less 排序
	Search(ctx context.Context, vector []float32, topK int, filter entity.Filter) ([]entity.ScoredDocument, error)

	// DeleteByIDs 按 ID 删除文档，不存在的 ID 忽略，返回删除数量
	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// DeleteBySource 删除某个逻辑条目的全部分块，返回删除数量
	DeleteBySource(ctx context.Context, sourceType entity.SourceType, sourceKey string) (int, error)

	// SourceFingerprints 返回某个条目当前在索引中的 id -> fingerprint
	SourceFingerprints(ctx context.Context, sourceType entity.SourceType, sourceKey string) (map[string]string, error)

	// Find 按过滤条件列出文档（不含向量），最多 limit 条，按 ingested_at 新者优先、id 升序
	Find(ctx context.Context, filter entity.Filter, limit int) ([]entity.Document, error)

	// CountWhere 满足过滤条件的文档数
	CountWhere(ctx context.Context, filter entity.Filter) (int64, error)

	// Count 文档总数
	Count(ctx context.Context) (int64, error)
}
