// Package memory 提供进程内向量索引，用于测试与本地试运行
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/pkg/metrics"
)

const backend = "memory"

// Index 暴力余弦检索的内存索引
type Index struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]entity.Document
	byFP      map[string]string
}

var _ repository.VectorIndex = (*Index)(nil)

// NewIndex 创建内存索引
func NewIndex() *Index {
	return &Index{
		docs: make(map[string]entity.Document),
		byFP: make(map[string]string),
	}
}

// Upsert 按指纹幂等写入
func (i *Index) Upsert(ctx context.Context, docs []entity.Document) (repository.UpsertResult, error) {
	var res repository.UpsertResult
	if err := ctx.Err(); err != nil {
		return res, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, doc := range docs {
		if !doc.HasEmbedding() {
			return res, fmt.Errorf("document %s has no embedding", doc.ID)
		}
		if i.dimension == 0 {
			i.dimension = len(doc.Embedding)
		}
		if len(doc.Embedding) != i.dimension {
			return res, fmt.Errorf("vector dimension mismatch: got %d, want %d", len(doc.Embedding), i.dimension)
		}
		if _, ok := i.byFP[doc.Fingerprint]; ok {
			res.Skipped++
			continue
		}
		if old, ok := i.docs[doc.ID]; ok {
			delete(i.byFP, old.Fingerprint)
		}
		doc.Embedding = append([]float32(nil), doc.Embedding...)
		i.docs[doc.ID] = doc
		i.byFP[doc.Fingerprint] = doc.ID
		res.Written++
	}
	metrics.VectorUpsertTotal.WithLabelValues(backend, "written").Add(float64(res.Written))
	metrics.VectorUpsertTotal.WithLabelValues(backend, "skipped").Add(float64(res.Skipped))
	return res, nil
}

// Search 余弦相似度检索
func (i *Index) Search(ctx context.Context, vector []float32, topK int, filter entity.Filter) ([]entity.ScoredDocument, error) {
	start := time.Now()
	defer func() {
		metrics.VectorSearchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []entity.ScoredDocument{}, nil
	}

	i.mu.RLock()
	hits := make([]entity.ScoredDocument, 0, len(i.docs))
	for _, doc := range i.docs {
		if !filter.Matches(doc.Metadata) {
			continue
		}
		hits = append(hits, entity.ScoredDocument{Document: doc, Score: Cosine(vector, doc.Embedding)})
	}
	i.mu.RUnlock()

	sort.Slice(hits, func(a, b int) bool { return entity.Less(hits[a], hits[b]) })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	metrics.VectorSearchTotal.WithLabelValues(backend, "success").Inc()
	return hits, nil
}

// DeleteByIDs 按 ID 删除
func (i *Index) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for _, id := range ids {
		doc, ok := i.docs[id]
		if !ok {
			continue
		}
		delete(i.byFP, doc.Fingerprint)
		delete(i.docs, id)
		n++
	}
	return n, nil
}

// DeleteBySource 删除条目的全部分块
func (i *Index) DeleteBySource(ctx context.Context, sourceType entity.SourceType, sourceKey string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for id, doc := range i.docs {
		if doc.SourceType == sourceType && doc.SourceKey == sourceKey {
			delete(i.byFP, doc.Fingerprint)
			delete(i.docs, id)
			n++
		}
	}
	return n, nil
}

// SourceFingerprints 返回条目当前的 id -> fingerprint
func (i *Index) SourceFingerprints(ctx context.Context, sourceType entity.SourceType, sourceKey string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make(map[string]string)
	for id, doc := range i.docs {
		if doc.SourceType == sourceType && doc.SourceKey == sourceKey {
			out[id] = doc.Fingerprint
		}
	}
	return out, nil
}

// Find 按过滤条件列出文档
func (i *Index) Find(ctx context.Context, filter entity.Filter, limit int) ([]entity.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []entity.Document{}, nil
	}
	i.mu.RLock()
	out := make([]entity.Document, 0, min(limit, len(i.docs)))
	for _, doc := range i.docs {
		if filter.Matches(doc.Metadata) {
			doc.Embedding = nil
			out = append(out, doc)
		}
	}
	i.mu.RUnlock()

	sortRecent(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountWhere 满足过滤条件的文档数
func (i *Index) CountWhere(ctx context.Context, filter entity.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	var n int64
	for _, doc := range i.docs {
		if filter.Matches(doc.Metadata) {
			n++
		}
	}
	return n, nil
}

func sortRecent(docs []entity.Document) {
	sort.Slice(docs, func(a, b int) bool {
		if !docs[a].IngestedAt.Equal(docs[b].IngestedAt) {
			return docs[a].IngestedAt.After(docs[b].IngestedAt)
		}
		return docs[a].ID < docs[b].ID
	})
}

// Count 文档总数
func (i *Index) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return int64(len(i.docs)), nil
}

// Get 按 ID 读取文档
func (i *Index) Get(id string) (entity.Document, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	doc, ok := i.docs[id]
	return doc, ok
}

// Cosine 余弦相似度，任一向量为零时返回 0
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for k := 0; k < n; k++ {
		x, y := float64(a[k]), float64(b[k])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
