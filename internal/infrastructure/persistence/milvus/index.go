package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	mentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/pkg/metrics"
)

const backendName = "milvus"

// Index 基于 Milvus 的向量索引
type Index struct {
	client     *Client
	collection string
	dimension  int
}

var _ repository.VectorIndex = (*Index)(nil)

// NewIndex 创建向量索引
func NewIndex(client *Client, dimension int) *Index {
	return &Index{
		client:     client,
		collection: client.DocumentsCollection(),
		dimension:  dimension,
	}
}

// EnsureCollection 确保集合与索引可用（不存在则创建），不做破坏性操作
func (x *Index) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", x.collection)))
	defer span.End()

	exists, err := x.client.milvus.HasCollection(ctx, x.collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := x.client.milvus.CreateCollection(ctx, DocumentsSchema(x.collection, x.dimension), mentity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := mentity.NewIndexHNSW(mentity.COSINE, x.client.config.HNSWM, x.client.config.HNSWEfConstruction)
		if err != nil {
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := x.client.milvus.CreateIndex(ctx, x.collection, fieldVector, idx, false); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return x.client.milvus.LoadCollection(ctx, x.collection, false)
}

// Upsert 写入文档；内容指纹已存在的文档计为 skipped
func (x *Index) Upsert(ctx context.Context, docs []entity.Document) (repository.UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(attribute.Int("count", len(docs))))
	defer span.End()

	var res repository.UpsertResult
	if len(docs) == 0 {
		return res, nil
	}
	for i := range docs {
		if !docs[i].HasEmbedding() {
			return res, fmt.Errorf("document %s has no embedding", docs[i].ID)
		}
		if len(docs[i].Embedding) != x.dimension {
			return res, fmt.Errorf("document %s: embedding dimension %d, index expects %d", docs[i].ID, len(docs[i].Embedding), x.dimension)
		}
	}

	fps := make([]string, len(docs))
	for i := range docs {
		fps[i] = docs[i].Fingerprint
	}
	existing, err := x.queryStrings(ctx, inExpr(fieldFingerprint, fps), fieldFingerprint)
	if err != nil {
		span.RecordError(err)
		metrics.VectorUpsertTotal.WithLabelValues(backendName, "error").Inc()
		return res, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, fp := range existing {
		known[fp] = struct{}{}
	}

	todo, skipped := repository.SkipKnown(docs, known)
	res.Skipped = skipped
	if len(todo) > 0 {
		cols, err := x.columns(todo)
		if err != nil {
			return res, err
		}
		if _, err := x.client.milvus.Upsert(ctx, x.collection, "", cols...); err != nil {
			span.RecordError(err)
			metrics.VectorUpsertTotal.WithLabelValues(backendName, "error").Inc()
			return res, fmt.Errorf("failed to upsert documents: %w", err)
		}
		res.Written = len(todo)
	}

	metrics.VectorUpsertTotal.WithLabelValues(backendName, "written").Add(float64(res.Written))
	metrics.VectorUpsertTotal.WithLabelValues(backendName, "skipped").Add(float64(res.Skipped))
	return res, nil
}

func (x *Index) columns(docs []entity.Document) ([]mentity.Column, error) {
	n := len(docs)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	sourceTypes := make([]string, n)
	sourceKeys := make([]string, n)
	chunkIdx := make([]int64, n)
	fps := make([]string, n)
	titles := make([]string, n)
	texts := make([]string, n)
	attrs := make([][]byte, n)
	metas := make([][]byte, n)
	ingested := make([]int64, n)

	for i, d := range docs {
		a, err := json.Marshal(d.Metadata.Map())
		if err != nil {
			return nil, fmt.Errorf("failed to encode attrs: %w", err)
		}
		m, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		ids[i] = d.ID
		vectors[i] = d.Embedding
		sourceTypes[i] = string(d.SourceType)
		sourceKeys[i] = d.SourceKey
		chunkIdx[i] = int64(d.ChunkIndex)
		fps[i] = d.Fingerprint
		titles[i] = truncate(d.Metadata.Title, 512)
		texts[i] = d.Text
		attrs[i] = a
		metas[i] = m
		ingested[i] = d.IngestedAt.UnixMilli()
	}

	return []mentity.Column{
		mentity.NewColumnVarChar(fieldID, ids),
		mentity.NewColumnFloatVector(fieldVector, x.dimension, vectors),
		mentity.NewColumnVarChar(fieldSourceType, sourceTypes),
		mentity.NewColumnVarChar(fieldSourceKey, sourceKeys),
		mentity.NewColumnInt64(fieldChunkIndex, chunkIdx),
		mentity.NewColumnVarChar(fieldFingerprint, fps),
		mentity.NewColumnVarChar(fieldTitle, titles),
		mentity.NewColumnVarChar(fieldText, texts),
		mentity.NewColumnJSONBytes(fieldAttrs, attrs),
		mentity.NewColumnJSONBytes(fieldMetadata, metas),
		mentity.NewColumnInt64(fieldIngestedAt, ingested),
	}, nil
}

// Search 余弦相似度检索，结果按分数降序、ingested_at 新者优先、id 升序
func (x *Index) Search(ctx context.Context, vector []float32, topK int, filter entity.Filter) ([]entity.ScoredDocument, error) {
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", x.collection),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.VectorSearchDuration.WithLabelValues(backendName).Observe(time.Since(start).Seconds())
	}()

	if topK <= 0 {
		return []entity.ScoredDocument{}, nil
	}
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("query dimension %d, index expects %d", len(vector), x.dimension)
	}
	expr, err := FilterExpr(filter)
	if err != nil {
		return nil, err
	}

	sp, err := mentity.NewIndexHNSWSearchParam(max(x.client.config.SearchEf, topK))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := x.client.milvus.Search(ctx,
		x.collection,
		nil,
		expr,
		outputFields,
		[]mentity.Vector{mentity.FloatVector(vector)},
		fieldVector,
		mentity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues(backendName, "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.VectorSearchTotal.WithLabelValues(backendName, "success").Inc()

	out := make([]entity.ScoredDocument, 0, topK)
	for _, result := range results {
		docs, err := decodeDocuments(result.Fields, result.ResultCount)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for i, d := range docs {
			if !filter.Matches(d.Metadata) {
				continue
			}
			out = append(out, entity.ScoredDocument{Document: d, Score: float64(result.Scores[i])})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return entity.Less(out[i], out[j]) })
	if len(out) > topK {
		out = out[:topK]
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// DeleteByIDs 按主键删除
func (x *Index) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	ctx, span := tracer.Start(ctx, "milvus.DeleteByIDs",
		trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}
	existing, err := x.queryStrings(ctx, inExpr(fieldID, ids), fieldID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := x.client.milvus.Delete(ctx, x.collection, "", inExpr(fieldID, existing)); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return len(existing), nil
}

// DeleteBySource 删除某个数据源条目的全部分块
func (x *Index) DeleteBySource(ctx context.Context, st entity.SourceType, key string) (int, error) {
	ctx, span := tracer.Start(ctx, "milvus.DeleteBySource",
		trace.WithAttributes(attribute.String("source_key", key)))
	defer span.End()

	ids, err := x.queryStrings(ctx, sourceExpr(st, key), fieldID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := x.client.milvus.Delete(ctx, x.collection, "", inExpr(fieldID, ids)); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete source documents: %w", err)
	}
	return len(ids), nil
}

// SourceFingerprints 返回某个数据源条目已入库的 id -> 指纹
func (x *Index) SourceFingerprints(ctx context.Context, st entity.SourceType, key string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "milvus.SourceFingerprints",
		trace.WithAttributes(attribute.String("source_key", key)))
	defer span.End()

	rs, err := x.client.milvus.Query(ctx, x.collection, nil, sourceExpr(st, key),
		[]string{fieldID, fieldFingerprint},
		client.WithSearchQueryConsistencyLevel(mentity.ClStrong))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	ids, _ := varchars(rs.GetColumn(fieldID))
	fps, _ := varchars(rs.GetColumn(fieldFingerprint))
	out := make(map[string]string, len(ids))
	for i := range min(len(ids), len(fps)) {
		out[ids[i]] = fps[i]
	}
	return out, nil
}

// Find 按过滤条件查询文档（标量查询，不做向量检索）
func (x *Index) Find(ctx context.Context, filter entity.Filter, limit int) ([]entity.Document, error) {
	ctx, span := tracer.Start(ctx, "milvus.Find",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if limit <= 0 {
		return []entity.Document{}, nil
	}
	expr, err := FilterExpr(filter)
	if err != nil {
		return nil, err
	}
	rs, err := x.client.milvus.Query(ctx, x.collection, nil, expr, outputFields,
		client.WithLimit(int64(limit)),
		client.WithSearchQueryConsistencyLevel(mentity.ClStrong))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	ids, _ := varchars(rs.GetColumn(fieldID))
	docs, err := decodeDocuments(rs, len(ids))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := docs[:0]
	for _, d := range docs {
		if filter.Matches(d.Metadata) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountWhere 满足过滤条件的文档数
func (x *Index) CountWhere(ctx context.Context, filter entity.Filter) (int64, error) {
	ctx, span := tracer.Start(ctx, "milvus.CountWhere")
	defer span.End()

	expr, err := FilterExpr(filter)
	if err != nil {
		return 0, err
	}
	n, err := x.count(ctx, expr)
	if err != nil {
		span.RecordError(err)
	}
	return n, err
}

// Count 集合中的文档数
func (x *Index) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "milvus.Count")
	defer span.End()

	n, err := x.count(ctx, "")
	if err != nil {
		span.RecordError(err)
	}
	return n, err
}

func (x *Index) count(ctx context.Context, expr string) (int64, error) {
	rs, err := x.client.milvus.Query(ctx, x.collection, nil, expr, []string{"count(*)"},
		client.WithSearchQueryConsistencyLevel(mentity.ClStrong))
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	col, ok := rs.GetColumn("count(*)").(*mentity.ColumnInt64)
	if !ok || col.Len() == 0 {
		return 0, nil
	}
	return col.Data()[0], nil
}

func (x *Index) queryStrings(ctx context.Context, expr, field string) ([]string, error) {
	rs, err := x.client.milvus.Query(ctx, x.collection, nil, expr, []string{field},
		client.WithSearchQueryConsistencyLevel(mentity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", field, err)
	}
	values, _ := varchars(rs.GetColumn(field))
	return values, nil
}

func varchars(col mentity.Column) ([]string, bool) {
	c, ok := col.(*mentity.ColumnVarChar)
	if !ok {
		return nil, false
	}
	return c.Data(), true
}

func int64s(col mentity.Column) ([]int64, bool) {
	c, ok := col.(*mentity.ColumnInt64)
	if !ok {
		return nil, false
	}
	return c.Data(), true
}

// decodeDocuments 由结果列还原文档（不含向量）
func decodeDocuments(rs client.ResultSet, n int) ([]entity.Document, error) {
	ids, ok := varchars(rs.GetColumn(fieldID))
	if !ok || len(ids) < n {
		return nil, fmt.Errorf("search result missing %s column", fieldID)
	}
	sourceTypes, _ := varchars(rs.GetColumn(fieldSourceType))
	sourceKeys, _ := varchars(rs.GetColumn(fieldSourceKey))
	fps, _ := varchars(rs.GetColumn(fieldFingerprint))
	texts, _ := varchars(rs.GetColumn(fieldText))
	chunkIdx, _ := int64s(rs.GetColumn(fieldChunkIndex))
	ingested, _ := int64s(rs.GetColumn(fieldIngestedAt))
	var metas [][]byte
	if c, ok := rs.GetColumn(fieldMetadata).(*mentity.ColumnJSONBytes); ok {
		metas = c.Data()
	}

	docs := make([]entity.Document, n)
	for i := 0; i < n; i++ {
		d := entity.Document{ID: ids[i]}
		if i < len(sourceTypes) {
			d.SourceType = entity.SourceType(sourceTypes[i])
		}
		if i < len(sourceKeys) {
			d.SourceKey = sourceKeys[i]
		}
		if i < len(fps) {
			d.Fingerprint = fps[i]
		}
		if i < len(texts) {
			d.Text = texts[i]
		}
		if i < len(chunkIdx) {
			d.ChunkIndex = int(chunkIdx[i])
		}
		if i < len(ingested) {
			d.IngestedAt = time.UnixMilli(ingested[i]).UTC()
		}
		if i < len(metas) && len(metas[i]) > 0 {
			if err := json.Unmarshal(metas[i], &d.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", d.ID, err)
			}
		}
		docs[i] = d
	}
	return docs, nil
}

// truncate 按 rune 截断以满足 varchar max_length
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
