// Package pgvector 基于 PostgreSQL + pgvector 的向量索引
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/config"
	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/pkg/metrics"
)

var tracer = otel.Tracer("pgvector")

const (
	backendName  = "pgvector"
	DefaultTable = "cinemind_documents"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store pgvector 向量索引
type Store struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

var _ repository.VectorIndex = (*Store)(nil)

// NewStore 连接数据库并返回向量索引
func NewStore(ctx context.Context, pg config.PostgresConfig, cfg config.PGVectorConfig, dimension int) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", table)
	}

	poolCfg, err := pgxpool.ParseConfig(pg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Store{pool: pool, table: table, dimension: dimension}, nil
}

// Init 创建扩展、表与索引
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL(s.table, s.dimension)); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// Close 关闭连接池
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// HealthCheck 健康检查
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Upsert 批量写入；指纹未变的行不更新并计为 skipped
func (s *Store) Upsert(ctx context.Context, docs []entity.Document) (repository.UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "pgvector.Upsert",
		trace.WithAttributes(attribute.Int("count", len(docs))))
	defer span.End()

	var res repository.UpsertResult
	if len(docs) == 0 {
		return res, nil
	}

	for _, d := range docs {
		if !d.HasEmbedding() {
			return res, fmt.Errorf("document %s has no embedding", d.ID)
		}
		if len(d.Embedding) != s.dimension {
			return res, fmt.Errorf("document %s: embedding dimension %d, index expects %d", d.ID, len(d.Embedding), s.dimension)
		}
	}

	known, err := s.knownFingerprints(ctx, docs)
	if err != nil {
		span.RecordError(err)
		metrics.VectorUpsertTotal.WithLabelValues(backendName, "error").Inc()
		return res, err
	}
	todo, skipped := repository.SkipKnown(docs, known)
	res.Skipped = skipped
	if len(todo) == 0 {
		metrics.VectorUpsertTotal.WithLabelValues(backendName, "skipped").Add(float64(res.Skipped))
		return res, nil
	}

	batch := &pgx.Batch{}
	query := upsertSQL(s.table)
	for _, d := range todo {
		attrs, err := json.Marshal(d.Metadata.Map())
		if err != nil {
			return res, fmt.Errorf("failed to encode attrs: %w", err)
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return res, fmt.Errorf("failed to encode metadata: %w", err)
		}
		batch.Queue(query,
			d.ID, string(d.SourceType), d.SourceKey, d.ChunkIndex, d.Fingerprint,
			d.Text, attrs, meta, pgvector.NewVector(d.Embedding), d.IngestedAt,
		)
	}

	// 批次在单个隐式事务中执行，出错时整批回滚
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range todo {
		tag, err := br.Exec()
		if err != nil {
			span.RecordError(err)
			metrics.VectorUpsertTotal.WithLabelValues(backendName, "error").Inc()
			return repository.UpsertResult{Skipped: skipped}, fmt.Errorf("failed to upsert document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			res.Skipped++
		} else {
			res.Written++
		}
	}

	metrics.VectorUpsertTotal.WithLabelValues(backendName, "written").Add(float64(res.Written))
	metrics.VectorUpsertTotal.WithLabelValues(backendName, "skipped").Add(float64(res.Skipped))
	return res, nil
}

// knownFingerprints 查询 docs 中已入库的指纹（不论归属哪个 ID）
func (s *Store) knownFingerprints(ctx context.Context, docs []entity.Document) (map[string]struct{}, error) {
	fps := make([]string, len(docs))
	for i := range docs {
		fps[i] = docs[i].Fingerprint
	}
	rows, err := s.pool.Query(ctx, knownFingerprintsSQL(s.table), fps)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{}, len(fps))
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		known[fp] = struct{}{}
	}
	return known, rows.Err()
}

// Search 余弦相似度检索，过滤条件以 jsonb 包含关系下推
func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter entity.Filter) ([]entity.ScoredDocument, error) {
	ctx, span := tracer.Start(ctx, "pgvector.Search",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.VectorSearchDuration.WithLabelValues(backendName).Observe(time.Since(start).Seconds())
	}()

	if topK <= 0 {
		return []entity.ScoredDocument{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, index expects %d", len(vector), s.dimension)
	}
	filterJSON, err := json.Marshal(filterMap(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	rows, err := s.pool.Query(ctx, searchSQL(s.table), pgvector.NewVector(vector), filterJSON, topK)
	if err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues(backendName, "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	out := make([]entity.ScoredDocument, 0, topK)
	for rows.Next() {
		var (
			d     entity.Document
			st    string
			meta  []byte
			score float64
		)
		if err := rows.Scan(&d.ID, &st, &d.SourceKey, &d.ChunkIndex, &d.Fingerprint, &d.Text, &meta, &d.IngestedAt, &score); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		d.SourceType = entity.SourceType(st)
		d.IngestedAt = d.IngestedAt.UTC()
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", d.ID, err)
		}
		if !filter.Matches(d.Metadata) {
			continue
		}
		out = append(out, entity.ScoredDocument{Document: d, Score: score})
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues(backendName, "error").Inc()
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	metrics.VectorSearchTotal.WithLabelValues(backendName, "success").Inc()

	sort.SliceStable(out, func(i, j int) bool { return entity.Less(out[i], out[j]) })
	return out, nil
}

// DeleteByIDs 按主键删除
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	ctx, span := tracer.Start(ctx, "pgvector.DeleteByIDs",
		trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::uuid[])`, s.table), ids)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteBySource 删除某个数据源条目的全部分块
func (s *Store) DeleteBySource(ctx context.Context, st entity.SourceType, key string) (int, error) {
	ctx, span := tracer.Start(ctx, "pgvector.DeleteBySource",
		trace.WithAttributes(attribute.String("source_key", key)))
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE source_type = $1 AND source_key = $2`, s.table),
		string(st), key)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete source documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SourceFingerprints 返回某个数据源条目已入库的 id -> 指纹
func (s *Store) SourceFingerprints(ctx context.Context, st entity.SourceType, key string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "pgvector.SourceFingerprints")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, fingerprint FROM %s WHERE source_type = $1 AND source_key = $2`, s.table),
		string(st), key)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out[id] = fp
	}
	return out, rows.Err()
}

// Find 按过滤条件列出文档
func (s *Store) Find(ctx context.Context, filter entity.Filter, limit int) ([]entity.Document, error) {
	ctx, span := tracer.Start(ctx, "pgvector.Find",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if limit <= 0 {
		return []entity.Document{}, nil
	}
	filterJSON, err := json.Marshal(filterMap(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	rows, err := s.pool.Query(ctx, findSQL(s.table), filterJSON, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer rows.Close()

	out := make([]entity.Document, 0, limit)
	for rows.Next() {
		var (
			d    entity.Document
			st   string
			meta []byte
		)
		if err := rows.Scan(&d.ID, &st, &d.SourceKey, &d.ChunkIndex, &d.Fingerprint, &d.Text, &meta, &d.IngestedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		d.SourceType = entity.SourceType(st)
		d.IngestedAt = d.IngestedAt.UTC()
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

// CountWhere 满足过滤条件的文档数
func (s *Store) CountWhere(ctx context.Context, filter entity.Filter) (int64, error) {
	filterJSON, err := json.Marshal(filterMap(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to encode filter: %w", err)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, countWhereSQL(s.table), filterJSON).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Count 文档总数
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// filterMap 过滤条件转为 jsonb 包含查询的参数
func filterMap(filter entity.Filter) map[string]any {
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	return out
}
