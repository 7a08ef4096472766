// Package ingestion 多数据源入库：规范化、切块、向量化与幂等写入
package ingestion

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	apperrors "cinemind/pkg/errors"
	"cinemind/pkg/logger"
	"cinemind/pkg/metrics"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// SourceAdapter 数据源适配器；Items 返回惰性、有限、可重启的序列
type SourceAdapter interface {
	SourceType() entity.SourceType
	Items(ctx context.Context) iter.Seq2[entity.RawItem, error]
}

// Embedder 批量向量化，输出与输入一一对应
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RunRecorder 运行记录落地（账本、事件等）
type RunRecorder interface {
	Record(ctx context.Context, run *entity.IngestionRun) error
}

// Options 协调器参数
type Options struct {
	BatchSize int
	Workers   int
}

// Coordinator 入库协调器
type Coordinator struct {
	normalizer *Normalizer
	embedder   Embedder
	index      repository.VectorIndex
	recorders  []RunRecorder

	batchSize int
	workers   int
}

// NewCoordinator 创建入库协调器
func NewCoordinator(normalizer *Normalizer, embedder Embedder, index repository.VectorIndex, opts Options, recorders ...RunRecorder) *Coordinator {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	bs := opts.BatchSize
	if bs <= 0 {
		bs = DefaultBatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		normalizer: normalizer,
		embedder:   embedder,
		index:      index,
		recorders:  recorders,
		batchSize:  bs,
		workers:    workers,
	}
}

// Run 并发执行各数据源，每个适配器返回一条运行记录
//
// 单条目、单批次的失败只记入运行记录；只有 context 取消会中止运行，
// 此时仍返回带部分计数的记录及 ctx.Err()。
func (c *Coordinator) Run(ctx context.Context, adapters ...SourceAdapter) ([]*entity.IngestionRun, error) {
	runs := make([]*entity.IngestionRun, len(adapters))
	var g errgroup.Group
	for i, adapter := range adapters {
		g.Go(func() error {
			runs[i] = c.runSource(ctx, adapter)
			return nil
		})
	}
	_ = g.Wait()
	return runs, ctx.Err()
}

// sourceRun 单个数据源运行期间的共享状态
type sourceRun struct {
	mu  sync.Mutex
	run *entity.IngestionRun
	// stale 条目在索引中不再被新切块产生的 ID，新块写入成功后删除
	stale  map[string][]string
	failed map[string]struct{}
}

func newSourceRun(st entity.SourceType) *sourceRun {
	return &sourceRun{
		run:    entity.NewIngestionRun(st),
		stale:  make(map[string][]string),
		failed: make(map[string]struct{}),
	}
}

func (s *sourceRun) fail(ctx context.Context, sourceKey string, kind entity.FailureKind, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	s.run.Failures = append(s.run.Failures, entity.Failure{SourceKey: sourceKey, Kind: kind, Message: msg})
	s.failed[sourceKey] = struct{}{}
	s.mu.Unlock()

	metrics.IngestionFailuresTotal.WithLabelValues(string(s.run.SourceType), string(kind)).Inc()
	logger.Warn(ctx, "ingestion item failed",
		"source_key", sourceKey,
		"error_kind", string(kind),
		"error", msg,
	)
}

func (s *sourceRun) add(f func(run *entity.IngestionRun)) {
	s.mu.Lock()
	f(s.run)
	s.mu.Unlock()
}

func (c *Coordinator) runSource(ctx context.Context, adapter SourceAdapter) *entity.IngestionRun {
	st := adapter.SourceType()
	state := newSourceRun(st)
	ctx = logger.WithContext(ctx, logger.RunIDKey, state.run.ID)
	ctx = logger.WithContext(ctx, logger.SourceTypeKey, string(st))
	logger.Info(ctx, "ingestion run started")

	pool := new(errgroup.Group)
	pool.SetLimit(c.workers)

	pending := make([]entity.Document, 0, c.batchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = make([]entity.Document, 0, c.batchSize)
		pool.Go(func() error {
			c.processBatch(ctx, state, batch)
			return nil
		})
	}

	for item, err := range adapter.Items(ctx) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			state.fail(ctx, item.SourceKey, entity.FailureSource, err)
			continue
		}

		docs, err := c.normalizer.Normalize(item, st)
		if err != nil {
			state.fail(ctx, item.SourceKey, entity.FailureNormalization, err)
			continue
		}
		state.add(func(run *entity.IngestionRun) { run.DocumentsSeen += len(docs) })

		todo, err := c.reconcile(ctx, state, st, docs)
		if err != nil {
			state.fail(ctx, docs[0].SourceKey, entity.FailureIndex, err)
			continue
		}
		for _, doc := range todo {
			pending = append(pending, doc)
			if len(pending) >= c.batchSize {
				flush()
			}
		}
	}
	flush()
	_ = pool.Wait()
	c.dropStale(ctx, state)

	run := state.run
	run.Cancelled = ctx.Err() != nil
	run.Finish()

	metrics.IngestionRunDuration.WithLabelValues(string(st)).Observe(run.Duration().Seconds())
	logger.Info(ctx, "ingestion run finished",
		"documents_seen", run.DocumentsSeen,
		"documents_written", run.DocumentsWritten,
		"documents_skipped_unchanged", run.DocumentsSkippedUnchanged,
		"documents_deleted", run.DocumentsDeleted,
		"failures", len(run.Failures),
		"cancelled", run.Cancelled,
		"duration_ms", run.Duration().Milliseconds(),
	)

	c.record(ctx, run)
	return run
}

// reconcile 对比索引中的指纹，返回需要重新向量化的文档
//
// 指纹未变的块记为 skipped；新切块不再产生的旧 ID 暂存到 state.stale，
// 待本条目的新块全部写入后由 dropStale 删除。
func (c *Coordinator) reconcile(ctx context.Context, state *sourceRun, st entity.SourceType, docs []entity.Document) ([]entity.Document, error) {
	key := docs[0].SourceKey
	stored, err := c.index.SourceFingerprints(ctx, st, key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIndexUnavailable, "fingerprint lookup failed")
	}
	if len(stored) == 0 {
		return docs, nil
	}

	wanted := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		wanted[d.ID] = struct{}{}
	}
	var stale []string
	for id := range stored {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		state.mu.Lock()
		state.stale[key] = stale
		state.mu.Unlock()
	}

	todo := docs[:0:0]
	unchanged := 0
	for _, d := range docs {
		if fp, ok := stored[d.ID]; ok && fp == d.Fingerprint {
			unchanged++
			continue
		}
		todo = append(todo, d)
	}
	if unchanged > 0 {
		state.add(func(run *entity.IngestionRun) { run.DocumentsSkippedUnchanged += unchanged })
		metrics.IngestionDocumentsTotal.WithLabelValues(string(st), "skipped").Add(float64(unchanged))
	}
	return todo, nil
}

// dropStale 删除已被新版本取代的旧块；本轮有失败的条目保留旧块
func (c *Coordinator) dropStale(ctx context.Context, state *sourceRun) {
	if ctx.Err() != nil || len(state.stale) == 0 {
		return
	}
	st := string(state.run.SourceType)
	keys := make([]string, 0, len(state.stale))
	for key := range state.stale {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, ok := state.failed[key]; ok {
			logger.Warn(ctx, "keeping superseded chunks after failed rewrite", "source_key", key)
			continue
		}
		deleted, err := c.index.DeleteByIDs(ctx, state.stale[key])
		if err != nil {
			state.fail(ctx, key, entity.FailureIndex,
				apperrors.Wrap(err, apperrors.CodeIndexUnavailable, "delete stale chunks failed"))
			continue
		}
		state.add(func(run *entity.IngestionRun) { run.DocumentsDeleted += deleted })
		metrics.IngestionDocumentsTotal.WithLabelValues(st, "deleted").Add(float64(deleted))
		logger.Info(ctx, "stale chunks removed", "source_key", key, "deleted", deleted)
	}
}

// processBatch 向量化并写入一个批次；失败时批次内全部条目记为失败，已写入的部分照常计数
func (c *Coordinator) processBatch(ctx context.Context, state *sourceRun, batch []entity.Document) {
	if ctx.Err() != nil {
		return
	}
	st := string(state.run.SourceType)

	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Text
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.failBatch(ctx, state, batch, entity.FailureEmbedding,
			apperrors.Wrap(err, apperrors.CodeEmbeddingUnavailable, "embedding batch failed"))
		return
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}

	res, err := c.index.Upsert(ctx, batch)
	state.add(func(run *entity.IngestionRun) {
		run.DocumentsWritten += res.Written
		run.DocumentsSkippedUnchanged += res.Skipped
	})
	metrics.IngestionDocumentsTotal.WithLabelValues(st, "written").Add(float64(res.Written))
	metrics.IngestionDocumentsTotal.WithLabelValues(st, "skipped").Add(float64(res.Skipped))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.failBatch(ctx, state, batch, entity.FailureIndex,
			apperrors.Wrap(err, apperrors.CodeIndexUnavailable, "upsert batch failed"))
	}
}

func (c *Coordinator) failBatch(ctx context.Context, state *sourceRun, batch []entity.Document, kind entity.FailureKind, err error) {
	seen := make(map[string]struct{}, len(batch))
	for _, d := range batch {
		if _, ok := seen[d.SourceKey]; ok {
			continue
		}
		seen[d.SourceKey] = struct{}{}
		state.fail(ctx, d.SourceKey, kind, err)
	}
}

// record 运行记录落地失败只记录日志
func (c *Coordinator) record(ctx context.Context, run *entity.IngestionRun) {
	if len(c.recorders) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, r := range c.recorders {
		if err := r.Record(rctx, run); err != nil {
			logger.Error(ctx, "failed to record ingestion run", err)
		}
	}
}
