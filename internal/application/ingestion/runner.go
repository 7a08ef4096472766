package ingestion

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"cinemind/internal/domain/entity"
	apperrors "cinemind/pkg/errors"
	"cinemind/pkg/logger"
)

// Request 一次入库请求；Limit > 0 时每个数据源最多读取 Limit 个条目
type Request struct {
	Sources []entity.SourceType
	Limit   int
}

// Runner 按数据源类型调度入库；同一时刻只允许一次运行
type Runner struct {
	coordinator *Coordinator
	adapters    map[entity.SourceType]SourceAdapter
	timeout     time.Duration
	running     atomic.Bool
}

// NewRunner 创建调度器；timeout 限制后台运行时长，<= 0 时不限制
func NewRunner(coordinator *Coordinator, timeout time.Duration, adapters ...SourceAdapter) *Runner {
	m := make(map[entity.SourceType]SourceAdapter, len(adapters))
	for _, a := range adapters {
		m[a.SourceType()] = a
	}
	return &Runner{coordinator: coordinator, adapters: m, timeout: timeout}
}

// Resolve 将 "all" 或单个类型名解析为已配置的数据源
func (r *Runner) Resolve(source string) ([]entity.SourceType, error) {
	if source == "" || source == "all" {
		out := make([]entity.SourceType, 0, len(r.adapters))
		for _, st := range entity.SourceTypes {
			if _, ok := r.adapters[st]; ok {
				out = append(out, st)
			}
		}
		if len(out) == 0 {
			return nil, apperrors.New(apperrors.CodeInvalidParam, "no sources configured")
		}
		return out, nil
	}
	st, err := entity.ParseSourceType(source)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "invalid source")
	}
	if _, ok := r.adapters[st]; !ok {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "source %s is not configured", st)
	}
	return []entity.SourceType{st}, nil
}

// Run 同步执行入库并返回各数据源的运行记录
func (r *Runner) Run(ctx context.Context, req Request) ([]*entity.IngestionRun, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.CodeConflict, "an ingestion run is already in progress")
	}
	defer r.running.Store(false)
	return r.run(ctx, req)
}

// Start 在后台执行入库，请求 context 取消不影响运行
func (r *Runner) Start(ctx context.Context, req Request) error {
	if !r.running.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.CodeConflict, "an ingestion run is already in progress")
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer r.running.Store(false)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			bg, cancel = context.WithTimeout(bg, r.timeout)
			defer cancel()
		}
		if _, err := r.run(bg, req); err != nil {
			logger.Error(bg, "background ingestion aborted", err)
		}
	}()
	return nil
}

// Running 是否有运行中的入库
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) run(ctx context.Context, req Request) ([]*entity.IngestionRun, error) {
	adapters := make([]SourceAdapter, 0, len(req.Sources))
	for _, st := range req.Sources {
		a, ok := r.adapters[st]
		if !ok {
			return nil, fmt.Errorf("source %s is not configured", st)
		}
		if req.Limit > 0 {
			a = Limit(a, req.Limit)
		}
		adapters = append(adapters, a)
	}
	return r.coordinator.Run(ctx, adapters...)
}

// limitedAdapter 最多产出 n 个条目（出错的条目也计数）
type limitedAdapter struct {
	SourceAdapter
	n int
}

// Limit 包装适配器，只读取前 n 个条目
func Limit(a SourceAdapter, n int) SourceAdapter {
	return limitedAdapter{SourceAdapter: a, n: n}
}

func (l limitedAdapter) Items(ctx context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		if l.n <= 0 {
			return
		}
		seen := 0
		for item, err := range l.SourceAdapter.Items(ctx) {
			if !yield(item, err) {
				return
			}
			seen++
			if seen >= l.n {
				return
			}
		}
	}
}
